// Package dedup reduces deals from every source to one deal per game.
package dedup

import "deal_aggregator/internal/domain"

// Stats describes what Dedupe dropped.
type Stats struct {
	In         int
	Out        int
	Duplicates int
	// NoIdentifier counts deals skipped because their game id was not positive.
	NoIdentifier int
}

// Dedupe keeps the best deal per game identifier: the higher discount wins,
// and on equal discount the strictly lower sale price wins. Output follows the
// order in which identifiers were first seen. Dedupe(Dedupe(x)) == Dedupe(x).
func Dedupe(deals []domain.Deal) ([]domain.Deal, Stats) {
	stats := Stats{In: len(deals)}
	index := make(map[int64]int, len(deals))
	out := make([]domain.Deal, 0, len(deals))

	for _, d := range deals {
		if d.SteamAppID <= 0 {
			stats.NoIdentifier++
			continue
		}

		i, ok := index[d.SteamAppID]
		if !ok {
			index[d.SteamAppID] = len(out)
			out = append(out, d)
			continue
		}

		stats.Duplicates++
		if Better(d, out[i]) {
			out[i] = d
		}
	}

	stats.Out = len(out)
	return out, stats
}

// Better reports whether candidate should replace current for the same game.
func Better(candidate, current domain.Deal) bool {
	if candidate.Discount != current.Discount {
		return candidate.Discount > current.Discount
	}
	return candidate.SalePrice.LessThan(current.SalePrice)
}

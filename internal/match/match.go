// Package match ranks deals against a free-text game title query.
package match

import (
	"sort"
	"strings"

	"deal_aggregator/internal/domain"
)

// Tier is how well a title matches a query. Higher is better.
type Tier int

const (
	TierNone Tier = iota
	TierSubstring
	TierExact
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierSubstring:
		return "substring"
	default:
		return "none"
	}
}

// Fold lowercases s and collapses runs of whitespace.
func Fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Score compares a query against a title: an exact case-folded match beats
// substring containment, which beats nothing. An empty query never matches.
func Score(query, title string) Tier {
	q, t := Fold(query), Fold(title)
	switch {
	case q == "" || t == "":
		return TierNone
	case q == t:
		return TierExact
	case strings.Contains(t, q):
		return TierSubstring
	default:
		return TierNone
	}
}

// Match is one ranked result.
type Match struct {
	Deal domain.Deal `json:"deal"`
	Tier Tier        `json:"-"`
	Kind string      `json:"match"`
}

// Rank returns deals matching query, best tier first, then by discount, then
// by shorter title. limit <= 0 returns every match.
func Rank(query string, deals []domain.Deal, limit int) []Match {
	var matches []Match
	for _, d := range deals {
		tier := Score(query, d.Title)
		if tier == TierNone {
			continue
		}
		matches = append(matches, Match{Deal: d, Tier: tier, Kind: tier.String()})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Tier != b.Tier {
			return a.Tier > b.Tier
		}
		if a.Deal.Discount != b.Deal.Discount {
			return a.Deal.Discount > b.Deal.Discount
		}
		return len(a.Deal.Title) < len(b.Deal.Title)
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

package source

import (
	"errors"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"

	"deal_aggregator/internal/domain"
	"deal_aggregator/internal/metrics"
)

// ErrRecordPanic marks a record whose decoding or normalization panicked.
var ErrRecordPanic = errors.New("record transform panicked")

// Transform decodes every raw record independently into R and normalizes it.
// Records that fail either step are logged and skipped, so one bad record
// never costs the rest of the page.
func Transform[R any](
	raws []json.RawMessage,
	normalize func(R) (domain.Deal, error),
	stats *domain.SourceStats,
	m *metrics.Registry,
	logger *slog.Logger,
) []domain.Deal {
	deals := make([]domain.Deal, 0, len(raws))

	for i, raw := range raws {
		deal, err := transformOne(raw, normalize)
		if err != nil {
			logger.Warn("skipping record", "index", i, "error", err)
			stats.Skipped++
			continue
		}

		deals = append(deals, deal)
	}

	stats.Normalized = len(deals)
	m.ObserveRecords(string(stats.SourceID), "normalized", stats.Normalized)
	m.ObserveRecords(string(stats.SourceID), "skipped", stats.Skipped)

	return deals
}

func transformOne[R any](raw json.RawMessage, normalize func(R) (domain.Deal, error)) (deal domain.Deal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRecordPanic, r)
		}
	}()

	var rec R
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Deal{}, fmt.Errorf("decode record: %w", err)
	}
	return normalize(rec)
}

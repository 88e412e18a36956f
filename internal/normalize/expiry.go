package normalize

import (
	"time"

	"deal_aggregator/internal/config"
)

// Bucket applies to every discount of at least MinDiscount.
type Bucket struct {
	MinDiscount int
	Days        int
}

// ExpiryTable estimates how long a deal lasts from its discount. Buckets are
// checked in order, so they must be sorted by descending MinDiscount.
type ExpiryTable struct {
	Buckets     []Bucket
	DefaultDays int
}

func DefaultExpiryTable() ExpiryTable {
	return ExpiryTable{
		Buckets: []Bucket{
			{MinDiscount: 80, Days: 5},
			{MinDiscount: 60, Days: 7},
			{MinDiscount: 30, Days: 10},
		},
		DefaultDays: 14,
	}
}

func ExpiryTableFromConfig(cfg config.ExpiryConfig) ExpiryTable {
	table := ExpiryTable{DefaultDays: cfg.DefaultDays}
	for _, b := range cfg.Buckets {
		table.Buckets = append(table.Buckets, Bucket{MinDiscount: b.MinDiscount, Days: b.Days})
	}
	return table
}

// Days returns the estimated lifetime in days for a discount.
func (t ExpiryTable) Days(discount int) int {
	for _, b := range t.Buckets {
		if discount >= b.MinDiscount {
			return b.Days
		}
	}
	return t.DefaultDays
}

// Estimate returns an absolute epoch-seconds expiry relative to now.
func (t ExpiryTable) Estimate(now time.Time, discount int) int64 {
	return now.Unix() + int64(t.Days(discount))*secondsPerDay
}

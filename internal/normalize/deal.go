// Package normalize holds the rules shared by every source normalizer:
// identifier parsing, discount derivation, expiry estimation and store links.
package normalize

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"deal_aggregator/internal/domain"
)

var (
	ErrMissingIdentifier = errors.New("missing game identifier")
	ErrWrongStore        = errors.New("deal is not for the supported store")
	ErrInvalidExpiry     = errors.New("upstream expiry is negative")
)

const (
	steamStoreURL = "https://store.steampowered.com"
	secondsPerDay = 24 * 60 * 60
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.NewFromFloat(0.5)
)

// Options carries everything a normalizer needs besides the record itself.
type Options struct {
	Now            time.Time
	Expiry         ExpiryTable
	EstimateExpiry bool
}

// GameID parses a store app id. Absent, unparsable and non-positive ids are all
// reported as ErrMissingIdentifier.
func GameID(n Number) (int64, error) {
	if !n.Present() {
		return 0, ErrMissingIdentifier
	}
	id, err := n.Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMissingIdentifier, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrMissingIdentifier, id)
	}
	return id, nil
}

// Discount prefers a positive explicit upstream discount and otherwise derives
// it from the two prices. It is 0 when neither is usable.
func Discount(explicit, sale, normal decimal.Decimal) int {
	if explicit.IsPositive() {
		return roundHalfUp(explicit)
	}
	if !normal.IsPositive() {
		return 0
	}
	return roundHalfUp(normal.Sub(sale).Div(normal).Mul(hundred))
}

func roundHalfUp(d decimal.Decimal) int {
	return int(d.Add(half).Floor().IntPart())
}

// Type classifies a deal by its sale price.
func Type(sale decimal.Decimal) domain.DealType {
	if sale.IsZero() {
		return domain.DealTypeGiveaway
	}
	return domain.DealTypeSale
}

// Expiry returns the genuine upstream expiry when it is positive. A negative
// upstream value is ErrInvalidExpiry. Otherwise, if estimation is enabled, it
// returns the table estimate flagged as such.
func Expiry(upstream Number, discount int, opts Options) (expiry *int64, estimated bool, err error) {
	ts, err := upstream.Int()
	if err != nil {
		return nil, false, fmt.Errorf("expiry: %w", err)
	}
	if ts < 0 {
		return nil, false, fmt.Errorf("%w: %d", ErrInvalidExpiry, ts)
	}
	if ts > 0 {
		return &ts, false, nil
	}
	if !opts.EstimateExpiry {
		return nil, false, nil
	}
	est := opts.Expiry.Estimate(opts.Now, discount)
	return &est, true, nil
}

// StoreURL links to the app page, else a title search, else the store home.
func StoreURL(appID int64, title string) string {
	if appID > 0 {
		return fmt.Sprintf("%s/app/%d", steamStoreURL, appID)
	}
	if title != "" {
		return steamStoreURL + "/search/?term=" + url.QueryEscape(title)
	}
	return steamStoreURL
}

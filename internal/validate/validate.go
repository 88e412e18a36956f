// Package validate drops deals that break the canonical deal invariants.
package validate

import (
	"errors"
	"strings"

	"deal_aggregator/internal/domain"
)

var (
	ErrNoDiscount    = errors.New("discount must be positive")
	ErrPriceNotLower = errors.New("sale price must be below normal price")
	ErrNegativePrice = errors.New("prices must not be negative")
	ErrNoTitle       = errors.New("title is empty")
	ErrNoIdentifier  = errors.New("game identifier must be positive")
	ErrBadExpiry     = errors.New("expiry must be positive when present")
)

// Check returns the first invariant d violates, or nil.
func Check(d domain.Deal) error {
	switch {
	case strings.TrimSpace(d.Title) == "":
		return ErrNoTitle
	case d.SteamAppID <= 0:
		return ErrNoIdentifier
	case d.Discount <= 0:
		return ErrNoDiscount
	case d.SalePrice.IsNegative() || d.NormalPrice.IsNegative():
		return ErrNegativePrice
	case d.SalePrice.GreaterThanOrEqual(d.NormalPrice):
		return ErrPriceNotLower
	case d.Expiry != nil && *d.Expiry <= 0:
		return ErrBadExpiry
	}
	return nil
}

// Filter returns the deals that pass Check, preserving order.
func Filter(deals []domain.Deal) []domain.Deal {
	out := make([]domain.Deal, 0, len(deals))
	for _, d := range deals {
		if Check(d) == nil {
			out = append(out, d)
		}
	}
	return out
}

package itad

import (
	"fmt"
	"strings"

	"deal_aggregator/internal/domain"
	"deal_aggregator/internal/normalize"
)

// Normalize maps one IsThereAnyDeal record to a Deal.
func Normalize(rec Record, opts normalize.Options) (domain.Deal, error) {
	rawID := rec.AppID
	if !rawID.Present() && rec.App != nil {
		rawID = rec.App.ID
	}
	id, err := normalize.GameID(rawID)
	if err != nil {
		return domain.Deal{}, err
	}

	sale, err := normalize.First(rec.PriceNew, rec.Price).Decimal()
	if err != nil {
		return domain.Deal{}, fmt.Errorf("sale price: %w", err)
	}
	normal, err := normalize.First(rec.PriceOld, rec.Regular).Decimal()
	if err != nil {
		return domain.Deal{}, fmt.Errorf("normal price: %w", err)
	}
	cut, err := rec.Cut.Decimal()
	if err != nil {
		return domain.Deal{}, fmt.Errorf("cut: %w", err)
	}

	discount := normalize.Discount(cut, sale, normal)

	expiry, estimated, err := normalize.Expiry(rec.Expiry, discount, opts)
	if err != nil {
		return domain.Deal{}, err
	}

	title := strings.TrimSpace(rec.Title)

	return domain.Deal{
		Title:           title,
		SteamAppID:      id,
		SalePrice:       sale,
		NormalPrice:     normal,
		Discount:        discount,
		Expiry:          expiry,
		ExpiryEstimated: estimated,
		Store:           domain.Store,
		Type:            normalize.Type(sale),
		Source:          domain.SourceITAD,
		URL:             normalize.StoreURL(id, title),
	}, nil
}

package cheapshark

import (
	"fmt"
	"strings"

	"deal_aggregator/internal/domain"
	"deal_aggregator/internal/normalize"
)

// steamStoreID is CheapShark's identifier for the Steam storefront.
const steamStoreID = "1"

// Normalize maps one CheapShark record to a Deal.
func Normalize(rec Record, opts normalize.Options) (domain.Deal, error) {
	if rec.StoreID.Present() && rec.StoreID.String() != steamStoreID {
		return domain.Deal{}, fmt.Errorf("%w: store %s", normalize.ErrWrongStore, rec.StoreID)
	}

	id, err := normalize.GameID(rec.SteamAppID)
	if err != nil {
		return domain.Deal{}, err
	}

	sale, err := rec.SalePrice.Decimal()
	if err != nil {
		return domain.Deal{}, fmt.Errorf("sale price: %w", err)
	}
	normal, err := rec.NormalPrice.Decimal()
	if err != nil {
		return domain.Deal{}, fmt.Errorf("normal price: %w", err)
	}
	savings, err := rec.Savings.Decimal()
	if err != nil {
		return domain.Deal{}, fmt.Errorf("savings: %w", err)
	}

	discount := normalize.Discount(savings, sale, normal)

	expiry, estimated, err := normalize.Expiry(rec.DealExpires, discount, opts)
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
		Source:          domain.SourceCheapShark,
		URL:             normalize.StoreURL(id, title),
	}, nil
}

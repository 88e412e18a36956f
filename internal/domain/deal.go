package domain

import (
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Store is the only storefront deals are aggregated for.
const Store = "Steam"

type DealType string

const (
	DealTypeSale     DealType = "sale"
	DealTypeGiveaway DealType = "giveaway"
)

type SourceID string

const (
	SourceCheapShark SourceID = "cheapshark"
	SourceITAD       SourceID = "itad"
	SourceFallback   SourceID = "fallback"
)

// Deal is the canonical, source-agnostic discount record.
type Deal struct {
	Title           string          `json:"title"`
	SteamAppID      int64           `json:"steamAppID"`
	SalePrice       decimal.Decimal `json:"salePrice"`
	NormalPrice     decimal.Decimal `json:"normalPrice"`
	Discount        int             `json:"discount"`
	Expiry          *int64          `json:"expiry"`
	ExpiryEstimated bool            `json:"expiryIsEstimated"`
	Store           string          `json:"store"`
	Type            DealType        `json:"type"`
	Source          SourceID        `json:"source"`
	URL             string          `json:"url"`
}

type dealJSON struct {
	Title           string      `json:"title"`
	SteamAppID      int64       `json:"steamAppID"`
	SalePrice       json.Number `json:"salePrice"`
	NormalPrice     json.Number `json:"normalPrice"`
	Discount        int         `json:"discount"`
	Expiry          *int64      `json:"expiry"`
	ExpiryEstimated bool        `json:"expiryIsEstimated"`
	Store           string      `json:"store"`
	Type            DealType    `json:"type"`
	Source          SourceID    `json:"source"`
	URL             string      `json:"url"`
}

// MarshalJSON renders prices as JSON numbers instead of decimal's quoted strings.
func (d Deal) MarshalJSON() ([]byte, error) {
	return json.Marshal(dealJSON{
		Title:           d.Title,
		SteamAppID:      d.SteamAppID,
		SalePrice:       json.Number(d.SalePrice.String()),
		NormalPrice:     json.Number(d.NormalPrice.String()),
		Discount:        d.Discount,
		Expiry:          d.Expiry,
		ExpiryEstimated: d.ExpiryEstimated,
		Store:           d.Store,
		Type:            d.Type,
		Source:          d.Source,
		URL:             d.URL,
	})
}

// IsGiveaway reports whether the deal is free to claim.
func (d Deal) IsGiveaway() bool {
	return d.SalePrice.IsZero()
}

// Package fallback serves a small bundled deal list when every upstream
// comes back empty.
package fallback

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"deal_aggregator/internal/domain"
	"deal_aggregator/internal/normalize"
)

//go:embed deals.json
var bundled []byte

type record struct {
	Title       string          `json:"title"`
	SteamAppID  int64           `json:"steamAppID"`
	SalePrice   decimal.Decimal `json:"salePrice"`
	NormalPrice decimal.Decimal `json:"normalPrice"`
	Discount    int             `json:"discount"`
}

// Loader builds fallback deals with estimated expiries.
type Loader struct {
	data  []byte
	table normalize.ExpiryTable
}

func NewLoader(table normalize.ExpiryTable) *Loader {
	return &Loader{data: bundled, table: table}
}

// NewLoaderFromBytes is used to load a dataset other than the bundled one.
func NewLoaderFromBytes(data []byte, table normalize.ExpiryTable) *Loader {
	return &Loader{data: data, table: table}
}

// Load decodes the dataset. Expiries are always estimates relative to now,
// since a static file cannot know when a sale ends.
func (l *Loader) Load(now time.Time) ([]domain.Deal, error) {
	var records []record
	if err := json.Unmarshal(l.data, &records); err != nil {
		return nil, fmt.Errorf("decode fallback dataset: %w", err)
	}

	deals := make([]domain.Deal, 0, len(records))
	for _, r := range records {
		title := strings.TrimSpace(r.Title)
		discount := normalize.Discount(decimal.NewFromInt(int64(r.Discount)), r.SalePrice, r.NormalPrice)
		expiry := l.table.Estimate(now, discount)

		deals = append(deals, domain.Deal{
			Title:           title,
			SteamAppID:      r.SteamAppID,
			SalePrice:       r.SalePrice,
			NormalPrice:     r.NormalPrice,
			Discount:        discount,
			Expiry:          &expiry,
			ExpiryEstimated: true,
			Store:           domain.Store,
			Type:            normalize.Type(r.SalePrice),
			Source:          domain.SourceFallback,
			URL:             normalize.StoreURL(r.SteamAppID, title),
		})
	}
	return deals, nil
}

package cheapshark

import "deal_aggregator/internal/normalize"

// Record is one entry of the CheapShark deals listing. Prices and ids arrive
// as strings, so they are decoded leniently.
type Record struct {
	DealID      string           `json:"dealID"`
	Title       string           `json:"title"`
	StoreID     normalize.Number `json:"storeID"`
	SteamAppID  normalize.Number `json:"steamAppID"`
	SalePrice   normalize.Number `json:"salePrice"`
	NormalPrice normalize.Number `json:"normalPrice"`
	Savings     normalize.Number `json:"savings"`
	DealRating  normalize.Number `json:"dealRating"`
	DealExpires normalize.Number `json:"dealExpires"`
	LastChange  normalize.Number `json:"lastChange"`
}

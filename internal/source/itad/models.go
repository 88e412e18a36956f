package itad

import (
	json "github.com/goccy/go-json"

	"deal_aggregator/internal/normalize"
)

// Record is one entry of the IsThereAnyDeal v01 deals listing. Field names
// changed between API revisions, so both spellings are accepted.
type Record struct {
	AppID    normalize.Number `json:"app_id"`
	App      *App             `json:"app"`
	Title    string           `json:"title"`
	PriceNew normalize.Number `json:"price_new"`
	Price    normalize.Number `json:"price"`
	PriceOld normalize.Number `json:"price_old"`
	Regular  normalize.Number `json:"regular"`
	Cut      normalize.Number `json:"cut"`
	Expiry   normalize.Number `json:"expiry"`
}

type App struct {
	ID normalize.Number `json:"id"`
}

// envelope covers every non-array response shape the listing returns.
type envelope struct {
	Error            string            `json:"error"`
	ErrorDescription string            `json:"error_description"`
	Deals            []json.RawMessage `json:"deals"`
	Data             *struct {
		List []json.RawMessage `json:"list"`
	} `json:"data"`
}

package api

import (
	"time"

	"investtracker/pkg/tracker"
)

type positionPayload struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	ManualType  bool    `json:"manual_type"`
	Quantity    float64 `json:"quantity"`
	AvgBuyPrice float64 `json:"avg_buy_price"`
	Currency    string  `json:"currency"`
	Broker      string  `json:"broker"`
}

func (p positionPayload) toPosition() tracker.Position {
	return tracker.Position{
		Symbol:      p.Symbol,
		Name:        p.Name,
		Type:        tracker.AssetType(p.Type),
		ManualType:  p.ManualType && p.Type != "",
		Quantity:    p.Quantity,
		AvgBuyPrice: p.AvgBuyPrice,
		Currency:    p.Currency,
		Broker:      p.Broker,
	}
}

type addPositionsPayload struct {
	Positions []positionPayload `json:"positions"`
}

type transactionPayload struct {
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Broker   string  `json:"broker"`
	Date     string  `json:"date"`
	Type     string  `json:"type"`
}

func (p transactionPayload) toTransaction() tracker.Transaction {
	return tracker.Transaction{
		Symbol:   p.Symbol,
		Name:     p.Name,
		Quantity: p.Quantity,
		Price:    p.Price,
		Currency: p.Currency,
		Broker:   p.Broker,
		Date:     p.Date,
		Type:     p.Type,
	}
}

type addTransactionsPayload struct {
	Transactions []transactionPayload `json:"transactions"`
}

type remapPayload struct {
	Symbol   string `json:"symbol"`
	Broker   string `json:"broker"`
	Ticker   string `json:"ticker"`
	Category string `json:"category"`
	Manual   bool   `json:"manual"`
}

type deleteHistoryPayload struct {
	Before string `json:"before"`
}

type portfolioSummary struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	BaseCurrency          string     `json:"base_currency"`
	Provider              string     `json:"market_data_provider"`
	UpdateIntervalSeconds int        `json:"update_interval"`
	ImportDir             string     `json:"import_dir,omitempty"`
	ComputedAt            *time.Time `json:"computed_at,omitempty"`
	Stale                 bool       `json:"stale"`
	LastError             string     `json:"last_error,omitempty"`
	NextRefresh           *time.Time `json:"next_refresh,omitempty"`
}

type storageInfoResponse struct {
	DataDir   string         `json:"data_dir"`
	DBPath    string         `json:"db_path"`
	Snapshots map[string]int `json:"snapshots"`
}

package binance

import "encoding/json"

// ExchangeInfoResponse is the /fapi/v1/exchangeInfo payload reduced to the
// fields symbol discovery needs.
type ExchangeInfoResponse struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo describes one futures instrument.
type SymbolInfo struct {
	Symbol       string `json:"symbol"`       // e.g., "BTCUSDT"
	Status       string `json:"status"`       // e.g., "TRADING"
	QuoteAsset   string `json:"quoteAsset"`   // e.g., "USDT"
	ContractType string `json:"contractType"` // e.g., "PERPETUAL"
}

// Ticker24h is one entry of the /fapi/v1/ticker/24hr statistics.
// Numeric fields arrive as strings.
type Ticker24h struct {
	Symbol      string `json:"symbol"`
	QuoteVolume string `json:"quoteVolume"` // 24h traded value in the quote asset
	LastPrice   string `json:"lastPrice"`
}

// streamEnvelope wraps payloads delivered over a multiplexed connection.
// Single-stream connections deliver the payload bare.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// tradeMessage is the raw trade tick. Price and quantity arrive as strings.
type tradeMessage struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"` // milliseconds since epoch
}

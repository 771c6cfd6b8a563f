package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Trade is one normalized trade tick.
type Trade struct {
	Symbol   string
	Price    float64
	Quantity float64
	Time     time.Time
}

// ParseTrade normalizes a wire message into a Trade. Multiplexed envelopes
// (with a "data" field) are unwrapped first. Messages missing any required
// field yield an error; callers drop and log them.
func ParseTrade(msg []byte) (Trade, error) {
	var env streamEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return Trade{}, fmt.Errorf("decode message: %w", err)
	}

	payload := msg
	if len(env.Data) > 0 {
		payload = env.Data
	}

	var raw tradeMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Trade{}, fmt.Errorf("decode trade payload: %w", err)
	}

	if raw.Symbol == "" || raw.Price == "" || raw.Quantity == "" || raw.TradeTime == 0 {
		return Trade{}, fmt.Errorf("trade message missing required fields: %s", payload)
	}

	price, err := strconv.ParseFloat(raw.Price, 64)
	if err != nil {
		return Trade{}, fmt.Errorf("parse price %q: %w", raw.Price, err)
	}
	quantity, err := strconv.ParseFloat(raw.Quantity, 64)
	if err != nil {
		return Trade{}, fmt.Errorf("parse quantity %q: %w", raw.Quantity, err)
	}
	if price <= 0 || quantity <= 0 {
		return Trade{}, fmt.Errorf("non-positive trade values: price=%v quantity=%v", price, quantity)
	}

	return Trade{
		Symbol:   raw.Symbol,
		Price:    price,
		Quantity: quantity,
		Time:     time.UnixMilli(raw.TradeTime),
	}, nil
}

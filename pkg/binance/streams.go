package binance

import "strings"

// StreamName returns the trade stream name for a symbol,
// e.g. "BTCUSDT" -> "btcusdt@trade".
func StreamName(symbol string) string {
	return strings.ToLower(symbol) + "@trade"
}

// SymbolFromStream recovers the symbol from a stream name,
// e.g. "btcusdt@trade" -> "BTCUSDT".
func SymbolFromStream(stream string) string {
	name, _, _ := strings.Cut(stream, "@")
	return strings.ToUpper(name)
}

// MultiplexURL builds the combined-stream endpoint for one connection
// carrying multiple streams.
func MultiplexURL(base string, streams []string) string {
	return strings.TrimRight(base, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

// SingleStreamURL builds the endpoint for a dedicated per-stream connection.
func SingleStreamURL(base, stream string) string {
	return strings.TrimRight(base, "/") + "/ws/" + stream
}

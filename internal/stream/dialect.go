package stream

import (
	"strings"
	"time"

	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/pair"
	"github.com/quotefeed/quotefeed/internal/source"
)

// Update is one price observation decoded from a stream frame.
type Update struct {
	Identifier string
	Price      string
	ReceivedAt time.Time
}

// Dialect captures one vendor's WebSocket conventions: endpoint, wire
// identifiers, subscribe/unsubscribe framing and message decoding.
type Dialect interface {
	Name() source.Name
	URL() string

	// Identifier maps a pair to its wire key (e.g. "btcusdt@ticker",
	// "BTC-USD"). Errors mean the dialect cannot express the pair.
	Identifier(p pair.Pair) (string, error)

	// SubscribeFrames/UnsubscribeFrames render identifiers into outbound
	// frames. Dialects without multi-identifier frames return one frame
	// per identifier.
	SubscribeFrames(identifiers []string) []any
	UnsubscribeFrames(identifiers []string) []any

	// Parse decodes an inbound frame into price updates. Non-ticker
	// frames (acks, heartbeats) decode to an empty slice.
	Parse(data []byte) []Update
}

// tether maps USD to the USDT listing used by the crypto exchanges.
func tether(sym string) string {
	up := strings.ToUpper(sym)
	if up == "USD" {
		return "USDT"
	}
	return up
}

// DialectFor returns the dialect for a streaming-capable source, or false
// for REST-only sources.
func DialectFor(name source.Name, cfg config.SourceConfig) (Dialect, bool) {
	switch name {
	case source.Binance:
		return &binanceDialect{}, true
	case source.OKX:
		return &okxDialect{}, true
	case source.Kraken:
		return &krakenDialect{}, true
	case source.Coinbase:
		return &coinbaseDialect{}, true
	case source.CryptoCompare:
		return &cryptocompareDialect{apiKey: cfg.APIKey}, true
	case source.Finnhub:
		return &finnhubDialect{apiKey: cfg.APIKey}, true
	}
	return nil, false
}

package stream

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/quotefeed/quotefeed/internal/pair"
	"github.com/quotefeed/quotefeed/internal/source"
)

// coinbaseDialect speaks the Coinbase Exchange ticker channel.
//
//	→ {"type":"subscribe","channels":[{"name":"ticker","product_ids":["BTC-USD"]}]}
//	← {"type":"ticker","product_id":"BTC-USD","price":"67890.12","time":"2026-08-24T12:00:00.000000Z"}
type coinbaseDialect struct{}

func (d *coinbaseDialect) Name() source.Name { return source.Coinbase }
func (d *coinbaseDialect) URL() string       { return "wss://ws-feed.exchange.coinbase.com" }

func (d *coinbaseDialect) Identifier(p pair.Pair) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	return strings.ToUpper(p.Base) + "-" + strings.ToUpper(p.Quote), nil
}

type coinbaseChannel struct {
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

type coinbaseFrame struct {
	Type     string            `json:"type"`
	Channels []coinbaseChannel `json:"channels"`
}

func coinbaseFrames(typ string, identifiers []string) []any {
	return []any{coinbaseFrame{
		Type:     typ,
		Channels: []coinbaseChannel{{Name: "ticker", ProductIDs: identifiers}},
	}}
}

func (d *coinbaseDialect) SubscribeFrames(identifiers []string) []any {
	return coinbaseFrames("subscribe", identifiers)
}

func (d *coinbaseDialect) UnsubscribeFrames(identifiers []string) []any {
	return coinbaseFrames("unsubscribe", identifiers)
}

func (d *coinbaseDialect) Parse(data []byte) []Update {
	var msg struct {
		Type      string `json:"type"`
		ProductID string `json:"product_id"`
		Price     string `json:"price"`
		Time      string `json:"time"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "ticker" || msg.Price == "" {
		return nil
	}
	var receivedAt time.Time
	if ts, err := time.Parse(time.RFC3339Nano, msg.Time); err == nil {
		receivedAt = ts
	}
	return []Update{{Identifier: msg.ProductID, Price: msg.Price, ReceivedAt: receivedAt}}
}

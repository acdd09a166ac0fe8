package stream

import (
	"encoding/json"
	"strings"

	"github.com/quotefeed/quotefeed/internal/pair"
	"github.com/quotefeed/quotefeed/internal/source"
)

// krakenDialect speaks the Kraken v1 ticker channel. The WS API uses
// friendly slash-separated names (XBT/USD), not the REST canonical codes.
//
//	→ {"event":"subscribe","pair":["XBT/USD"],"subscription":{"name":"ticker"}}
//	← [42,{"c":["67890.10000","0.01"],...},"ticker","XBT/USD"]
type krakenDialect struct{}

func (d *krakenDialect) Name() source.Name { return source.Kraken }
func (d *krakenDialect) URL() string       { return "wss://ws.kraken.com" }

func (d *krakenDialect) Identifier(p pair.Pair) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	return krakenWSAsset(p.Base) + "/" + krakenWSAsset(p.Quote), nil
}

func krakenWSAsset(sym string) string {
	up := strings.ToUpper(sym)
	if up == "BTC" {
		return "XBT"
	}
	return up
}

type krakenFrame struct {
	Event        string   `json:"event"`
	Pair         []string `json:"pair"`
	Subscription struct {
		Name string `json:"name"`
	} `json:"subscription"`
}

func krakenFrames(event string, identifiers []string) []any {
	f := krakenFrame{Event: event, Pair: identifiers}
	f.Subscription.Name = "ticker"
	return []any{f}
}

func (d *krakenDialect) SubscribeFrames(identifiers []string) []any {
	return krakenFrames("subscribe", identifiers)
}

func (d *krakenDialect) UnsubscribeFrames(identifiers []string) []any {
	return krakenFrames("unsubscribe", identifiers)
}

func (d *krakenDialect) Parse(data []byte) []Update {
	// Ticker updates are arrays; event messages (acks, heartbeats) are
	// objects and fall out of the array decode.
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) < 4 {
		return nil
	}

	var ticker struct {
		C []string `json:"c"`
	}
	if err := json.Unmarshal(parts[1], &ticker); err != nil || len(ticker.C) == 0 {
		return nil
	}
	var identifier string
	if err := json.Unmarshal(parts[len(parts)-1], &identifier); err != nil || identifier == "" {
		return nil
	}
	return []Update{{Identifier: identifier, Price: ticker.C[0]}}
}

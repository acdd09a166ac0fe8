package stream

import (
	"encoding/json"
	"time"

	"github.com/quotefeed/quotefeed/internal/pair"
	"github.com/quotefeed/quotefeed/internal/source"
)

// finnhubDialect speaks the Finnhub trade stream. Finnhub subscribes one
// symbol per frame, so each identifier renders to its own message.
//
//	→ {"type":"subscribe","symbol":"BINANCE:BTCUSDT"}
//	← {"type":"trade","data":[{"s":"BINANCE:BTCUSDT","p":67890.12,"t":1712345678000,"v":0.01}]}
type finnhubDialect struct {
	apiKey string
}

func (d *finnhubDialect) Name() source.Name { return source.Finnhub }
func (d *finnhubDialect) URL() string       { return "wss://ws.finnhub.io?token=" + d.apiKey }

func (d *finnhubDialect) Identifier(p pair.Pair) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	return "BINANCE:" + tether(p.Base) + tether(p.Quote), nil
}

type finnhubFrame struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

func finnhubFrames(typ string, identifiers []string) []any {
	out := make([]any, len(identifiers))
	for i, id := range identifiers {
		out[i] = finnhubFrame{Type: typ, Symbol: id}
	}
	return out
}

func (d *finnhubDialect) SubscribeFrames(identifiers []string) []any {
	return finnhubFrames("subscribe", identifiers)
}

func (d *finnhubDialect) UnsubscribeFrames(identifiers []string) []any {
	return finnhubFrames("unsubscribe", identifiers)
}

func (d *finnhubDialect) Parse(data []byte) []Update {
	var msg struct {
		Type string `json:"type"`
		Data []struct {
			Symbol string      `json:"s"`
			Price  json.Number `json:"p"`
			TS     int64       `json:"t"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "trade" {
		return nil
	}

	out := make([]Update, 0, len(msg.Data))
	for _, trade := range msg.Data {
		if trade.Price == "" {
			continue
		}
		out = append(out, Update{
			Identifier: trade.Symbol,
			Price:      trade.Price.String(),
			ReceivedAt: time.UnixMilli(trade.TS),
		})
	}
	return out
}

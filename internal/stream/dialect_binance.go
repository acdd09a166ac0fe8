package stream

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/quotefeed/quotefeed/internal/pair"
	"github.com/quotefeed/quotefeed/internal/source"
)

// binanceDialect speaks the Binance combined ticker stream.
//
//	→ {"method":"SUBSCRIBE","params":["btcusdt@ticker"],"id":1}
//	← {"e":"24hrTicker","E":1712345678000,"s":"BTCUSDT","c":"67890.12",...}
type binanceDialect struct {
	reqID atomic.Int64
}

func (d *binanceDialect) Name() source.Name { return source.Binance }
func (d *binanceDialect) URL() string       { return "wss://stream.binance.com:9443/ws" }

func (d *binanceDialect) Identifier(p pair.Pair) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	return strings.ToLower(tether(p.Base)+tether(p.Quote)) + "@ticker", nil
}

type binanceFrame struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

func (d *binanceDialect) SubscribeFrames(identifiers []string) []any {
	return []any{binanceFrame{Method: "SUBSCRIBE", Params: identifiers, ID: d.reqID.Add(1)}}
}

func (d *binanceDialect) UnsubscribeFrames(identifiers []string) []any {
	return []any{binanceFrame{Method: "UNSUBSCRIBE", Params: identifiers, ID: d.reqID.Add(1)}}
}

func (d *binanceDialect) Parse(data []byte) []Update {
	var msg struct {
		Event   string `json:"e"`
		EventTS int64  `json:"E"`
		Symbol  string `json:"s"`
		Last    string `json:"c"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Event != "24hrTicker" || msg.Last == "" {
		return nil
	}
	return []Update{{
		Identifier: strings.ToLower(msg.Symbol) + "@ticker",
		Price:      msg.Last,
		ReceivedAt: time.UnixMilli(msg.EventTS),
	}}
}

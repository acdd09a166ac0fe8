package stream

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/quotefeed/quotefeed/internal/pair"
	"github.com/quotefeed/quotefeed/internal/source"
)

// okxDialect speaks the OKX public tickers channel.
//
//	→ {"op":"subscribe","args":[{"channel":"tickers","instId":"BTC-USDT"}]}
//	← {"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[{"last":"67890.1","ts":"1712345678000"}]}
type okxDialect struct{}

func (d *okxDialect) Name() source.Name { return source.OKX }
func (d *okxDialect) URL() string       { return "wss://ws.okx.com:8443/ws/v5/public" }

func (d *okxDialect) Identifier(p pair.Pair) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	return tether(p.Base) + "-" + tether(p.Quote), nil
}

type okxArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okxFrame struct {
	Op   string   `json:"op"`
	Args []okxArg `json:"args"`
}

func okxFrames(op string, identifiers []string) []any {
	args := make([]okxArg, len(identifiers))
	for i, id := range identifiers {
		args[i] = okxArg{Channel: "tickers", InstID: id}
	}
	return []any{okxFrame{Op: op, Args: args}}
}

func (d *okxDialect) SubscribeFrames(identifiers []string) []any {
	return okxFrames("subscribe", identifiers)
}

func (d *okxDialect) UnsubscribeFrames(identifiers []string) []any {
	return okxFrames("unsubscribe", identifiers)
}

func (d *okxDialect) Parse(data []byte) []Update {
	var msg struct {
		Arg  okxArg `json:"arg"`
		Data []struct {
			Last string `json:"last"`
			TS   string `json:"ts"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Arg.Channel != "tickers" {
		return nil
	}

	out := make([]Update, 0, len(msg.Data))
	for _, tick := range msg.Data {
		if tick.Last == "" {
			continue
		}
		var receivedAt time.Time
		if ms, err := strconv.ParseInt(tick.TS, 10, 64); err == nil {
			receivedAt = time.UnixMilli(ms)
		}
		out = append(out, Update{
			Identifier: msg.Arg.InstID,
			Price:      tick.Last,
			ReceivedAt: receivedAt,
		})
	}
	return out
}

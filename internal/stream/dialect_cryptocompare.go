package stream

import (
	"encoding/json"
	"strings"

	"github.com/quotefeed/quotefeed/internal/pair"
	"github.com/quotefeed/quotefeed/internal/source"
)

// cryptocompareDialect speaks the CryptoCompare v2 streamer. Subscription
// keys are tilde-joined: channel 5 is the CCCAGG aggregate index.
//
//	→ {"action":"SubAdd","subs":["5~CCCAGG~BTC~USD"]}
//	← {"TYPE":"5","MARKET":"CCCAGG","FROMSYMBOL":"BTC","TOSYMBOL":"USD","PRICE":67890.12}
type cryptocompareDialect struct {
	apiKey string
}

func (d *cryptocompareDialect) Name() source.Name { return source.CryptoCompare }

func (d *cryptocompareDialect) URL() string {
	return "wss://streamer.cryptocompare.com/v2?api_key=" + d.apiKey
}

func (d *cryptocompareDialect) Identifier(p pair.Pair) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	return "5~CCCAGG~" + strings.ToUpper(p.Base) + "~" + strings.ToUpper(p.Quote), nil
}

type cryptocompareFrame struct {
	Action string   `json:"action"`
	Subs   []string `json:"subs"`
}

func (d *cryptocompareDialect) SubscribeFrames(identifiers []string) []any {
	return []any{cryptocompareFrame{Action: "SubAdd", Subs: identifiers}}
}

func (d *cryptocompareDialect) UnsubscribeFrames(identifiers []string) []any {
	return []any{cryptocompareFrame{Action: "SubRemove", Subs: identifiers}}
}

func (d *cryptocompareDialect) Parse(data []byte) []Update {
	var msg struct {
		Type       string      `json:"TYPE"`
		FromSymbol string      `json:"FROMSYMBOL"`
		ToSymbol   string      `json:"TOSYMBOL"`
		Price      json.Number `json:"PRICE"`
	}
	// Aggregate updates are partial; frames without a PRICE field carry
	// volume or flag changes only.
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "5" || msg.Price == "" {
		return nil
	}
	return []Update{{
		Identifier: "5~CCCAGG~" + msg.FromSymbol + "~" + msg.ToSymbol,
		Price:      msg.Price.String(),
	}}
}

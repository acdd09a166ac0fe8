package stream

import (
	"testing"

	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/pair"
	"github.com/quotefeed/quotefeed/internal/source"
)

func TestDialectIdentifiers(t *testing.T) {
	btcUSD := pair.Pair{Base: "BTC", Quote: "USD"}
	cases := []struct {
		dialect Dialect
		want    string
	}{
		{&binanceDialect{}, "btcusdt@ticker"},
		{&okxDialect{}, "BTC-USDT"},
		{&krakenDialect{}, "XBT/USD"},
		{&coinbaseDialect{}, "BTC-USD"},
		{&cryptocompareDialect{}, "5~CCCAGG~BTC~USD"},
		{&finnhubDialect{}, "BINANCE:BTCUSDT"},
	}
	for _, tc := range cases {
		t.Run(string(tc.dialect.Name()), func(t *testing.T) {
			got, err := tc.dialect.Identifier(btcUSD)
			if err != nil {
				t.Fatalf("Identifier: %v", err)
			}
			if got != tc.want {
				t.Errorf("Identifier: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDialectParse(t *testing.T) {
	cases := []struct {
		name       string
		dialect    Dialect
		frame      string
		identifier string
		price      string
	}{
		{
			"binance ticker",
			&binanceDialect{},
			`{"e":"24hrTicker","E":1712345678000,"s":"BTCUSDT","c":"67890.12"}`,
			"btcusdt@ticker",
			"67890.12",
		},
		{
			"okx ticker",
			&okxDialect{},
			`{"arg":{"channel":"tickers","instId":"BTC-USDT"},"data":[{"last":"67890.1","ts":"1712345678000"}]}`,
			"BTC-USDT",
			"67890.1",
		},
		{
			"kraken ticker array",
			&krakenDialect{},
			`[42,{"c":["67890.10000","0.01"]},"ticker","XBT/USD"]`,
			"XBT/USD",
			"67890.10000",
		},
		{
			"coinbase ticker",
			&coinbaseDialect{},
			`{"type":"ticker","product_id":"BTC-USD","price":"67890.12","time":"2026-08-24T12:00:00.000000Z"}`,
			"BTC-USD",
			"67890.12",
		},
		{
			"cryptocompare aggregate",
			&cryptocompareDialect{},
			`{"TYPE":"5","MARKET":"CCCAGG","FROMSYMBOL":"BTC","TOSYMBOL":"USD","PRICE":67890.12}`,
			"5~CCCAGG~BTC~USD",
			"67890.12",
		},
		{
			"finnhub trade",
			&finnhubDialect{},
			`{"type":"trade","data":[{"s":"BINANCE:BTCUSDT","p":67890.12,"t":1712345678000,"v":0.01}]}`,
			"BINANCE:BTCUSDT",
			"67890.12",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			updates := tc.dialect.Parse([]byte(tc.frame))
			if len(updates) != 1 {
				t.Fatalf("updates: got %d, want 1", len(updates))
			}
			if updates[0].Identifier != tc.identifier {
				t.Errorf("identifier: got %q, want %q", updates[0].Identifier, tc.identifier)
			}
			if updates[0].Price != tc.price {
				t.Errorf("price: got %q, want %q", updates[0].Price, tc.price)
			}
		})
	}
}

func TestDialectParse_IgnoresNonTickerFrames(t *testing.T) {
	cases := []struct {
		name    string
		dialect Dialect
		frame   string
	}{
		{"binance ack", &binanceDialect{}, `{"result":null,"id":1}`},
		{"okx ack", &okxDialect{}, `{"event":"subscribe","arg":{"channel":"tickers","instId":"BTC-USDT"}}`},
		{"kraken heartbeat", &krakenDialect{}, `{"event":"heartbeat"}`},
		{"kraken system status", &krakenDialect{}, `{"event":"systemStatus","status":"online"}`},
		{"coinbase subscriptions", &coinbaseDialect{}, `{"type":"subscriptions","channels":[]}`},
		{"cryptocompare volume only", &cryptocompareDialect{}, `{"TYPE":"5","FROMSYMBOL":"BTC","TOSYMBOL":"USD","VOLUMEDAY":123.4}`},
		{"finnhub ping", &finnhubDialect{}, `{"type":"ping"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if updates := tc.dialect.Parse([]byte(tc.frame)); len(updates) != 0 {
				t.Errorf("expected no updates, got %v", updates)
			}
		})
	}
}

func TestDialectFor_StreamingCapability(t *testing.T) {
	cfg := config.DefaultSourceConfig()
	// REST-only sources have no dialect.
	for _, name := range []string{"alphavantage", "coingecko", "exchangerate-host", "frankfurter"} {
		if _, ok := DialectFor(source.Name(name), cfg); ok {
			t.Errorf("%s must not have a stream dialect", name)
		}
	}
	for _, name := range []string{"binance", "okx", "kraken", "coinbase", "cryptocompare", "finnhub"} {
		if _, ok := DialectFor(source.Name(name), cfg); !ok {
			t.Errorf("%s must have a stream dialect", name)
		}
	}
}

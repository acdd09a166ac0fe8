package source

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/httpclient"
	"github.com/quotefeed/quotefeed/internal/pair"
)

const binanceBaseURL = "https://api.binance.com"

// binanceSource fetches spot tickers from Binance.
//
//	GET /api/v3/ticker/price?symbol=BTCUSDT
//	→ {"symbol":"BTCUSDT","price":"67890.12000000"}
//
//	GET /api/v3/ticker/price?symbols=["BTCUSDT","ETHUSDT"]
//	→ [{"symbol":"BTCUSDT","price":"..."},...]
//
// Binance lists tether pairs, not dollar pairs; USD is rewritten to USDT on
// the wire and the caller's symbols are preserved in the result.
type binanceSource struct {
	cfg    config.SourceConfig
	client *httpclient.Client
}

func newBinance(cfg config.SourceConfig, deps Deps) (Source, error) {
	client, err := newClient(binanceBaseURL, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &binanceSource{cfg: cfg, client: client}, nil
}

func (s *binanceSource) Name() Name    { return Binance }
func (s *binanceSource) Enabled() bool { return s.cfg.Enabled }

func binanceSymbol(p pair.Pair) string {
	return tetherize(p.Base) + tetherize(p.Quote)
}

// tetherize maps USD to Binance/OKX's USDT listing.
func tetherize(sym string) string {
	up := strings.ToUpper(sym)
	if up == "USD" {
		return "USDT"
	}
	return up
}

type binanceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (s *binanceSource) FetchQuote(ctx context.Context, p pair.Pair) (pair.Quote, error) {
	resp, err := s.client.Get(ctx, "/api/v3/ticker/price", url.Values{
		"symbol": {binanceSymbol(p)},
	})
	if err != nil {
		return pair.Quote{}, s.mapError(p, err)
	}

	var t binanceTicker
	if err := parseBody(Binance, resp.Body, &t); err != nil {
		return pair.Quote{}, err
	}
	if t.Price == "" {
		return pair.Quote{}, &MalformedError{Source: Binance, Err: fmt.Errorf("empty price for %s", t.Symbol)}
	}
	return quoteAt(Binance, p, t.Price, time.Now()), nil
}

func (s *binanceSource) FetchQuotes(ctx context.Context, pairs []pair.Pair) ([]pair.Quote, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	// Distinct requested pairs can collapse onto one wire symbol (BTC/USD
	// and BTC/USDT both become BTCUSDT), so each symbol fans back out to
	// every pair that asked for it. Exact repeats still collapse.
	bySymbol := make(map[string][]pair.Pair, len(pairs))
	symbols := make([]string, 0, len(pairs))
	for _, p := range pairs {
		sym := binanceSymbol(p)
		if _, dup := bySymbol[sym]; !dup {
			symbols = append(symbols, fmt.Sprintf("%q", sym))
		}
		if !slices.Contains(bySymbol[sym], p) {
			bySymbol[sym] = append(bySymbol[sym], p)
		}
	}

	resp, err := s.client.Get(ctx, "/api/v3/ticker/price", url.Values{
		"symbols": {"[" + strings.Join(symbols, ",") + "]"},
	})
	if err != nil {
		return nil, s.mapError(pairs[0], err)
	}

	var tickers []binanceTicker
	if err := parseBody(Binance, resp.Body, &tickers); err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]pair.Quote, 0, len(pairs))
	for _, t := range tickers {
		if t.Price == "" {
			continue
		}
		for _, p := range bySymbol[t.Symbol] {
			out = append(out, quoteAt(Binance, p, t.Price, now))
		}
	}
	return out, nil
}

func (s *binanceSource) MaxBatchSize() int { return s.cfg.MaxBatchSize }

// mapError handles Binance's habit of answering unknown symbols with a 400
// instead of a 404.
func (s *binanceSource) mapError(p pair.Pair, err error) error {
	if st, ok := httpclient.AsStatusError(err); ok && st.StatusCode == 400 &&
		strings.Contains(string(st.Body), "Invalid symbol") {
		return &PriceNotFoundError{Source: Binance, Pair: p}
	}
	return mapHTTPError(Binance, p, err)
}

package source

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/httpclient"
	"github.com/quotefeed/quotefeed/internal/pair"
)

const coingeckoBaseURL = "https://api.coingecko.com"

// coingeckoSource fetches simple prices from CoinGecko.
//
//	GET /api/v3/simple/price?ids=bitcoin&vs_currencies=usd
//	→ {"bitcoin":{"usd":67890.12}}
//
// CoinGecko keys by coin id, not ticker symbol, so the base side goes
// through the symbol resolver first. Prices arrive as JSON numbers and are
// kept as json.Number to avoid float rounding.
type coingeckoSource struct {
	cfg     config.SourceConfig
	client  *httpclient.Client
	symbols SymbolResolver
}

func newCoinGecko(cfg config.SourceConfig, deps Deps) (Source, error) {
	client, err := newClient(coingeckoBaseURL, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &coingeckoSource{cfg: cfg, client: client, symbols: deps.Symbols}, nil
}

func (s *coingeckoSource) Name() Name    { return CoinGecko }
func (s *coingeckoSource) Enabled() bool { return s.cfg.Enabled }

func (s *coingeckoSource) FetchQuote(ctx context.Context, p pair.Pair) (pair.Quote, error) {
	quotes, err := s.FetchQuotes(ctx, []pair.Pair{p})
	if err != nil {
		return pair.Quote{}, err
	}
	if len(quotes) == 0 {
		return pair.Quote{}, &PriceNotFoundError{Source: CoinGecko, Pair: p}
	}
	return quotes[0], nil
}

func (s *coingeckoSource) FetchQuotes(ctx context.Context, pairs []pair.Pair) ([]pair.Quote, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	type resolved struct {
		p  pair.Pair
		id string
		vs string
	}
	items := make([]resolved, 0, len(pairs))
	ids := make([]string, 0, len(pairs))
	vs := make([]string, 0, len(pairs))
	seenID := make(map[string]bool, len(pairs))
	seenVS := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		id, ok := s.symbols.Resolve(p.Base)
		if !ok {
			if len(pairs) == 1 {
				return nil, &PriceNotFoundError{Source: CoinGecko, Pair: p}
			}
			continue
		}
		cur := strings.ToLower(p.Quote)
		items = append(items, resolved{p: p, id: id, vs: cur})
		if !seenID[id] {
			seenID[id] = true
			ids = append(ids, id)
		}
		if !seenVS[cur] {
			seenVS[cur] = true
			vs = append(vs, cur)
		}
	}
	if len(items) == 0 {
		return nil, &PriceNotFoundError{Source: CoinGecko, Pair: pairs[0]}
	}

	resp, err := s.client.Get(ctx, "/api/v3/simple/price", url.Values{
		"ids":           {strings.Join(ids, ",")},
		"vs_currencies": {strings.Join(vs, ",")},
	})
	if err != nil {
		return nil, mapHTTPError(CoinGecko, items[0].p, err)
	}

	var prices map[string]map[string]any
	if err := parseBody(CoinGecko, resp.Body, &prices); err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]pair.Quote, 0, len(items))
	for _, item := range items {
		price, ok := numString(prices[item.id][item.vs])
		if !ok {
			if len(pairs) == 1 {
				return nil, &PriceNotFoundError{Source: CoinGecko, Pair: item.p}
			}
			continue
		}
		out = append(out, quoteAt(CoinGecko, item.p, price, now))
	}
	return out, nil
}

func (s *coingeckoSource) MaxBatchSize() int { return s.cfg.MaxBatchSize }

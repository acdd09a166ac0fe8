// Package source implements the market-data provider adapters behind a
// uniform quote contract. Each adapter normalizes one vendor's REST API;
// capability interfaces mark batch support. WebSocket streaming lives in
// internal/stream with one dialect per streaming-capable source.
package source

import (
	"context"
	"net/url"
	"time"

	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/httpclient"
	"github.com/quotefeed/quotefeed/internal/pair"
)

// Name identifies a market-data provider.
type Name string

const (
	AlphaVantage     Name = "alphavantage"
	Binance          Name = "binance"
	Coinbase         Name = "coinbase"
	CoinGecko        Name = "coingecko"
	CryptoCompare    Name = "cryptocompare"
	ExchangerateHost Name = "exchangerate-host"
	Finnhub          Name = "finnhub"
	Frankfurter      Name = "frankfurter"
	Kraken           Name = "kraken"
	OKX              Name = "okx"
)

// AllNames enumerates every supported source.
var AllNames = []Name{
	AlphaVantage,
	Binance,
	Coinbase,
	CoinGecko,
	CryptoCompare,
	ExchangerateHost,
	Finnhub,
	Frankfurter,
	Kraken,
	OKX,
}

// Known reports whether name is a supported source.
func Known(name string) bool {
	for _, n := range AllNames {
		if string(n) == name {
			return true
		}
	}
	return false
}

// Source is the uniform contract over heterogeneous provider APIs.
// FetchQuote returns the current price for the pair; unsupported pairs
// surface as PriceNotFoundError. The returned Quote preserves the
// requester's original symbols even when the adapter rewrites them for the
// wire (USD→USDT, BTC→XBT).
type Source interface {
	Name() Name
	Enabled() bool
	FetchQuote(ctx context.Context, p pair.Pair) (pair.Quote, error)
}

// BatchSource is implemented by adapters whose upstream supports fetching
// several pairs in one request.
type BatchSource interface {
	Source
	FetchQuotes(ctx context.Context, pairs []pair.Pair) ([]pair.Quote, error)
	// MaxBatchSize caps pairs per upstream call; 0 means unbounded.
	MaxBatchSize() int
}

// clientBuilder starts an HTTP client configuration with the per-host
// limiter derived from the source config. Adapters add their own headers or
// default params before Build.
func clientBuilder(baseURL string, cfg config.SourceConfig, deps Deps) *httpclient.Builder {
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil {
		host = u.Hostname()
	}

	rps := 0.0
	if cfg.RPS != nil {
		rps = *cfg.RPS
	}
	limiter := deps.Limiters.For(host, rps, cfg.MaxConcurrent, cfg.MaxRetries)

	b := httpclient.NewBuilder().
		BaseURL(baseURL).
		Timeout(cfg.Timeout.Std()).
		Limiter(limiter).
		Debug(deps.Debug)
	if cfg.UseProxy {
		if cfg.ProxyURL != "" {
			b = b.Proxy(cfg.ProxyURL)
		} else {
			b = b.EnvProxy()
		}
	}
	return b
}

func newClient(baseURL string, cfg config.SourceConfig, deps Deps) (*httpclient.Client, error) {
	return clientBuilder(baseURL, cfg, deps).Build()
}

// quoteAt assembles a Quote preserving the caller's pair symbols.
func quoteAt(name Name, p pair.Pair, price string, receivedAt time.Time) pair.Quote {
	return pair.Quote{
		Pair:       p,
		Source:     string(name),
		Price:      price,
		ReceivedAt: receivedAt,
	}
}

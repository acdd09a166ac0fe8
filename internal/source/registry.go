package source

import (
	"fmt"
	"log"

	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/ratelimit"
)

// SymbolResolver maps ticker symbols to provider-native identifiers.
// CoinGecko keys its endpoints by coin id ("bitcoin"), not symbol ("BTC");
// internal/symbolmap implements this.
type SymbolResolver interface {
	Resolve(symbol string) (id string, ok bool)
}

// Deps carries the shared infrastructure adapters are built on.
type Deps struct {
	Limiters *ratelimit.Registry
	Symbols  SymbolResolver
	Debug    bool
}

// Registry holds the constructed adapters and their configs. Sources are
// built once at startup; a config entry naming an unknown source is a
// startup error, not a silent skip.
type Registry struct {
	sources map[Name]Source
	configs map[Name]config.SourceConfig
}

// NewRegistry builds an adapter per configured source. Disabled sources are
// constructed too so Lookup can distinguish "disabled" from "unknown".
func NewRegistry(fileCfg *config.FileConfig, deps Deps) (*Registry, error) {
	r := &Registry{
		sources: make(map[Name]Source, len(fileCfg.Sources)),
		configs: make(map[Name]config.SourceConfig, len(fileCfg.Sources)),
	}

	for rawName, cfg := range fileCfg.Sources {
		if !Known(rawName) {
			return nil, &NotFoundError{Name: rawName}
		}
		name := Name(rawName)

		src, err := build(name, cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", name, err)
		}
		r.sources[name] = src
		r.configs[name] = cfg
		log.Printf("[source] configured %s (enabled=%v ttl=%s)", name, cfg.Enabled, cfg.TTL.Std())
	}
	return r, nil
}

func build(name Name, cfg config.SourceConfig, deps Deps) (Source, error) {
	switch name {
	case AlphaVantage:
		return newAlphaVantage(cfg, deps)
	case Binance:
		return newBinance(cfg, deps)
	case Coinbase:
		return newCoinbase(cfg, deps)
	case CoinGecko:
		return newCoinGecko(cfg, deps)
	case CryptoCompare:
		return newCryptoCompare(cfg, deps)
	case ExchangerateHost:
		return newExchangerateHost(cfg, deps)
	case Finnhub:
		return newFinnhub(cfg, deps)
	case Frankfurter:
		return newFrankfurter(cfg, deps)
	case Kraken:
		return newKraken(cfg, deps)
	case OKX:
		return newOKX(cfg, deps)
	}
	return nil, &NotFoundError{Name: string(name)}
}

// Lookup resolves a source by its request-path name. Unknown names and
// unconfigured-but-known names both surface as NotFoundError; configured
// sources with enabled=false surface as DisabledError.
func (r *Registry) Lookup(name string) (Source, error) {
	src, ok := r.sources[Name(name)]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	if !src.Enabled() {
		return nil, &DisabledError{Source: src.Name()}
	}
	return src, nil
}

// Config returns the config the source was built with.
func (r *Registry) Config(name Name) (config.SourceConfig, bool) {
	cfg, ok := r.configs[name]
	return cfg, ok
}

// Enabled returns the enabled sources in no particular order.
func (r *Registry) Enabled() []Source {
	out := make([]Source, 0, len(r.sources))
	for _, src := range r.sources {
		if src.Enabled() {
			out = append(out, src)
		}
	}
	return out
}

// Package refetch revalidates cached quotes for refetch-enabled sources
// shortly before they expire, so steady consumers rarely see a cold cache.
package refetch

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/pair"
	"github.com/quotefeed/quotefeed/internal/quotecache"
	"github.com/quotefeed/quotefeed/internal/registry"
	"github.com/quotefeed/quotefeed/internal/scanloop"
	"github.com/quotefeed/quotefeed/internal/source"
)

// maxLead caps how early an entry is revalidated before expiry.
const maxLead = 2 * time.Second

// scanConcurrency bounds parallel revalidations per scan pass; per-source
// limits still apply underneath in the rate limiter.
const scanConcurrency = 8

// Fetcher revalidates one (source, pair) upstream; the orchestrator's
// Refresh method is the production implementation.
type Fetcher func(ctx context.Context, sourceName string, p pair.Pair) error

// ConfigLookup exposes per-source configuration.
type ConfigLookup interface {
	Config(name source.Name) (config.SourceConfig, bool)
}

// Options wires the loop.
type Options struct {
	Pairs   *registry.Registry
	Cache   *quotecache.Cache
	Sources ConfigLookup
	Fetch   Fetcher
	// ScanInterval is the pause between scan passes. Zero uses the
	// scanloop default.
	ScanInterval time.Duration
}

// Loop periodically scans the pair registry and refetches entries that are
// missing or inside their revalidation lead. Missed deadlines simply
// coalesce into the next pass.
type Loop struct {
	pairs   *registry.Registry
	cache   *quotecache.Cache
	sources ConfigLookup
	fetch   Fetcher

	scanInterval time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

func New(opts Options) *Loop {
	interval := opts.ScanInterval
	if interval <= 0 {
		interval = scanloop.DefaultMinInterval
	}
	return &Loop{
		pairs:        opts.Pairs,
		cache:        opts.Cache,
		sources:      opts.Sources,
		fetch:        opts.Fetch,
		scanInterval: interval,
		stopCh:       make(chan struct{}),
	}
}

// Start launches the scan loop.
func (l *Loop) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		scanloop.Run(l.stopCh, l.scanInterval, scanloop.DefaultJitterRange, l.scan)
	}()
	log.Printf("[refetch] loop started (interval=%s)", l.scanInterval)
}

// Stop halts scanning and waits for the in-flight pass.
func (l *Loop) Stop() {
	close(l.stopCh)
	l.wg.Wait()
}

// leadFor returns how long before expiry an entry becomes due.
func leadFor(ttl time.Duration) time.Duration {
	lead := ttl / 4
	if lead > maxLead {
		lead = maxLead
	}
	return lead
}

func (l *Loop) scan() {
	var g errgroup.Group
	g.SetLimit(scanConcurrency)

	for _, reg := range l.pairs.Snapshot() {
		cfg, ok := l.sources.Config(source.Name(reg.Source))
		if !ok || !cfg.Refetch || !cfg.Enabled {
			continue
		}
		if !l.due(reg, cfg.TTL.Std()) {
			continue
		}

		g.Go(func() error {
			if err := l.fetch(context.Background(), reg.Source, reg.Pair); err != nil {
				log.Printf("[refetch] %s %s: %v", reg.Source, reg.Pair, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// due reports whether the cache entry for reg is absent or expiring within
// its lead.
func (l *Loop) due(reg *registry.Registration, ttl time.Duration) bool {
	q, ok := l.cache.Get(pair.KeyFor(reg.Source, reg.Pair))
	if !ok {
		return true
	}
	return time.Until(q.CachedAt.Add(ttl)) <= leadFor(ttl)
}

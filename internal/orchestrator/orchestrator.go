// Package orchestrator coordinates quote retrieval: cache-first reads,
// single-flight deduplicated fetches bounded by a per-request deadline, and
// write-back into the cache and pair registry.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/pair"
	"github.com/quotefeed/quotefeed/internal/quotecache"
	"github.com/quotefeed/quotefeed/internal/registry"
	"github.com/quotefeed/quotefeed/internal/singleflight"
	"github.com/quotefeed/quotefeed/internal/source"
)

// TimeoutError is the user-visible outcome of a request deadline. The
// underlying fetch keeps running and populates the cache on success.
type TimeoutError struct {
	Source string
	Pair   pair.Pair
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request for %s %s timed out", e.Source, e.Pair)
}

// SourceLookup resolves and describes configured sources; the production
// implementation is source.Registry.
type SourceLookup interface {
	Lookup(name string) (source.Source, error)
	Config(name source.Name) (config.SourceConfig, bool)
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Sources SourceLookup
	Cache   *quotecache.Cache
	Pairs   *registry.Registry
	// RequestTimeout bounds each user-visible request. Zero means 10s.
	RequestTimeout time.Duration
}

// Orchestrator serves GetQuote/GetQuotes on top of cache, single-flight and
// the source adapters.
type Orchestrator struct {
	sources        SourceLookup
	cache          *quotecache.Cache
	pairs          *registry.Registry
	requestTimeout time.Duration

	flight singleflight.Group[pair.Quote]
}

func New(opts Options) *Orchestrator {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &Orchestrator{
		sources:        opts.Sources,
		cache:          opts.Cache,
		pairs:          opts.Pairs,
		requestTimeout: opts.RequestTimeout,
	}
}

// GetQuote returns the current quote for (source, pair): fresh cache entry
// if present, otherwise one deduplicated upstream fetch.
func (o *Orchestrator) GetQuote(ctx context.Context, sourceName string, p pair.Pair) (pair.Quote, error) {
	if err := p.Validate(); err != nil {
		return pair.Quote{}, err
	}
	src, err := o.sources.Lookup(sourceName)
	if err != nil {
		return pair.Quote{}, err
	}

	o.pairs.Touch(sourceName, p)

	key := pair.KeyFor(sourceName, p)
	if q, ok := o.cache.Get(key); ok {
		return q, nil
	}
	return o.fetchOne(ctx, src, p)
}

// fetchOne runs the deduplicated fetch with the request deadline applied.
// The flight itself runs on a background context: a caller timing out must
// not cancel the fetch other waiters (and the cache) depend on.
func (o *Orchestrator) fetchOne(ctx context.Context, src source.Source, p pair.Pair) (pair.Quote, error) {
	sourceName := string(src.Name())
	ctx, cancel := context.WithTimeout(ctx, o.requestTimeout)
	defer cancel()

	flightKey := sourceName + "|" + p.String()
	q, _, err := o.flight.Do(ctx, flightKey, func() (pair.Quote, error) {
		fetched, fetchErr := src.FetchQuote(context.Background(), p)
		if fetchErr != nil {
			return pair.Quote{}, fetchErr
		}
		return o.store(sourceName, p, fetched), nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return pair.Quote{}, &TimeoutError{Source: sourceName, Pair: p}
		}
		return pair.Quote{}, err
	}
	return q, nil
}

// store writes a fetched quote into the cache with the source's TTL and
// marks the registry. Errors never reach here, so nothing stale is cached.
func (o *Orchestrator) store(sourceName string, p pair.Pair, q pair.Quote) pair.Quote {
	ttl := 10 * time.Second
	if cfg, ok := o.sources.Config(source.Name(sourceName)); ok {
		ttl = cfg.TTL.Std()
	}
	stored := o.cache.Set(pair.KeyFor(sourceName, p), q, ttl)
	o.pairs.TrackFetch(sourceName, p)
	return stored
}

// Refresh fetches (source, pair) upstream regardless of cache freshness and
// writes the result back. The refetch loop uses it to revalidate entries
// before they expire.
func (o *Orchestrator) Refresh(ctx context.Context, sourceName string, p pair.Pair) error {
	src, err := o.sources.Lookup(sourceName)
	if err != nil {
		return err
	}
	_, err = o.fetchOne(ctx, src, p)
	return err
}

// Result is the per-position outcome of a batched request.
type Result struct {
	Pair  pair.Pair
	Quote pair.Quote
	Err   error
}

// GetQuotes resolves a batch against one source. Positions are preserved,
// duplicates are fetched once, and errors are collected per pair — one bad
// symbol never fails its neighbors. Sources with a native batch endpoint
// get a single upstream call per chunk.
func (o *Orchestrator) GetQuotes(ctx context.Context, sourceName string, reqPairs []pair.Pair) ([]Result, error) {
	src, err := o.sources.Lookup(sourceName)
	if err != nil {
		return nil, err
	}

	type slot struct {
		quote pair.Quote
		err   error
		done  bool
	}
	slots := make(map[pair.Key]*slot, len(reqPairs))
	var misses []pair.Pair

	for _, p := range reqPairs {
		key := pair.KeyFor(sourceName, p)
		if _, seen := slots[key]; seen {
			continue
		}
		s := &slot{}
		slots[key] = s

		if err := p.Validate(); err != nil {
			s.err, s.done = err, true
			continue
		}
		o.pairs.Touch(sourceName, p)
		if q, ok := o.cache.Get(key); ok {
			s.quote, s.done = q, true
			continue
		}
		misses = append(misses, p)
	}

	if len(misses) > 0 {
		if batch, ok := src.(source.BatchSource); ok && len(misses) > 1 {
			o.fetchBatch(ctx, batch, misses, func(p pair.Pair, q pair.Quote, err error) {
				s := slots[pair.KeyFor(sourceName, p)]
				s.quote, s.err, s.done = q, err, true
			})
		} else {
			var g errgroup.Group
			g.SetLimit(o.concurrencyFor(src.Name()))
			for _, p := range misses {
				g.Go(func() error {
					q, err := o.fetchOne(ctx, src, p)
					s := slots[pair.KeyFor(sourceName, p)]
					s.quote, s.err, s.done = q, err, true
					return nil
				})
			}
			_ = g.Wait()
		}
	}

	out := make([]Result, len(reqPairs))
	for i, p := range reqPairs {
		s := slots[pair.KeyFor(sourceName, p)]
		out[i] = Result{Pair: p, Quote: s.quote, Err: s.err}
	}
	return out, nil
}

// fetchBatch chunks the misses by the adapter's batch cap and distributes
// the returned quotes. Pairs absent from the upstream response count as
// PriceNotFound.
func (o *Orchestrator) fetchBatch(ctx context.Context, batch source.BatchSource, misses []pair.Pair, set func(pair.Pair, pair.Quote, error)) {
	sourceName := string(batch.Name())
	ctx, cancel := context.WithTimeout(ctx, o.requestTimeout)
	defer cancel()

	chunkSize := batch.MaxBatchSize()
	if chunkSize <= 0 {
		chunkSize = len(misses)
	}

	for start := 0; start < len(misses); start += chunkSize {
		end := min(start+chunkSize, len(misses))
		chunk := misses[start:end]

		quotes, err := batch.FetchQuotes(ctx, chunk)
		if err != nil {
			for _, p := range chunk {
				set(p, pair.Quote{}, err)
			}
			continue
		}

		got := make(map[pair.Key]pair.Quote, len(quotes))
		for _, q := range quotes {
			got[pair.KeyFor(sourceName, q.Pair)] = q
		}
		for _, p := range chunk {
			if q, ok := got[pair.KeyFor(sourceName, p)]; ok {
				set(p, o.store(sourceName, p, q), nil)
			} else {
				set(p, pair.Quote{}, &source.PriceNotFoundError{Source: batch.Name(), Pair: p})
			}
		}
	}
}

func (o *Orchestrator) concurrencyFor(name source.Name) int {
	if cfg, ok := o.sources.Config(name); ok && cfg.MaxConcurrent > 0 {
		return cfg.MaxConcurrent
	}
	return 4
}

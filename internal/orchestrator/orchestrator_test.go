package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/pair"
	"github.com/quotefeed/quotefeed/internal/quotecache"
	"github.com/quotefeed/quotefeed/internal/registry"
	"github.com/quotefeed/quotefeed/internal/source"
)

type stubSource struct {
	name    source.Name
	enabled bool
	fetch   func(ctx context.Context, p pair.Pair) (pair.Quote, error)
}

func (s *stubSource) Name() source.Name { return s.name }
func (s *stubSource) Enabled() bool     { return s.enabled }
func (s *stubSource) FetchQuote(ctx context.Context, p pair.Pair) (pair.Quote, error) {
	return s.fetch(ctx, p)
}

type stubBatchSource struct {
	stubSource
	maxBatch   int
	fetchBatch func(ctx context.Context, pairs []pair.Pair) ([]pair.Quote, error)
}

func (s *stubBatchSource) FetchQuotes(ctx context.Context, pairs []pair.Pair) ([]pair.Quote, error) {
	return s.fetchBatch(ctx, pairs)
}
func (s *stubBatchSource) MaxBatchSize() int { return s.maxBatch }

type stubLookup struct {
	srcs map[string]source.Source
}

func (l *stubLookup) Lookup(name string) (source.Source, error) {
	src, ok := l.srcs[name]
	if !ok {
		return nil, &source.NotFoundError{Name: name}
	}
	if !src.Enabled() {
		return nil, &source.DisabledError{Source: src.Name()}
	}
	return src, nil
}

func (l *stubLookup) Config(name source.Name) (config.SourceConfig, bool) {
	cfg := config.DefaultSourceConfig()
	cfg.Enabled = true
	return cfg, true
}

func btcUSD() pair.Pair { return pair.Pair{Base: "BTC", Quote: "USD"} }

func priced(name source.Name, p pair.Pair, price string) pair.Quote {
	return pair.Quote{Pair: p, Source: string(name), Price: price, ReceivedAt: time.Now()}
}

func newTest(t *testing.T, srcs map[string]source.Source, timeout time.Duration) *Orchestrator {
	t.Helper()
	cache, err := quotecache.New(10_000)
	if err != nil {
		t.Fatalf("quotecache: %v", err)
	}
	t.Cleanup(cache.Close)
	return New(Options{
		Sources:        &stubLookup{srcs: srcs},
		Cache:          cache,
		Pairs:          registry.New(),
		RequestTimeout: timeout,
	})
}

func TestGetQuote_ConcurrentCallersShareOneFetch(t *testing.T) {
	var calls atomic.Int32
	gate := make(chan struct{})
	src := &stubSource{name: source.Binance, enabled: true,
		fetch: func(ctx context.Context, p pair.Pair) (pair.Quote, error) {
			calls.Add(1)
			<-gate
			return priced(source.Binance, p, "67890.12"), nil
		}}
	o := newTest(t, map[string]source.Source{"binance": src}, 5*time.Second)

	const n = 50
	var wg sync.WaitGroup
	quotes := make([]pair.Quote, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := o.GetQuote(context.Background(), "binance", btcUSD())
			if err != nil {
				t.Errorf("GetQuote: %v", err)
				return
			}
			quotes[i] = q
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("adapter calls: got %d, want 1", got)
	}
	for i := 1; i < n; i++ {
		if quotes[i].Price != quotes[0].Price || !quotes[i].ReceivedAt.Equal(quotes[0].ReceivedAt) {
			t.Fatalf("quote %d differs from quote 0", i)
		}
	}
}

func TestGetQuote_SecondCallHitsCache(t *testing.T) {
	var calls atomic.Int32
	src := &stubSource{name: source.Binance, enabled: true,
		fetch: func(ctx context.Context, p pair.Pair) (pair.Quote, error) {
			calls.Add(1)
			return priced(source.Binance, p, "67890.12"), nil
		}}
	o := newTest(t, map[string]source.Source{"binance": src}, 5*time.Second)

	first, err := o.GetQuote(context.Background(), "binance", btcUSD())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := o.GetQuote(context.Background(), "binance", btcUSD())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("adapter calls: got %d, want 1", calls.Load())
	}
	if !second.ReceivedAt.Equal(first.ReceivedAt) {
		t.Error("cached quote must carry the original receivedAt")
	}
}

func TestGetQuote_TimeoutThenCachePopulated(t *testing.T) {
	done := make(chan struct{})
	src := &stubSource{name: source.Binance, enabled: true,
		fetch: func(ctx context.Context, p pair.Pair) (pair.Quote, error) {
			time.Sleep(150 * time.Millisecond)
			defer close(done)
			return priced(source.Binance, p, "67890.12"), nil
		}}
	o := newTest(t, map[string]source.Source{"binance": src}, 30*time.Millisecond)

	_, err := o.GetQuote(context.Background(), "binance", btcUSD())
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background fetch must complete")
	}
	time.Sleep(20 * time.Millisecond)

	q, err := o.GetQuote(context.Background(), "binance", btcUSD())
	if err != nil {
		t.Fatalf("post-timeout call must hit cache: %v", err)
	}
	if q.Price != "67890.12" {
		t.Errorf("price: got %q", q.Price)
	}
}

func TestGetQuote_PriceNotFoundIsNotCached(t *testing.T) {
	var calls atomic.Int32
	src := &stubSource{name: source.Binance, enabled: true,
		fetch: func(ctx context.Context, p pair.Pair) (pair.Quote, error) {
			calls.Add(1)
			return pair.Quote{}, &source.PriceNotFoundError{Source: source.Binance, Pair: p}
		}}
	o := newTest(t, map[string]source.Source{"binance": src}, time.Second)

	for i := 0; i < 2; i++ {
		_, err := o.GetQuote(context.Background(), "binance", btcUSD())
		var nf *source.PriceNotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("call %d: expected PriceNotFoundError, got %v", i, err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("adapter calls: got %d, want 2 (errors are never cached)", calls.Load())
	}
}

func TestGetQuote_SourceErrors(t *testing.T) {
	disabled := &stubSource{name: source.Kraken, enabled: false}
	o := newTest(t, map[string]source.Source{"kraken": disabled}, time.Second)

	_, err := o.GetQuote(context.Background(), "nope", btcUSD())
	var nf *source.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("unknown source: expected NotFoundError, got %v", err)
	}

	_, err = o.GetQuote(context.Background(), "kraken", btcUSD())
	var d *source.DisabledError
	if !errors.As(err, &d) {
		t.Errorf("disabled source: expected DisabledError, got %v", err)
	}
}

func TestGetQuotes_BatchSourceSingleCallPreservesPositions(t *testing.T) {
	var batchCalls atomic.Int32
	var gotBatch []pair.Pair
	src := &stubBatchSource{
		stubSource: stubSource{name: source.Binance, enabled: true,
			fetch: func(ctx context.Context, p pair.Pair) (pair.Quote, error) {
				t.Error("single-pair path must not be used")
				return pair.Quote{}, nil
			}},
		fetchBatch: func(ctx context.Context, pairs []pair.Pair) ([]pair.Quote, error) {
			batchCalls.Add(1)
			gotBatch = pairs
			out := make([]pair.Quote, len(pairs))
			for i, p := range pairs {
				out[i] = priced(source.Binance, p, "1.0")
			}
			return out, nil
		},
	}
	o := newTest(t, map[string]source.Source{"binance": src}, time.Second)

	ethUSD := pair.Pair{Base: "ETH", Quote: "USD"}
	results, err := o.GetQuotes(context.Background(), "binance", []pair.Pair{btcUSD(), ethUSD, btcUSD()})
	if err != nil {
		t.Fatalf("GetQuotes: %v", err)
	}
	if batchCalls.Load() != 1 {
		t.Errorf("batch calls: got %d, want 1", batchCalls.Load())
	}
	if len(gotBatch) != 2 {
		t.Errorf("deduped batch size: got %d, want 2", len(gotBatch))
	}
	if len(results) != 3 {
		t.Fatalf("results: got %d, want 3", len(results))
	}
	if results[0].Pair != btcUSD() || results[2].Pair != btcUSD() || results[1].Pair != ethUSD {
		t.Error("positions must be preserved, duplicates included")
	}
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("result %d: %v", i, r.Err)
		}
	}
}

func TestGetQuotes_PerPairErrorsAreIsolated(t *testing.T) {
	src := &stubSource{name: source.Kraken, enabled: true,
		fetch: func(ctx context.Context, p pair.Pair) (pair.Quote, error) {
			if p.Base == "DOGE" {
				return pair.Quote{}, &source.PriceNotFoundError{Source: source.Kraken, Pair: p}
			}
			return priced(source.Kraken, p, "67890.1"), nil
		}}
	o := newTest(t, map[string]source.Source{"kraken": src}, time.Second)

	results, err := o.GetQuotes(context.Background(), "kraken", []pair.Pair{
		btcUSD(),
		{Base: "DOGE", Quote: "MADEUP"},
	})
	if err != nil {
		t.Fatalf("GetQuotes: %v", err)
	}
	if results[0].Err != nil {
		t.Errorf("good pair must succeed: %v", results[0].Err)
	}
	var nf *source.PriceNotFoundError
	if !errors.As(results[1].Err, &nf) {
		t.Errorf("bad pair: expected PriceNotFoundError, got %v", results[1].Err)
	}
}

func TestGetQuotes_BatchOmissionIsPriceNotFound(t *testing.T) {
	src := &stubBatchSource{
		stubSource: stubSource{name: source.Binance, enabled: true},
		fetchBatch: func(ctx context.Context, pairs []pair.Pair) ([]pair.Quote, error) {
			// Upstream silently drops unknown symbols.
			return []pair.Quote{priced(source.Binance, pairs[0], "1.0")}, nil
		},
	}
	o := newTest(t, map[string]source.Source{"binance": src}, time.Second)

	results, err := o.GetQuotes(context.Background(), "binance", []pair.Pair{
		btcUSD(),
		{Base: "NOPE", Quote: "USD"},
	})
	if err != nil {
		t.Fatalf("GetQuotes: %v", err)
	}
	var nf *source.PriceNotFoundError
	if !errors.As(results[1].Err, &nf) {
		t.Errorf("omitted pair: expected PriceNotFoundError, got %v", results[1].Err)
	}
}

// Package streaming keeps cached prices for tracked pairs fresh over
// WebSocket streams. It follows the pair registry: a newly tracked pair is
// subscribed on its source's stream (after a short coalescing window so
// bursts of registrations share one subscribe frame), a removed pair is
// unsubscribed. Incoming quotes are written back to the cache in batches.
package streaming

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quotefeed/quotefeed/internal/config"
	"github.com/quotefeed/quotefeed/internal/pair"
	"github.com/quotefeed/quotefeed/internal/quotecache"
	"github.com/quotefeed/quotefeed/internal/registry"
	"github.com/quotefeed/quotefeed/internal/source"
	"github.com/quotefeed/quotefeed/internal/stream"
)

const (
	defaultCoalesceWindow = 100 * time.Millisecond
	defaultQueueSize      = 8192
	defaultWriteBatch     = 256
	defaultFlushInterval  = 200 * time.Millisecond
	fallbackTTL           = 10 * time.Second
)

// Adapter is the per-source stream surface the service drives;
// stream.Adapter is the production implementation.
type Adapter interface {
	Connect() error
	Close() error
	SubscribeMany(pairs []pair.Pair, onQuote stream.QuoteFunc, onError func(pair.Pair) stream.ErrorFunc) ([]string, error)
	Unsubscribe(subID string) error
	UnsubscribeAll() error
}

// AdapterFactory builds the adapter for a source, or reports false for
// sources without a stream.
type AdapterFactory func(name source.Name, cfg config.SourceConfig) (Adapter, bool)

// ConfigLookup resolves per-source configuration.
type ConfigLookup interface {
	Config(name source.Name) (config.SourceConfig, bool)
}

// Options configures the streaming service.
type Options struct {
	Pairs   *registry.Registry
	Cache   *quotecache.Cache
	Configs ConfigLookup

	// Adapters defaults to WSAdapterFactory.
	Adapters AdapterFactory

	CoalesceWindow time.Duration
	QueueSize      int
	WriteBatch     int
	FlushInterval  time.Duration
}

// Service subscribes tracked pairs on their source streams and batches the
// resulting quotes into the cache.
type Service struct {
	opts  Options
	queue chan pair.Quote

	stopCh chan struct{}
	wg     sync.WaitGroup

	dropped atomic.Int64

	mu      sync.Mutex
	states  map[source.Name]*sourceState
	stopped bool
}

// sourceState is the service's bookkeeping for one streaming source.
// Guarded by Service.mu.
type sourceState struct {
	adapter   Adapter
	connected bool
	subIDs    map[pair.Key]string
	pending   map[pair.Key]pair.Pair
	timer     *time.Timer
}

// New creates a streaming service; nothing runs until Start.
func New(opts Options) *Service {
	if opts.Adapters == nil {
		opts.Adapters = WSAdapterFactory
	}
	if opts.CoalesceWindow <= 0 {
		opts.CoalesceWindow = defaultCoalesceWindow
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.WriteBatch <= 0 {
		opts.WriteBatch = defaultWriteBatch
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	return &Service{
		opts:   opts,
		queue:  make(chan pair.Quote, opts.QueueSize),
		stopCh: make(chan struct{}),
		states: make(map[source.Name]*sourceState),
	}
}

// Start hooks into the registry, subscribes pairs that are already tracked
// on streaming sources, and launches the cache write-back loop.
func (s *Service) Start() {
	s.opts.Pairs.Subscribe(s.onRegistryEvent)

	for _, reg := range s.opts.Pairs.Snapshot() {
		s.schedule(source.Name(reg.Source), reg.Pair)
	}

	s.wg.Add(1)
	go s.flushLoop()
	log.Printf("[streaming] service started (coalesce %s, batch %d, flush %s)",
		s.opts.CoalesceWindow, s.opts.WriteBatch, s.opts.FlushInterval)
}

// Stop tears down subscriptions and connections and drains pending quote
// writes before returning.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopped = true
	states := make([]*sourceState, 0, len(s.states))
	for _, st := range s.states {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		states = append(states, st)
	}
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	for _, st := range states {
		if !st.connected {
			continue
		}
		if err := st.adapter.UnsubscribeAll(); err != nil {
			log.Printf("[streaming] unsubscribe all: %v", err)
		}
		if err := st.adapter.Close(); err != nil {
			log.Printf("[streaming] close: %v", err)
		}
	}
	if n := s.dropped.Load(); n > 0 {
		log.Printf("[streaming] dropped %d quotes on overflow", n)
	}
}

// Dropped returns the number of quotes discarded because the write queue
// was full.
func (s *Service) Dropped() int64 { return s.dropped.Load() }

// onRegistryEvent runs synchronously on the registry's mutating goroutine
// and must not block; subscription work is deferred to the coalesce timer
// and unsubscribes run on their own goroutine.
func (s *Service) onRegistryEvent(evt registry.Event, sourceName string, p pair.Pair) {
	name := source.Name(sourceName)
	switch evt {
	case registry.PairAdded:
		s.schedule(name, p)
	case registry.PairRemoved:
		s.unsubscribe(name, p)
	}
}

// schedule marks p pending for its source and arms the coalesce timer. The
// window lets a burst of registrations ride one subscribe frame.
func (s *Service) schedule(name source.Name, p pair.Pair) {
	cfg, ok := s.sourceConfig(name)
	if !ok || !cfg.Enabled {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	st, ok := s.state(name, cfg)
	if !ok {
		return
	}

	key := pair.KeyFor(string(name), p)
	if _, subscribed := st.subIDs[key]; subscribed {
		return
	}
	st.pending[key] = p
	if st.timer == nil {
		st.timer = time.AfterFunc(s.opts.CoalesceWindow, func() {
			s.flushPending(name)
		})
	}
}

// flushPending takes the pending set for a source and subscribes it in one
// batched call. On failure the pairs go back to pending and the timer is
// rearmed, so transient stream trouble retries at the coalesce cadence.
func (s *Service) flushPending(name source.Name) {
	s.mu.Lock()
	st := s.states[name]
	if st == nil || s.stopped {
		s.mu.Unlock()
		return
	}
	st.timer = nil
	if len(st.pending) == 0 {
		s.mu.Unlock()
		return
	}
	pairs := make([]pair.Pair, 0, len(st.pending))
	for _, p := range st.pending {
		pairs = append(pairs, p)
	}
	st.pending = make(map[pair.Key]pair.Pair)
	adapter := st.adapter
	connected := st.connected
	s.mu.Unlock()

	if !connected {
		if err := adapter.Connect(); err != nil {
			log.Printf("[streaming] %s: connect: %v", name, err)
			s.requeue(name, pairs)
			return
		}
		s.mu.Lock()
		st.connected = true
		s.mu.Unlock()
	}

	subIDs, err := adapter.SubscribeMany(pairs, s.enqueue, func(pair.Pair) stream.ErrorFunc { return nil })
	if err != nil {
		log.Printf("[streaming] %s: subscribe %d pairs: %v", name, len(pairs), err)
		s.requeue(name, pairs)
		return
	}

	s.mu.Lock()
	for i, p := range pairs {
		st.subIDs[pair.KeyFor(string(name), p)] = subIDs[i]
	}
	s.mu.Unlock()
	log.Printf("[streaming] %s: subscribed %d pairs", name, len(pairs))
}

func (s *Service) requeue(name source.Name, pairs []pair.Pair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[name]
	if st == nil || s.stopped {
		return
	}
	for _, p := range pairs {
		st.pending[pair.KeyFor(string(name), p)] = p
	}
	if st.timer == nil {
		st.timer = time.AfterFunc(s.opts.CoalesceWindow, func() {
			s.flushPending(name)
		})
	}
}

func (s *Service) unsubscribe(name source.Name, p pair.Pair) {
	s.mu.Lock()
	st := s.states[name]
	if st == nil || s.stopped {
		s.mu.Unlock()
		return
	}
	key := pair.KeyFor(string(name), p)
	delete(st.pending, key)
	subID, ok := st.subIDs[key]
	if ok {
		delete(st.subIDs, key)
	}
	adapter := st.adapter
	if ok {
		s.wg.Add(1)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	go func() {
		defer s.wg.Done()
		if err := adapter.Unsubscribe(subID); err != nil {
			log.Printf("[streaming] %s: unsubscribe %s: %v", name, p, err)
		}
	}()
}

// state returns the bookkeeping for a streaming source, building the
// adapter on first use. Caller holds s.mu.
func (s *Service) state(name source.Name, cfg config.SourceConfig) (*sourceState, bool) {
	if st, ok := s.states[name]; ok {
		return st, true
	}
	adapter, ok := s.opts.Adapters(name, cfg)
	if !ok {
		return nil, false
	}
	st := &sourceState{
		adapter: adapter,
		subIDs:  make(map[pair.Key]string),
		pending: make(map[pair.Key]pair.Pair),
	}
	s.states[name] = st
	return st, true
}

func (s *Service) sourceConfig(name source.Name) (config.SourceConfig, bool) {
	if s.opts.Configs == nil {
		return config.SourceConfig{}, false
	}
	return s.opts.Configs.Config(name)
}

// enqueue hands a stream quote to the write-back loop. Non-blocking; drops
// on overflow so a slow cache never backs up the read loop.
func (s *Service) enqueue(q pair.Quote) {
	select {
	case s.queue <- q:
	default:
		s.dropped.Add(1)
	}
}

// flushLoop runs until Stop, writing quotes to the cache on batch-size or
// timer, then drains what remains.
func (s *Service) flushLoop() {
	defer s.wg.Done()

	batch := make([]pair.Quote, 0, s.opts.WriteBatch)
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case q := <-s.queue:
			batch = append(batch, q)
			if len(batch) >= s.opts.WriteBatch {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-s.stopCh:
			s.drainAndFlush(batch)
			return
		}
	}
}

func (s *Service) drainAndFlush(batch []pair.Quote) {
	for {
		select {
		case q := <-s.queue:
			batch = append(batch, q)
			if len(batch) >= s.opts.WriteBatch {
				s.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

// flush conflates the batch per (source, pair), keeping the newest quote,
// and writes the survivors to the cache.
func (s *Service) flush(batch []pair.Quote) {
	latest := make(map[pair.Key]pair.Quote, len(batch))
	for _, q := range batch {
		key := pair.KeyFor(q.Source, q.Pair)
		if prev, ok := latest[key]; ok && prev.ReceivedAt.After(q.ReceivedAt) {
			continue
		}
		latest[key] = q
	}

	for key, q := range latest {
		s.opts.Cache.Set(key, q, s.ttlFor(source.Name(q.Source)))
		s.opts.Pairs.TrackFetch(q.Source, q.Pair)
	}
}

func (s *Service) ttlFor(name source.Name) time.Duration {
	if cfg, ok := s.sourceConfig(name); ok && cfg.TTL.Std() > 0 {
		return cfg.TTL.Std()
	}
	return fallbackTTL
}

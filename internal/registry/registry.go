// Package registry tracks which pairs have been requested per source. It is
// the subscription source of truth: the streaming and refetch layers key
// their work off registrations and their add/remove events.
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/quotefeed/quotefeed/internal/pair"
)

// Event describes a registry change.
type Event int

const (
	PairAdded Event = iota
	PairRemoved
)

func (e Event) String() string {
	switch e {
	case PairAdded:
		return "pair_added"
	case PairRemoved:
		return "pair_removed"
	}
	return "unknown"
}

// EventFunc receives registry change notifications. Callbacks run
// synchronously on the mutating goroutine and must not block.
type EventFunc func(evt Event, source string, p pair.Pair)

// Registration is one tracked (source, pair) with access timestamps.
// Timestamps are atomics so concurrent request paths never contend.
type Registration struct {
	Source string
	Pair   pair.Pair

	registeredAt  atomic.Int64 // unix nanos
	lastRequestAt atomic.Int64
	lastFetchAt   atomic.Int64 // last successful upstream fetch
}

func (r *Registration) RegisteredAt() time.Time  { return time.Unix(0, r.registeredAt.Load()) }
func (r *Registration) LastRequestAt() time.Time { return time.Unix(0, r.lastRequestAt.Load()) }

// LastFetchAt returns the zero time when no fetch has succeeded yet.
func (r *Registration) LastFetchAt() time.Time {
	ns := r.lastFetchAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Registry is the concurrent pair registry.
type Registry struct {
	pairs *xsync.Map[pair.Key, *Registration]

	subMu       sync.RWMutex
	subscribers []EventFunc
}

func New() *Registry {
	return &Registry{pairs: xsync.NewMap[pair.Key, *Registration]()}
}

// Subscribe registers an event callback. Subscriptions are made during
// wiring, before traffic; there is no unsubscribe.
func (r *Registry) Subscribe(fn EventFunc) {
	r.subMu.Lock()
	r.subscribers = append(r.subscribers, fn)
	r.subMu.Unlock()
}

func (r *Registry) emit(evt Event, source string, p pair.Pair) {
	r.subMu.RLock()
	subs := r.subscribers
	r.subMu.RUnlock()
	for _, fn := range subs {
		fn(evt, source, p)
	}
}

// Touch records a request for (source, p), registering the pair on first
// sight. The PairAdded event fires exactly once per registration.
func (r *Registry) Touch(source string, p pair.Pair) *Registration {
	now := time.Now().UnixNano()
	key := pair.KeyFor(source, p)

	reg, loaded := r.pairs.LoadOrCompute(key, func() (*Registration, bool) {
		newReg := &Registration{Source: source, Pair: p}
		newReg.registeredAt.Store(now)
		return newReg, false
	})
	reg.lastRequestAt.Store(now)

	if !loaded {
		r.emit(PairAdded, source, p)
	}
	return reg
}

// TrackFetch records a successful upstream fetch for an already-registered
// pair; unknown pairs are ignored.
func (r *Registry) TrackFetch(source string, p pair.Pair) {
	if reg, ok := r.pairs.Load(pair.KeyFor(source, p)); ok {
		reg.lastFetchAt.Store(time.Now().UnixNano())
	}
}

// Remove drops the registration and reports whether it existed.
func (r *Registry) Remove(source string, p pair.Pair) bool {
	_, existed := r.pairs.LoadAndDelete(pair.KeyFor(source, p))
	if existed {
		r.emit(PairRemoved, source, p)
	}
	return existed
}

// Get returns the registration for (source, p) if present.
func (r *Registry) Get(source string, p pair.Pair) (*Registration, bool) {
	return r.pairs.Load(pair.KeyFor(source, p))
}

// Snapshot returns all registrations in no particular order.
func (r *Registry) Snapshot() []*Registration {
	out := make([]*Registration, 0, r.pairs.Size())
	r.pairs.Range(func(_ pair.Key, reg *Registration) bool {
		out = append(out, reg)
		return true
	})
	return out
}

// BySource returns the registered pairs for one source.
func (r *Registry) BySource(source string) []pair.Pair {
	var out []pair.Pair
	r.pairs.Range(func(_ pair.Key, reg *Registration) bool {
		if reg.Source == source {
			out = append(out, reg.Pair)
		}
		return true
	})
	return out
}

// Size returns the number of registrations.
func (r *Registry) Size() int { return r.pairs.Size() }

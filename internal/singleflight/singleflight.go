// Package singleflight wraps x/sync's singleflight with typed results and
// caller-scoped cancellation: a caller whose context expires stops waiting,
// but the in-flight producer keeps running so late waiters and cache
// write-back still get its outcome.
package singleflight

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Group deduplicates concurrent calls by key. Keys are scoped to the Group
// instance, so distinct operations on the same service use distinct Groups.
type Group[V any] struct {
	sf singleflight.Group
}

// Do returns fn's result for key, started at most once per in-flight key.
// shared reports whether the result was delivered to more than one caller.
// On context expiry the flight is abandoned, not cancelled.
func (g *Group[V]) Do(ctx context.Context, key string, fn func() (V, error)) (v V, shared bool, err error) {
	ch := g.sf.DoChan(key, func() (any, error) {
		return fn()
	})

	select {
	case <-ctx.Done():
		return v, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return v, res.Shared, res.Err
		}
		return res.Val.(V), res.Shared, nil
	}
}

// Forget drops the in-flight entry for key so the next Do starts fresh.
func (g *Group[V]) Forget(key string) { g.sf.Forget(key) }

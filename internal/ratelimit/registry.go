package ratelimit

import (
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Registry holds one Limiter per "hostname-rps" key so sources sharing a
// host and rate share a bucket.
type Registry struct {
	limiters *xsync.Map[string, *Limiter]
}

// NewRegistry creates an empty limiter registry.
func NewRegistry() *Registry {
	return &Registry{limiters: xsync.NewMap[string, *Limiter]()}
}

// For returns the limiter for host at the given rate, creating it on first
// use. RPS <= 0 still yields a limiter (concurrency cap + retries only).
func (r *Registry) For(host string, rps float64, maxConcurrent, maxRetries int) *Limiter {
	key := fmt.Sprintf("%s-%g", host, rps)
	l, _ := r.limiters.LoadOrCompute(key, func() (*Limiter, bool) {
		return New(Options{
			Key:           key,
			RPS:           rps,
			MaxConcurrent: maxConcurrent,
			MaxRetries:    maxRetries,
		}), false
	})
	return l
}

// StopAll drains every limiter, each bounded by the grace period.
func (r *Registry) StopAll(grace time.Duration) {
	r.limiters.Range(func(_ string, l *Limiter) bool {
		l.Stop(grace)
		return true
	})
}

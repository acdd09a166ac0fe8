// Package ratelimit provides per-host job limiting: a token bucket spacing
// job starts, a concurrency cap, and a bounded retry policy for transient
// upstream failures.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates job execution for one upstream host. A nil token bucket
// (rps <= 0) passes jobs through unthrottled; the concurrency cap and retry
// policy still apply.
type Limiter struct {
	key        string
	bucket     *rate.Limiter // nil when disabled
	sem        chan struct{}
	maxRetries int

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// Options configures a Limiter.
type Options struct {
	// Key identifies the limiter in logs, conventionally "host-rps".
	Key string
	// RPS is the sustained job-start rate. <= 0 disables the bucket.
	RPS float64
	// MaxConcurrent caps in-flight jobs. < 1 is treated as 1.
	MaxConcurrent int
	// MaxRetries bounds requeues of retryable failures.
	MaxRetries int
}

// New creates a Limiter. With burst 1 the bucket enforces a strict
// ceil(1000/rps) ms spacing between job starts, so no one-second window
// ever admits more than rps starts.
func New(opts Options) *Limiter {
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	l := &Limiter{
		key:        opts.Key,
		sem:        make(chan struct{}, maxConcurrent),
		maxRetries: opts.MaxRetries,
		stopCh:     make(chan struct{}),
	}
	if opts.RPS > 0 {
		l.bucket = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	return l
}

// Key returns the limiter identity.
func (l *Limiter) Key() string { return l.key }

// Submit runs job under the limiter: it blocks until a token is available
// and concurrency permits, invokes job, and surfaces its outcome. Retryable
// failures are requeued immediately (the bucket spaces the retry) up to
// MaxRetries; non-retryable failures surface at once.
func (l *Limiter) Submit(ctx context.Context, job func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("ratelimit: limiter %s is stopped", l.key)
	}
	l.wg.Add(1)
	l.mu.Unlock()
	defer l.wg.Done()

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := l.waitTurn(ctx); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := l.runOne(ctx, job)
		if err == nil {
			return nil
		}
		lastErr = err

		if !Retryable(err) || attempt >= l.maxRetries {
			return err
		}
		// Requeue with zero delay: the next waitTurn charges the bucket,
		// which already spaces upstream rate-limit failures.
	}
}

func (l *Limiter) waitTurn(ctx context.Context) error {
	if l.bucket != nil {
		if err := l.bucket.Wait(ctx); err != nil {
			return fmt.Errorf("ratelimit: %w", err)
		}
	}
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ratelimit: %w", ctx.Err())
	case <-l.stopCh:
		return fmt.Errorf("ratelimit: limiter %s is stopped", l.key)
	}
}

func (l *Limiter) runOne(ctx context.Context, job func(ctx context.Context) error) error {
	defer func() { <-l.sem }()
	return job(ctx)
}

// Stop marks the limiter closed and waits for in-flight jobs up to the
// grace period. New submissions are rejected immediately.
func (l *Limiter) Stop(grace time.Duration) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.stopCh)
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
	}
}

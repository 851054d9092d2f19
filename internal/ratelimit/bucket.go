// Package ratelimit provides the per-chain RPC token bucket built on
// golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// BucketConfig tunes a per-chain RPC token bucket.
type BucketConfig struct {
	MaxConcurrent     int
	RequestsPerSecond float64
	BatchDelay        time.Duration
}

// DefaultBucketConfig returns the shared per-chain RPC budget.
func DefaultBucketConfig() BucketConfig {
	return BucketConfig{
		MaxConcurrent:     3,
		RequestsPerSecond: 20,
		BatchDelay:        200 * time.Millisecond,
	}
}

// Bucket serialises RPC dispatch for one chain: at most MaxConcurrent calls
// in flight, at least 1/RequestsPerSecond between dispatches, and BatchDelay
// after each MaxConcurrent-sized batch drains. Waiters are served FIFO by
// the underlying limiter.
type Bucket struct {
	cfg     BucketConfig
	limiter *rate.Limiter
	slots   chan struct{}
	batch   chan struct{} // tokens consumed per dispatch; refilled after BatchDelay
}

// NewBucket creates a bucket from the config.
func NewBucket(cfg BucketConfig) *Bucket {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}

	b := &Bucket{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		slots:   make(chan struct{}, cfg.MaxConcurrent),
		batch:   make(chan struct{}, cfg.MaxConcurrent),
	}
	for i := 0; i < cfg.MaxConcurrent; i++ {
		b.batch <- struct{}{}
	}
	return b
}

// Do runs fn once a concurrency slot and a rate token are available.
func (b *Bucket) Do(ctx context.Context, fn func(context.Context) error) error {
	select {
	case <-b.batch:
	case <-ctx.Done():
		return ctx.Err()
	}
	// Refill the batch token after the delay so a burst of MaxConcurrent
	// dispatches is followed by a BatchDelay pause.
	time.AfterFunc(b.cfg.BatchDelay, func() { b.batch <- struct{}{} })

	select {
	case b.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-b.slots }()

	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// Go runs fn on a new goroutine under the bucket's budget, reporting the
// result on the returned channel.
func (b *Bucket) Go(ctx context.Context, fn func(context.Context) error) <-chan error {
	out := make(chan error, 1)
	go func() {
		out <- b.Do(ctx, fn)
	}()
	return out
}

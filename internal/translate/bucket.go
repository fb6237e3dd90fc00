// Package translate rate-limits, dispatches and re-orders sentence
// translations. Sentences leave the builder in index order but translate
// concurrently; the [OrderedSender] puts the results back in order before
// they reach the client.
package translate

import (
	"context"
	"sync"
	"time"
)

const (
	// bucketCapacity bounds the burst: a freshly created bucket lets this
	// many translations through before the refill rate takes over.
	bucketCapacity = 10

	// minAcquireSleep is the floor for the retry sleep so a near-full
	// bucket does not spin.
	minAcquireSleep = 10 * time.Millisecond
)

// TokenBucket throttles translation requests to a requests-per-minute rate
// with a burst allowance of [bucketCapacity]. It refills continuously, so a
// caller never waits longer than the time to accrue the one token it needs.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastUpdate time.Time
}

// NewTokenBucket returns a full bucket refilling at rpm requests per minute.
// rpm is clamped to [10, 300]; values below 10 select 100 because old client
// settings stored mode constants (0, 6) in the same field.
func NewTokenBucket(rpm int) *TokenBucket {
	if rpm < 10 {
		rpm = 100
	} else if rpm > 300 {
		rpm = 300
	}
	return &TokenBucket{
		capacity:   bucketCapacity,
		refillRate: float64(rpm) / 60,
		tokens:     bucketCapacity,
		lastUpdate: time.Now(),
	}
}

// Acquire blocks until a token is available or ctx is done. Tokens accrued
// since the last call are credited first, capped at the bucket capacity.
func (b *TokenBucket) Acquire(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := time.Now()
		b.tokens = min(b.capacity, b.tokens+now.Sub(b.lastUpdate).Seconds()*b.refillRate)
		b.lastUpdate = now
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
		b.mu.Unlock()

		if wait < minAcquireSleep {
			wait = minAcquireSleep
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

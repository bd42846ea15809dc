// Package bucket keeps one token bucket per key in memory.
package bucket

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fleetops/internal/ratelimit/models"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// InMemoryBucketStore admits requests per key at a steady rate with bursts.
// Buckets are not shared across processes.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*entry
	limit   rate.Limit
	burst   int
	clock   func() time.Time
}

// Option configures the store.
type Option func(*InMemoryBucketStore)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(s *InMemoryBucketStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewInMemoryBucketStore creates a store admitting perSecond requests per key
// with the given burst.
func NewInMemoryBucketStore(perSecond float64, burst int, opts ...Option) *InMemoryBucketStore {
	s := &InMemoryBucketStore{
		buckets: make(map[string]*entry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow takes one token from key's bucket if available.
func (s *InMemoryBucketStore) Allow(_ context.Context, key string) (*models.RateLimitResult, error) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.buckets[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = e
	}
	e.lastSeen = now

	if e.limiter.AllowN(now, 1) {
		return &models.RateLimitResult{
			Allowed:   true,
			Limit:     s.burst,
			Remaining: int(math.Max(0, math.Floor(e.limiter.TokensAt(now)))),
		}, nil
	}

	res := e.limiter.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	res.CancelAt(now)
	return &models.RateLimitResult{
		Allowed:    false,
		Limit:      s.burst,
		Remaining:  0,
		RetryAfter: delay,
	}, nil
}

// DeleteIdle drops buckets not used within idle of now and returns how many
// were removed. idle should be at least burst/rate so dropped buckets were full.
func (s *InMemoryBucketStore) DeleteIdle(now time.Time, idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.buckets {
		if now.Sub(e.lastSeen) > idle {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (s *InMemoryBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// RunJanitor evicts idle buckets every interval until ctx is cancelled.
func (s *InMemoryBucketStore) RunJanitor(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.DeleteIdle(s.clock(), idle)
		}
	}
}

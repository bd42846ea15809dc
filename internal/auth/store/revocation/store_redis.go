package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"fleetops/internal/auth/models"
	"fleetops/pkg/platform/sentinel"
)

var (
	isRevokedDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetops_is_token_revoked_duration_ms",
		Help:    "Latency of credential revocation checks against redis in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	})
)

const (
	// Redis key prefix for revoked credential hashes
	revokedTokenKeyPrefix = "trl:hash:"
)

// RedisStore is a Redis-backed revocation store. This is the recommended
// backend when several instances must share revocation state. Redis key
// expiry removes entries once the credential would have expired anyway.
type RedisStore struct {
	client redis.UniversalClient
	clock  Clock
}

// RedisOption configures a RedisStore instance.
type RedisOption func(*RedisStore)

// WithRedisClock sets the clock used to derive key TTLs.
func WithRedisClock(clock Clock) RedisOption {
	return func(s *RedisStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewRedisStore constructs a Redis-backed revocation store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Record stores the hash with a TTL ending at the credential's expiry.
// SET NX keeps the first entry, so repeated records are no-ops.
func (s *RedisStore) Record(ctx context.Context, hash string, expiresAt time.Time) error {
	_, err := s.Claim(ctx, hash, expiresAt)
	return err
}

// Claim reports whether SET NX created the key, so only one of several
// concurrent callers wins.
func (s *RedisStore) Claim(ctx context.Context, hash string, expiresAt time.Time) (bool, error) {
	if err := validateHash(hash); err != nil {
		return false, err
	}
	ttl, ok := ttlUntil(s.clock(), expiresAt)
	if !ok {
		return false, nil
	}
	created, err := s.client.SetNX(ctx, revokedTokenKeyPrefix+hash, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("record revocation: %w: %w", sentinel.ErrUnavailable, err)
	}
	return created, nil
}

// IsRevoked checks for the hash key. A missing key means never revoked or
// already expired.
func (s *RedisStore) IsRevoked(ctx context.Context, hash string) (bool, error) {
	start := time.Now()
	defer func() {
		isRevokedDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	if hash == "" {
		return false, nil
	}
	n, err := s.client.Exists(ctx, revokedTokenKeyPrefix+hash).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("check revocation: %w: %w", sentinel.ErrUnavailable, err)
	}
	return n > 0, nil
}

// RecordMany revokes several credentials in a single round trip. Each key
// gets the TTL of its own credential.
func (s *RedisStore) RecordMany(ctx context.Context, entries []models.RevocationEntry) error {
	now := s.clock()
	pipe := s.client.Pipeline()
	queued := 0
	for _, e := range entries {
		if validateHash(e.Hash) != nil {
			continue
		}
		if ttl, ok := ttlUntil(now, e.ExpiresAt); ok {
			pipe.SetNX(ctx, revokedTokenKeyPrefix+e.Hash, "1", ttl)
			queued++
		}
	}
	if queued == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record revocations: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// Package revocation stores hashes of credentials that were invalidated
// before their natural expiry.
//
// Every backend honours the same contract: Record is idempotent, Claim
// succeeds for exactly one caller per live entry, and IsRevoked never
// reports true for an entry past its expiry. Entries carry
// the expiry of the credential they revoke, so the store never grows beyond
// the set of credentials that could still verify.
package revocation

import (
	"context"
	"sync"
	"time"

	"fleetops/internal/auth/models"
)

// InMemoryStore keeps revocation entries in process memory. Suitable for a
// single instance and for tests; entries are lost on restart.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.RevocationEntry
	clock   Clock
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithMemoryClock sets the clock function for testability.
func WithMemoryClock(clock Clock) InMemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		entries: make(map[string]models.RevocationEntry),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Record inserts a revocation entry. Recording an existing hash is a no-op,
// and recording an already-expired credential stores nothing.
func (s *InMemoryStore) Record(ctx context.Context, hash string, expiresAt time.Time) error {
	_, err := s.Claim(ctx, hash, expiresAt)
	return err
}

// Claim inserts the entry only when no live entry exists and reports whether
// this call inserted it. An already-expired credential cannot be claimed.
func (s *InMemoryStore) Claim(_ context.Context, hash string, expiresAt time.Time) (bool, error) {
	if err := validateHash(hash); err != nil {
		return false, err
	}
	now := s.clock()
	if _, ok := ttlUntil(now, expiresAt); !ok {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(hash, expiresAt, now), nil
}

// RecordMany revokes several credentials under one lock acquisition.
func (s *InMemoryStore) RecordMany(_ context.Context, entries []models.RevocationEntry) error {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if validateHash(e.Hash) != nil {
			continue
		}
		if _, ok := ttlUntil(now, e.ExpiresAt); ok {
			s.insertLocked(e.Hash, e.ExpiresAt, now)
		}
	}
	return nil
}

func (s *InMemoryStore) insertLocked(hash string, expiresAt, now time.Time) bool {
	if existing, ok := s.entries[hash]; ok && !existing.IsExpired(now) {
		return false
	}
	s.entries[hash] = models.RevocationEntry{
		Hash:      hash,
		ExpiresAt: expiresAt,
		RevokedAt: now,
	}
	return true
}

// IsRevoked reports whether a live entry exists. Expired entries found on
// lookup are purged.
func (s *InMemoryStore) IsRevoked(_ context.Context, hash string) (bool, error) {
	if hash == "" {
		return false, nil
	}
	now := s.clock()

	s.mu.RLock()
	entry, ok := s.entries[hash]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !entry.IsExpired(now) {
		return true, nil
	}

	s.mu.Lock()
	// Re-check under the write lock; a concurrent Record may have replaced it.
	if current, still := s.entries[hash]; still && current.IsExpired(now) {
		delete(s.entries, hash)
	}
	s.mu.Unlock()
	return false, nil
}

// DeleteExpired removes all entries that are inert as of now.
// The time parameter is injected for testability (no hidden time.Now() calls).
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for hash, entry := range s.entries {
		if entry.IsExpired(now) {
			delete(s.entries, hash)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored entries, live or not yet purged.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

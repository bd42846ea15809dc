package revocation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fleetops/internal/auth/models"
	"fleetops/internal/auth/tokenhash"
	"fleetops/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	now   time.Time
	ctx   context.Context
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewInMemoryStore(WithMemoryClock(func() time.Time { return s.now }))
	s.ctx = context.Background()
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) TestRecordAndLookup() {
	hash := tokenhash.Hash("credential-a")

	revoked, err := s.store.IsRevoked(s.ctx, hash)
	s.Require().NoError(err)
	s.False(revoked, "unknown hash is not revoked")

	s.Require().NoError(s.store.Record(s.ctx, hash, s.now.Add(time.Hour)))

	revoked, err = s.store.IsRevoked(s.ctx, hash)
	s.Require().NoError(err)
	s.True(revoked)

	other, err := s.store.IsRevoked(s.ctx, tokenhash.Hash("credential-b"))
	s.Require().NoError(err)
	s.False(other, "revoking one credential must not affect another")
}

func (s *InMemoryStoreSuite) TestRecordIsIdempotent() {
	hash := tokenhash.Hash("credential-a")
	expiresAt := s.now.Add(time.Hour)

	s.Require().NoError(s.store.Record(s.ctx, hash, expiresAt))
	s.Require().NoError(s.store.Record(s.ctx, hash, expiresAt))

	s.Equal(1, s.store.Len())
	revoked, err := s.store.IsRevoked(s.ctx, hash)
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *InMemoryStoreSuite) TestRecordRejectsEmptyHash() {
	err := s.store.Record(s.ctx, "  ", s.now.Add(time.Hour))
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *InMemoryStoreSuite) TestRecordOfExpiredCredentialIsNoop() {
	hash := tokenhash.Hash("already-dead")
	s.Require().NoError(s.store.Record(s.ctx, hash, s.now.Add(-time.Second)))
	s.Require().NoError(s.store.Record(s.ctx, hash, s.now))

	s.Equal(0, s.store.Len())
}

func (s *InMemoryStoreSuite) TestEntryInertAfterExpiry() {
	hash := tokenhash.Hash("credential-a")
	s.Require().NoError(s.store.Record(s.ctx, hash, s.now.Add(time.Minute)))

	s.now = s.now.Add(time.Minute)

	revoked, err := s.store.IsRevoked(s.ctx, hash)
	s.Require().NoError(err)
	s.False(revoked, "entry at its expiry instant is inert")
	s.Equal(0, s.store.Len(), "lookup purges the inert entry")
}

func (s *InMemoryStoreSuite) TestRecordReplacesStaleEntry() {
	hash := tokenhash.Hash("credential-a")
	s.Require().NoError(s.store.Record(s.ctx, hash, s.now.Add(time.Minute)))

	s.now = s.now.Add(2 * time.Minute)
	s.Require().NoError(s.store.Record(s.ctx, hash, s.now.Add(time.Minute)))

	revoked, err := s.store.IsRevoked(s.ctx, hash)
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *InMemoryStoreSuite) TestDeleteExpired() {
	live := tokenhash.Hash("live")
	dead := tokenhash.Hash("dead")
	s.Require().NoError(s.store.Record(s.ctx, live, s.now.Add(time.Hour)))
	s.Require().NoError(s.store.Record(s.ctx, dead, s.now.Add(time.Minute)))

	deleted, err := s.store.DeleteExpired(s.ctx, s.now.Add(30*time.Minute))
	s.Require().NoError(err)
	s.Equal(1, deleted)
	s.Equal(1, s.store.Len())

	revoked, err := s.store.IsRevoked(s.ctx, live)
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *InMemoryStoreSuite) TestConcurrentRecordAndLookup() {
	hash := tokenhash.Hash("shared")
	expiresAt := s.now.Add(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.store.Record(s.ctx, hash, expiresAt)
		}()
		go func() {
			defer wg.Done()
			_, _ = s.store.IsRevoked(s.ctx, hash)
		}()
	}
	wg.Wait()

	s.Equal(1, s.store.Len())
	revoked, err := s.store.IsRevoked(s.ctx, hash)
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *InMemoryStoreSuite) TestClaimSucceedsOnce() {
	hash := tokenhash.Hash("refresh-credential")
	expiresAt := s.now.Add(time.Hour)

	first, err := s.store.Claim(s.ctx, hash, expiresAt)
	s.Require().NoError(err)
	s.True(first)

	second, err := s.store.Claim(s.ctx, hash, expiresAt)
	s.Require().NoError(err)
	s.False(second, "a live entry cannot be claimed again")

	s.now = s.now.Add(2 * time.Hour)
	expired, err := s.store.Claim(s.ctx, hash, expiresAt)
	s.Require().NoError(err)
	s.False(expired, "an expired credential cannot be claimed")
}

func (s *InMemoryStoreSuite) TestConcurrentClaimHasOneWinner() {
	hash := tokenhash.Hash("contended")
	expiresAt := s.now.Add(time.Hour)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.store.Claim(s.ctx, hash, expiresAt)
			if err == nil && claimed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, wins)
}

func (s *InMemoryStoreSuite) TestRecordManyKeepsPerEntryExpiry() {
	access := tokenhash.Hash("access")
	refresh := tokenhash.Hash("refresh")
	s.Require().NoError(s.store.RecordMany(s.ctx, []models.RevocationEntry{
		{Hash: access, ExpiresAt: s.now.Add(15 * time.Minute)},
		{Hash: refresh, ExpiresAt: s.now.Add(24 * time.Hour)},
		{Hash: "", ExpiresAt: s.now.Add(time.Hour)},
	}))
	s.Equal(2, s.store.Len())

	s.now = s.now.Add(time.Hour)

	revoked, err := s.store.IsRevoked(s.ctx, access)
	s.Require().NoError(err)
	s.False(revoked, "access entry ends with the access credential")

	revoked, err = s.store.IsRevoked(s.ctx, refresh)
	s.Require().NoError(err)
	s.True(revoked)
}

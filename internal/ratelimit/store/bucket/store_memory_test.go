package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type InMemoryBucketStoreSuite struct {
	suite.Suite
	now   time.Time
	store *InMemoryBucketStore
}

func TestInMemoryBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryBucketStoreSuite))
}

func (s *InMemoryBucketStoreSuite) SetupTest() {
	s.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.store = NewInMemoryBucketStore(1, 3, WithClock(func() time.Time { return s.now }))
}

func (s *InMemoryBucketStoreSuite) TestBurstThenDeny() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := s.store.Allow(ctx, "10.0.0.1")
		s.Require().NoError(err)
		s.True(res.Allowed, "request %d", i)
		s.Equal(2-i, res.Remaining)
	}

	res, err := s.store.Allow(ctx, "10.0.0.1")
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(time.Second, res.RetryAfter)
	s.Equal(1, res.RetryAfterSeconds())
}

func (s *InMemoryBucketStoreSuite) TestRefillOverTime() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = s.store.Allow(ctx, "k")
	}
	s.now = s.now.Add(time.Second)
	res, err := s.store.Allow(ctx, "k")
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *InMemoryBucketStoreSuite) TestKeysAreIndependent() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = s.store.Allow(ctx, "a")
	}
	res, err := s.store.Allow(ctx, "b")
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *InMemoryBucketStoreSuite) TestDeniedRequestDoesNotConsume() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = s.store.Allow(ctx, "k")
	}
	for i := 0; i < 5; i++ {
		res, _ := s.store.Allow(ctx, "k")
		s.False(res.Allowed)
	}
	s.now = s.now.Add(time.Second)
	res, _ := s.store.Allow(ctx, "k")
	s.True(res.Allowed)
}

func (s *InMemoryBucketStoreSuite) TestDeleteIdle() {
	ctx := context.Background()
	_, _ = s.store.Allow(ctx, "old")
	s.now = s.now.Add(10 * time.Minute)
	_, _ = s.store.Allow(ctx, "fresh")

	s.Equal(1, s.store.DeleteIdle(s.now, 5*time.Minute))
	s.Equal(1, s.store.Len())

	res, err := s.store.Allow(ctx, "old")
	s.Require().NoError(err)
	s.True(res.Allowed, "a dropped bucket starts full again")
}

package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type LockoutStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	now   time.Time
}

func (s *LockoutStoreSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.store = New(Policy{
		Threshold:    3,
		Window:       15 * time.Minute,
		LockDuration: 30 * time.Minute,
	}, WithClock(func() time.Time { return s.now }))
}

func TestLockoutStoreSuite(t *testing.T) {
	suite.Run(t, new(LockoutStoreSuite))
}

func (s *LockoutStoreSuite) recordFailures(key string, n int) bool {
	var locked bool
	for range n {
		var err error
		locked, err = s.store.RecordFailure(context.Background(), key)
		s.Require().NoError(err)
	}
	return locked
}

func (s *LockoutStoreSuite) TestThreshold() {
	s.Run("below threshold stays unlocked", func() {
		locked := s.recordFailures("tenant-alpha|a@example.com", 2)
		s.False(locked)

		isLocked, err := s.store.IsLocked(context.Background(), "tenant-alpha|a@example.com")
		s.Require().NoError(err)
		s.False(isLocked)
	})

	s.Run("reaching threshold locks", func() {
		locked := s.recordFailures("tenant-alpha|b@example.com", 3)
		s.True(locked)

		isLocked, err := s.store.IsLocked(context.Background(), "tenant-alpha|b@example.com")
		s.Require().NoError(err)
		s.True(isLocked)
	})

	s.Run("keys are independent", func() {
		s.recordFailures("tenant-alpha|c@example.com", 3)

		isLocked, err := s.store.IsLocked(context.Background(), "tenant-beta|c@example.com")
		s.Require().NoError(err)
		s.False(isLocked)
	})
}

func (s *LockoutStoreSuite) TestDecay() {
	s.Run("window expiry resets the counter", func() {
		s.recordFailures("decay@example.com", 2)

		s.now = s.now.Add(16 * time.Minute)

		locked := s.recordFailures("decay@example.com", 1)
		s.False(locked, "old failures should have decayed")
	})

	s.Run("lock expires after the lock duration", func() {
		s.recordFailures("expire@example.com", 3)

		s.now = s.now.Add(31 * time.Minute)

		isLocked, err := s.store.IsLocked(context.Background(), "expire@example.com")
		s.Require().NoError(err)
		s.False(isLocked)
	})
}

func (s *LockoutStoreSuite) TestClear() {
	s.recordFailures("clear@example.com", 3)
	s.Require().NoError(s.store.Clear(context.Background(), "clear@example.com"))

	isLocked, err := s.store.IsLocked(context.Background(), "clear@example.com")
	s.Require().NoError(err)
	s.False(isLocked)

	locked := s.recordFailures("clear@example.com", 1)
	s.False(locked, "cleared counter should restart from zero")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "tenant-alpha|a@example.com", Key("tenant-alpha", "a@example.com"))
	assert.NotEqual(t, Key("tenant-alpha", "a@example.com"), Key("tenant-beta", "a@example.com"))
}

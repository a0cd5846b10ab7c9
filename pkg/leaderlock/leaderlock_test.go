package leaderlock_test

import (
	"context"
	"testing"
	"time"

	"github.com/fleetform/fleetsched/pkg/clock"
	"github.com/fleetform/fleetsched/pkg/leaderlock"
	"github.com/fleetform/fleetsched/pkg/log"
	"github.com/fleetform/fleetsched/pkg/schederr"
	"github.com/fleetform/fleetsched/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	fc := clock.NewFake(time.Now())
	s := store.NewMem(fc)
	l := leaderlock.New(s, fc, log.Logger, "scheduler", "node-a", time.Second, time.Millisecond)

	require.NoError(t, l.Acquire(context.Background()))
	require.NoError(t, l.Release())

	holder, live, err := s.GetLockHolder("scheduler")
	require.NoError(t, err)
	assert.False(t, live)
	assert.Empty(t, holder)
}

func TestAcquireBlocksUntilContenderReleases(t *testing.T) {
	fc := clock.NewFake(time.Now())
	s := store.NewMem(fc)

	holderLock := leaderlock.New(s, fc, log.Logger, "scheduler", "node-a", time.Minute, time.Millisecond)
	require.NoError(t, holderLock.Acquire(context.Background()))

	// The fake clock's Sleep advances time by the retry interval, so a
	// nanosecond retry keeps the holder's one-minute lease live for far
	// longer than the 20ms this test waits.
	contender := leaderlock.New(s, fc, log.Logger, "scheduler", "node-b", time.Minute, time.Nanosecond)

	done := make(chan error, 1)
	go func() { done <- contender.Acquire(context.Background()) }()

	select {
	case <-done:
		t.Fatal("contender must not acquire a live lock")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, holderLock.Release())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("contender never acquired after release")
	}
}

func TestRenewDetectsLockLost(t *testing.T) {
	fc := clock.NewFake(time.Now())
	s := store.NewMem(fc)

	l := leaderlock.New(s, fc, log.Logger, "scheduler", "node-a", time.Second, time.Millisecond)
	require.NoError(t, l.Acquire(context.Background()))

	fc.Advance(2 * time.Second) // lease expires

	_, err := s.TryAcquireLock("scheduler", "node-b", time.Minute)
	require.NoError(t, err)

	err = l.Renew()
	var lost *schederr.LockLost
	require.ErrorAs(t, err, &lost)
	assert.Equal(t, "node-b", lost.Holder)
}

func TestWithLockReleasesOnError(t *testing.T) {
	fc := clock.NewFake(time.Now())
	s := store.NewMem(fc)
	l := leaderlock.New(s, fc, log.Logger, "scheduler", "node-a", time.Second, time.Millisecond)

	err := leaderlock.WithLock(context.Background(), l, func() error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, live, err := s.GetLockHolder("scheduler")
	require.NoError(t, err)
	assert.False(t, live, "WithLock must release even when fn errors")
}

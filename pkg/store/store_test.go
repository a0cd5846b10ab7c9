package store_test

import (
	"testing"
	"time"

	"github.com/fleetform/fleetsched/pkg/clock"
	"github.com/fleetform/fleetsched/pkg/store"
	"github.com/fleetform/fleetsched/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*store.Mem, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return store.NewMem(fc), fc
}

func TestPutGetInstance(t *testing.T) {
	s, _ := newTestStore(t)

	inst := &types.Instance{Formation: "acme", Name: "api.abcd", State: types.StatePending}
	require.NoError(t, s.PutInstance(inst))

	got, err := s.GetInstance("acme", "api.abcd")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "api.abcd", got.Name)

	missing, err := s.GetInstance("acme", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUnassignedFiltersByStateAndAssignment(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.PutInstance(&types.Instance{Formation: "f", Name: "a.1", State: types.StatePending}))
	require.NoError(t, s.PutInstance(&types.Instance{Formation: "f", Name: "b.1", State: types.StateRunning, AssignedTo: "exec-1"}))
	require.NoError(t, s.PutInstance(&types.Instance{Formation: "f", Name: "c.1", State: types.StateMigrating}))
	require.NoError(t, s.PutInstance(&types.Instance{Formation: "f", Name: "d.1", State: types.StatePending, AssignedTo: "exec-2"}))
	require.NoError(t, s.PutInstance(&types.Instance{Formation: "other", Name: "e.1", State: types.StatePending}))

	// d.1 still qualifies even with AssignedTo set: its state (PENDING)
	// means placement never confirmed, so the scheduler must revisit it
	// to recover a partially completed dispatch.
	unassigned, err := s.Unassigned("f")
	require.NoError(t, err)
	require.Len(t, unassigned, 3)
	assert.Equal(t, "a.1", unassigned[0].Name)
	assert.Equal(t, "c.1", unassigned[1].Name)
	assert.Equal(t, "d.1", unassigned[2].Name)
}

func TestShuttingDownFilter(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.PutInstance(&types.Instance{Formation: "f", Name: "a.1", State: types.StateShuttingDown}))
	require.NoError(t, s.PutInstance(&types.Instance{Formation: "f", Name: "b.1", State: types.StateRunning}))

	down, err := s.ShuttingDown("f")
	require.NoError(t, err)
	require.Len(t, down, 1)
	assert.Equal(t, "a.1", down[0].Name)
}

func TestReleaseRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	rel := &types.Release{Name: "1", Services: map[string]types.ServiceTemplate{
		"api": {Image: "acme/api:latest"},
	}}
	require.NoError(t, s.PutRelease("acme", rel))

	got, err := s.GetRelease("acme", "1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acme/api:latest", got.Services["api"].Image)

	missing, err := s.GetRelease("acme", "2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLockAcquireContentionAndExpiry(t *testing.T) {
	s, fc := newTestStore(t)

	ok, err := s.TryAcquireLock("scheduler", "node-a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryAcquireLock("scheduler", "node-b", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire a live lock")

	holder, live, err := s.GetLockHolder("scheduler")
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, "node-a", holder)

	fc.Advance(11 * time.Second)

	ok, err = s.TryAcquireLock("scheduler", "node-b", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease must be reclaimable")
}

func TestRenewLockRejectsNonHolder(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.TryAcquireLock("scheduler", "node-a", 10*time.Second)
	require.NoError(t, err)

	renewed, err := s.RenewLock("scheduler", "node-b", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, renewed)

	renewed, err = s.RenewLock("scheduler", "node-a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, renewed)
}

func TestReleaseLockOnlyByHolder(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.TryAcquireLock("scheduler", "node-a", 10*time.Second)
	require.NoError(t, err)

	require.NoError(t, s.ReleaseLock("scheduler", "node-b"))
	_, live, err := s.GetLockHolder("scheduler")
	require.NoError(t, err)
	assert.True(t, live, "release by non-holder must be a no-op")

	require.NoError(t, s.ReleaseLock("scheduler", "node-a"))
	_, live, err = s.GetLockHolder("scheduler")
	require.NoError(t, err)
	assert.False(t, live)
}

func TestPing(t *testing.T) {
	s, _ := newTestStore(t)
	assert.NoError(t, s.Ping())
}

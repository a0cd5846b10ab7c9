package bootstrap_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetform/fleetsched/pkg/bootstrap"
	"github.com/fleetform/fleetsched/pkg/clock"
	"github.com/fleetform/fleetsched/pkg/events"
	"github.com/fleetform/fleetsched/pkg/executor"
	"github.com/fleetform/fleetsched/pkg/registry"
	"github.com/fleetform/fleetsched/pkg/schederr"
	"github.com/fleetform/fleetsched/pkg/store"
	"github.com/fleetform/fleetsched/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	entries map[string][]registry.Entry
	err     error
}

func (f *fakeRegistry) QueryFormation(name string) ([]registry.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[name], nil
}

func sampleRelease() *types.Release {
	return &types.Release{
		Name: "1",
		Services: map[string]types.ServiceTemplate{
			"_store":     {Image: "fleetform/store:latest"},
			"api":        {Image: "acme/api:v1"},
			"_bootstrap": {Image: "fleetform/bootstrap:latest"},
		},
	}
}

func TestRunDeploysStoreThenRemainingInstances(t *testing.T) {
	clk := clock.NewFake(time.Now())
	mgr := executor.NewFake()
	reg := &fakeRegistry{entries: map[string][]registry.Entry{
		"executor": {{Name: "exec-1", Instance: "exec-1"}},
	}}

	var mem *store.Mem
	newStore := func(ctx context.Context) (store.Store, error) {
		mem = store.NewMem(clk)
		return mem, nil
	}

	b := bootstrap.New("scheduler", reg, mgr, newStore, clk, events.NewBroker())
	s, err := b.Run(context.Background(), sampleRelease())
	require.NoError(t, err)
	require.NotNil(t, s)

	instances, err := s.Index("scheduler")
	require.NoError(t, err)
	require.Len(t, instances, 2, "only _store and api are deployed, _bootstrap is never an instance")

	for _, inst := range instances {
		assert.Equal(t, types.StateRunning, inst.State)
		assert.Equal(t, "exec-1", inst.AssignedTo)
	}

	assert.Len(t, mgr.Dispatched, 2)
}

func TestRunFailsWhenNoExecutorsRegistered(t *testing.T) {
	clk := clock.NewFake(time.Now())
	mgr := executor.NewFake()
	reg := &fakeRegistry{entries: map[string][]registry.Entry{}}

	newStore := func(ctx context.Context) (store.Store, error) {
		return store.NewMem(clk), nil
	}

	b := bootstrap.New("scheduler", reg, mgr, newStore, clk, events.NewBroker())
	_, err := b.Run(context.Background(), sampleRelease())
	assert.Error(t, err)
	assert.Empty(t, mgr.Dispatched)
}

// stuckManager dispatches successfully but never reports an instance as
// running, so deployAndWait's clock-driven retry loop must eventually
// exhaust DeployTimeout and return DeployFailure.
type stuckManager struct{ *executor.Fake }

func (m *stuckManager) Wait(ctx context.Context, instanceName, executorName string, timeout time.Duration) (types.InstanceState, error) {
	return types.StatePending, nil
}

func TestRunFailsFatallyWhenStoreNeverReachesRunning(t *testing.T) {
	clk := clock.NewFake(time.Now())
	mgr := &stuckManager{Fake: executor.NewFake()}
	reg := &fakeRegistry{entries: map[string][]registry.Entry{
		"executor": {{Name: "exec-1", Instance: "exec-1"}},
	}}

	newStore := func(ctx context.Context) (store.Store, error) {
		return store.NewMem(clk), nil
	}

	b := bootstrap.New("scheduler", reg, mgr, newStore, clk, events.NewBroker())

	done := make(chan error, 1)
	go func() { _, err := b.Run(context.Background(), sampleRelease()); done <- err }()

	// The fake clock's Sleep advances time immediately rather than
	// blocking wall time, so the retry loop runs to the deploy deadline
	// almost instantly.
	select {
	case err := <-done:
		require.Error(t, err)
		var deployErr *schederr.DeployFailure
		assert.True(t, errors.As(err, &deployErr), "expected a DeployFailure, got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("bootstrap did not return")
	}
}

package executor_test

import (
	"context"
	"testing"
	"time"

	"github.com/fleetform/fleetsched/pkg/executor"
	"github.com/fleetform/fleetsched/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeDispatchRecordsCall(t *testing.T) {
	f := executor.NewFake()
	inst := &types.Instance{Name: "api.abcd", Image: "acme/api:1"}

	require.NoError(t, f.Dispatch(context.Background(), inst, "exec-1"))
	require.Len(t, f.Dispatched, 1)
	assert.Equal(t, "api.abcd", f.Dispatched[0].Instance)
	assert.Equal(t, "exec-1", f.Dispatched[0].Executor)

	state, err := f.Wait(context.Background(), "api.abcd", "exec-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.StateRunning, state)
}

func TestFakeDispatchFailureReturnsDispatchError(t *testing.T) {
	f := executor.NewFake()
	inst := &types.Instance{Name: "api.abcd"}
	f.FailDispatch("api.abcd", assert.AnError)

	err := f.Dispatch(context.Background(), inst, "exec-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.abcd")
}

func TestFakeContainersAlignedWithNilForUnknown(t *testing.T) {
	f := executor.NewFake()
	known := &types.Instance{Name: "known.1", Image: "img"}
	require.NoError(t, f.Dispatch(context.Background(), known, "exec-1"))

	unknown := &types.Instance{Name: "unknown.1"}

	containers, err := f.Containers(context.Background(), []*types.Instance{known, unknown})
	require.NoError(t, err)
	require.Len(t, containers, 2)
	assert.NotNil(t, containers[0])
	assert.Nil(t, containers[1])
}

func TestFakeTerminateRemovesContainer(t *testing.T) {
	f := executor.NewFake()
	inst := &types.Instance{Name: "api.abcd"}
	require.NoError(t, f.Dispatch(context.Background(), inst, "exec-1"))

	require.NoError(t, f.Terminate(context.Background(), "api.abcd", "exec-1"))
	assert.Contains(t, f.Terminated, "api.abcd")

	containers, err := f.Containers(context.Background(), []*types.Instance{inst})
	require.NoError(t, err)
	assert.Nil(t, containers[0])
}

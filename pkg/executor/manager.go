// Package executor implements the executor-manager client (spec §6): the
// core's only collaborator for observing and mutating runtime container
// state. Manager is the full contract the control loops consume; grpcManager
// is the production implementation and Fake the in-memory test double
// used throughout pkg/scheduler and pkg/reconciler's tests.
package executor

import (
	"context"
	"time"

	"github.com/fleetform/fleetsched/pkg/types"
)

// Manager is the set of operations the core consumes from the executor
// manager (spec §6).
type Manager interface {
	// Clients returns a live snapshot of every known executor.
	Clients(ctx context.Context) ([]types.Executor, error)
	// Dispatch asynchronously delivers inst to the named executor.
	Dispatch(ctx context.Context, inst *types.Instance, executorName string) error
	// Wait blocks up to timeout for instanceName on executorName to reach
	// a terminal deploy state, returning the state observed.
	Wait(ctx context.Context, instanceName, executorName string, timeout time.Duration) (types.InstanceState, error)
	// Containers returns an aligned snapshot for instances: containers[i]
	// is nil when instances[i]'s container is not (yet) known to the
	// executor manager.
	Containers(ctx context.Context, instances []*types.Instance) ([]*types.Container, error)
	// Restart requests that the named executor restart instanceName's
	// container in place (used by the updater loop on drift, spec §4.6).
	Restart(ctx context.Context, instanceName, executorName string) error
	// Terminate requests that the named executor stop and remove
	// instanceName's container (used by the terminator loop, spec §4.7).
	Terminate(ctx context.Context, instanceName, executorName string) error
}

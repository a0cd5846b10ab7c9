package executor

import (
	"context"
	"sync"
	"time"

	"github.com/fleetform/fleetsched/pkg/schederr"
	"github.com/fleetform/fleetsched/pkg/types"
)

// Fake is an in-memory Manager used by control-loop tests (mirrors the
// teacher's test/framework fakes). Tests seed it with executors and
// containers, then assert on the Dispatched/Restarted/Terminated call
// logs it records.
type Fake struct {
	mu sync.Mutex

	executors  []types.Executor
	containers map[string]types.Container // instance name -> observed container

	failDispatch map[string]error // instance name -> error to return from Dispatch

	Dispatched []DispatchCall
	Restarted  []string
	Terminated []string
}

// DispatchCall records one Dispatch invocation for test assertions.
type DispatchCall struct {
	Instance string
	Executor string
}

// NewFake constructs an empty Fake manager.
func NewFake() *Fake {
	return &Fake{containers: make(map[string]types.Container), failDispatch: make(map[string]error)}
}

// SetExecutors replaces the snapshot Clients returns.
func (f *Fake) SetExecutors(executors []types.Executor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executors = executors
}

// SetContainer records the observed container for an instance name, as if
// the executor manager had reported it running.
func (f *Fake) SetContainer(instanceName string, c types.Container) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[instanceName] = c
}

// FailDispatch makes every subsequent Dispatch/Restart/Terminate call
// against instanceName return err, simulating an executor-manager failure.
func (f *Fake) FailDispatch(instanceName string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDispatch[instanceName] = err
}

func (f *Fake) Clients(ctx context.Context) ([]types.Executor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Executor, len(f.executors))
	copy(out, f.executors)
	return out, nil
}

func (f *Fake) Dispatch(ctx context.Context, inst *types.Instance, executorName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failDispatch[inst.Name]; ok {
		return &schederr.DispatchError{Instance: inst.Name, Executor: executorName, Err: err}
	}
	f.Dispatched = append(f.Dispatched, DispatchCall{Instance: inst.Name, Executor: executorName})
	f.containers[inst.Name] = types.Container{
		InstanceName: inst.Name,
		Image:        inst.Image,
		Command:      inst.Command,
		Env:          inst.Env,
		Ports:        inst.Ports,
	}
	return nil
}

func (f *Fake) Wait(ctx context.Context, instanceName, executorName string, timeout time.Duration) (types.InstanceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[instanceName]; ok {
		return types.StateRunning, nil
	}
	return types.StatePending, nil
}

func (f *Fake) Containers(ctx context.Context, instances []*types.Instance) ([]*types.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Container, len(instances))
	for i, inst := range instances {
		if c, ok := f.containers[inst.Name]; ok {
			cp := c
			out[i] = &cp
		}
	}
	return out, nil
}

func (f *Fake) Restart(ctx context.Context, instanceName, executorName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failDispatch[instanceName]; ok {
		return &schederr.DispatchError{Instance: instanceName, Executor: executorName, Err: err}
	}
	f.Restarted = append(f.Restarted, instanceName)
	return nil
}

func (f *Fake) Terminate(ctx context.Context, instanceName, executorName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failDispatch[instanceName]; ok {
		return &schederr.DispatchError{Instance: instanceName, Executor: executorName, Err: err}
	}
	f.Terminated = append(f.Terminated, instanceName)
	delete(f.containers, instanceName)
	return nil
}

// Package bootstrap implements the one-shot bootstrap procedure (spec
// §4.8), adapted from the teacher's startup sequence in cmd/warren and
// grounded on original_source/xscheduler/bootstrap.py's _bootstrap0: the
// coordination store cannot be written to before it exists, so the
// "_store" instance is created by value, dispatched, and waited on before
// any other instance — including its own record — is ever persisted.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fleetform/fleetsched/pkg/clock"
	"github.com/fleetform/fleetsched/pkg/events"
	"github.com/fleetform/fleetsched/pkg/executor"
	"github.com/fleetform/fleetsched/pkg/leaderlock"
	"github.com/fleetform/fleetsched/pkg/log"
	"github.com/fleetform/fleetsched/pkg/metrics"
	"github.com/fleetform/fleetsched/pkg/registry"
	"github.com/fleetform/fleetsched/pkg/schederr"
	"github.com/fleetform/fleetsched/pkg/store"
	"github.com/fleetform/fleetsched/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DeployTimeout bounds how long bootstrap waits for an instance to reach
// RUNNING before giving up (spec §4.8 step 4).
const DeployTimeout = 10 * time.Minute

// SettleInterval is how long bootstrap waits after dispatching "_store"
// before assuming its service endpoint is reachable (spec §4.8 step 5).
const SettleInterval = 4 * time.Second

// NewStoreClient constructs the coordination-store client once "_store"
// is reachable. Bootstrap cannot import pkg/store directly for this
// because the concrete backing (bbolt over a local data directory versus
// a remote client of the instance it just deployed) is a deployment
// concern the caller owns; Bootstrap takes the constructor as a
// collaborator instead.
type NewStoreClient func(ctx context.Context) (store.Store, error)

// Bootstrap holds bootstrap's collaborators.
type Bootstrap struct {
	formation  string
	registry   registry.Client
	manager    executor.Manager
	newStore   NewStoreClient
	clock      clock.Clock
	broker     *events.Broker
	logger     zerolog.Logger
}

// New constructs a Bootstrap.
func New(formation string, reg registry.Client, mgr executor.Manager, newStore NewStoreClient, c clock.Clock, broker *events.Broker) *Bootstrap {
	return &Bootstrap{
		formation: formation,
		registry:  reg,
		manager:   mgr,
		newStore:  newStore,
		clock:     c,
		broker:    broker,
		logger:    log.WithFormation(log.WithComponent("bootstrap"), formation),
	}
}

func (b *Bootstrap) publish(message string) {
	if b.broker == nil {
		return
	}
	b.broker.Publish(&events.Event{Type: events.EventBootstrapPhase, Message: message})
}

// Run executes the bootstrap procedure against release, returning the
// live store client it constructed once "_store" was running. Run must
// complete exactly once, before any control loop is started against the
// formation.
func (b *Bootstrap) Run(ctx context.Context, release *types.Release) (store.Store, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.BootstrapDuration)

	instances := b.allocateInstances(release)

	storeInst, ok := instances[types.ServiceStore]
	if !ok {
		return nil, fmt.Errorf("bootstrap: release has no %q service", types.ServiceStore)
	}

	b.publish("selecting executor for " + types.ServiceStore)
	executorName, err := b.selectExecutor(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: select executor for %s: %w", types.ServiceStore, err)
	}

	b.publish("deploying " + types.ServiceStore)
	if err := b.deployAndWait(ctx, storeInst, executorName, types.ServiceStore); err != nil {
		return nil, err
	}

	b.logger.Info().Dur("settle", SettleInterval).Msg("waiting for _store service to become reachable")
	b.clock.Sleep(SettleInterval)

	s, err := b.newStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: construct store client: %w", err)
	}

	storeInst.State = types.StateRunning
	storeInst.AssignedTo = executorName
	storeInst.UpdatedAt = b.clock.Now()
	if err := s.PutInstance(storeInst); err != nil {
		return nil, fmt.Errorf("bootstrap: persist %s: %w", types.ServiceStore, err)
	}
	if err := s.PutRelease(b.formation, release); err != nil {
		return nil, fmt.Errorf("bootstrap: persist release: %w", err)
	}

	lock := leaderlock.New(s, b.clock, b.logger, "leader", "bootstrapper", leaderlock.DefaultLease, leaderlock.DefaultRetry)
	err = leaderlock.WithLock(ctx, lock, func() error {
		return b.deployRemaining(ctx, s, instances, storeInst.Name)
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: deploy remaining instances: %w", err)
	}

	b.publish("complete")
	b.logger.Info().Msg("bootstrap complete, scheduler should be up and running")
	return s, nil
}

// allocateInstances builds in-memory instance records for every service
// in release except "_bootstrap" (spec §4.8 step 2). Nothing is persisted
// yet — "_store" does not exist to persist to.
func (b *Bootstrap) allocateInstances(release *types.Release) map[string]*types.Instance {
	instances := make(map[string]*types.Instance, len(release.Services))
	for service, tmpl := range release.Services {
		if service == types.ServiceBootstrap {
			continue
		}
		id := uuid.New().String()[:8]
		instances[service] = &types.Instance{
			Formation: b.formation,
			Service:   service,
			Name:      service + "." + id,
			Release:   release.Name,
			ID:        id,
			Image:     tmpl.Image,
			Command:   tmpl.Command,
			Env:       tmpl.Env,
			Ports:     tmpl.Ports,
			State:     types.StatePending,
			CreatedAt: b.clock.Now(),
			UpdatedAt: b.clock.Now(),
		}
	}
	return instances
}

// selectExecutor picks any executor from the service registry's
// "executor" formation query (spec §4.8 step 3). Any result is
// acceptable: bootstrap does not run the placement policy.
func (b *Bootstrap) selectExecutor(ctx context.Context) (string, error) {
	entries, err := b.registry.QueryFormation("executor")
	if err != nil {
		return "", fmt.Errorf("query executor formation: %w", err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no executors registered")
	}
	return entries[0].Instance, nil
}

// deployAndWait dispatches inst to executorName and blocks until it
// reaches RUNNING or DeployTimeout elapses. Non-RUNNING states and
// DispatchErrors from Wait are retried once a second until the deadline;
// reaching the deadline without RUNNING is fatal (spec §4.8 step 4, §7
// DeployFailure), and any other Wait error is returned at once.
func (b *Bootstrap) deployAndWait(ctx context.Context, inst *types.Instance, executorName, label string) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.BootstrapDeployDuration, label)

	execLogger := log.WithExecutor(log.WithInstance(b.logger, inst.Name), executorName)
	execLogger.Info().Msg("dispatching instance")
	if err := b.manager.Dispatch(ctx, inst, executorName); err != nil {
		return fmt.Errorf("bootstrap: dispatch %s: %w", inst.Name, err)
	}

	deadline := b.clock.Now().Add(DeployTimeout)
	for {
		state, err := b.manager.Wait(ctx, inst.Name, executorName, DeployTimeout)
		if err != nil {
			var dispatchErr *schederr.DispatchError
			if !errors.As(err, &dispatchErr) {
				return fmt.Errorf("bootstrap: wait for %s: %w", inst.Name, err)
			}
			execLogger.Warn().Err(err).Msg("wait failed, retrying")
		} else if state == types.StateRunning {
			inst.State = types.StateRunning
			inst.AssignedTo = executorName
			return nil
		}

		if !b.clock.Now().Before(deadline) {
			return &schederr.DeployFailure{Instance: inst.Name, Executor: executorName, State: string(state)}
		}
		b.clock.Sleep(time.Second)
	}
}

// deployRemaining dispatches every instance other than "_store" while
// holding the leader lock, persisting each as it reaches RUNNING (spec
// §4.8 step 7). storeName is excluded since it was already handled by Run
// before the lock was acquired.
func (b *Bootstrap) deployRemaining(ctx context.Context, s store.Store, instances map[string]*types.Instance, storeName string) error {
	for service, inst := range instances {
		if inst.Name == storeName {
			continue
		}
		if err := s.PutInstance(inst); err != nil {
			return fmt.Errorf("persist %s: %w", inst.Name, err)
		}

		executorName, err := b.selectExecutor(ctx)
		if err != nil {
			return fmt.Errorf("select executor for %s: %w", service, err)
		}
		if err := b.deployAndWait(ctx, inst, executorName, service); err != nil {
			return err
		}
		inst.UpdatedAt = b.clock.Now()
		if err := s.PutInstance(inst); err != nil {
			return fmt.Errorf("persist %s: %w", inst.Name, err)
		}
	}
	return nil
}

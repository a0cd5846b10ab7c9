// Package scheduler implements the scheduler control loop (spec §4.5):
// every tick, dispatch unassigned instances to an executor chosen by
// pkg/placement, re-dispatching already-assigned ones to recover a
// partially completed earlier placement.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/fleetform/fleetsched/pkg/clock"
	"github.com/fleetform/fleetsched/pkg/events"
	"github.com/fleetform/fleetsched/pkg/executor"
	"github.com/fleetform/fleetsched/pkg/log"
	"github.com/fleetform/fleetsched/pkg/metrics"
	"github.com/fleetform/fleetsched/pkg/placement"
	"github.com/fleetform/fleetsched/pkg/ratelimit"
	"github.com/fleetform/fleetsched/pkg/runner"
	"github.com/fleetform/fleetsched/pkg/schederr"
	"github.com/fleetform/fleetsched/pkg/store"
	"github.com/fleetform/fleetsched/pkg/types"
	"github.com/rs/zerolog"
)

// TickInterval is the cadence every control loop in this module ticks at
// (spec §4.5–§4.7).
const TickInterval = 3 * time.Second

// Scheduler is the scheduler control loop.
type Scheduler struct {
	formation string
	store     store.Store
	manager   executor.Manager
	clock     clock.Clock
	bucket    *ratelimit.Bucket
	broker    *events.Broker
	isLeader  func() bool
	logger    zerolog.Logger

	runner *runner.PeriodicRunner
}

// New constructs a Scheduler for formation. isLeader gates every cycle:
// non-leader processes run a no-op cycle (spec §5, "Leader discipline").
func New(formation string, s store.Store, mgr executor.Manager, c clock.Clock, broker *events.Broker, isLeader func() bool) *Scheduler {
	sched := &Scheduler{
		formation: formation,
		store:     s,
		manager:   mgr,
		clock:     c,
		bucket:    ratelimit.NewDefault(c),
		broker:    broker,
		isLeader:  isLeader,
		logger:    log.WithFormation(log.WithComponent("scheduler"), formation),
	}
	sched.runner = runner.New(TickInterval, func() { sched.Tick(context.Background()) }, sched.logger)
	return sched
}

// Start begins the control loop on its own goroutine.
func (s *Scheduler) Start() { s.runner.Start() }

// Stop cooperatively stops the control loop.
func (s *Scheduler) Stop() { s.runner.Stop() }

// Tick runs exactly one scheduling cycle (spec §4.5): acquire up to 30
// tokens and dispatch every unassigned instance, breaking out once the
// bucket is empty.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.isLeader() {
		return
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

	instances, err := s.store.Unassigned(s.formation)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to query unassigned instances")
		return
	}
	if len(instances) == 0 {
		return
	}

	executors, err := s.manager.Clients(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list executor clients")
		return
	}

	for _, inst := range instances {
		if !s.bucket.Check() {
			metrics.RateLimitExhaustedTotal.WithLabelValues("scheduler").Inc()
			break
		}
		s.dispatchOne(ctx, inst, executors)
	}
}

// dispatchOne handles one instance: re-dispatch if already assigned
// (recovering a partially completed earlier placement), otherwise run the
// placement policy and dispatch to its choice.
func (s *Scheduler) dispatchOne(ctx context.Context, inst *types.Instance, executors []types.Executor) {
	instLogger := log.WithInstance(s.logger, inst.Name)

	target := inst.AssignedTo
	if target == "" {
		selected, ok := placement.Select(executors, inst.Placement)
		if !ok {
			metrics.DispatchTotal.WithLabelValues("no_match").Inc()
			return
		}
		target = selected.Name
	}
	execLogger := log.WithExecutor(instLogger, target)

	if err := s.manager.Dispatch(ctx, inst, target); err != nil {
		var dispatchErr *schederr.DispatchError
		if errors.As(err, &dispatchErr) {
			execLogger.Warn().Err(err).Msg("dispatch failed, will retry next cycle")
			metrics.DispatchTotal.WithLabelValues("error").Inc()
			return
		}
		instLogger.Error().Err(err).Msg("unexpected dispatch error")
		metrics.DispatchTotal.WithLabelValues("error").Inc()
		return
	}

	inst.AssignedTo = target
	inst.UpdatedAt = s.clock.Now()
	if err := s.store.PutInstance(inst); err != nil {
		instLogger.Error().Err(err).Msg("failed to persist assignment")
		return
	}

	metrics.DispatchTotal.WithLabelValues("ok").Inc()
	execLogger.Info().Msg("dispatched")
	if s.broker != nil {
		s.broker.Publish(&events.Event{
			Type:    events.EventInstanceDispatched,
			Message: inst.Name + " -> " + target,
		})
	}
}

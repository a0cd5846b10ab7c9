package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/fleetform/fleetsched/pkg/clock"
	"github.com/fleetform/fleetsched/pkg/events"
	"github.com/fleetform/fleetsched/pkg/executor"
	"github.com/fleetform/fleetsched/pkg/log"
	"github.com/fleetform/fleetsched/pkg/metrics"
	"github.com/fleetform/fleetsched/pkg/ratelimit"
	"github.com/fleetform/fleetsched/pkg/runner"
	"github.com/fleetform/fleetsched/pkg/schederr"
	"github.com/fleetform/fleetsched/pkg/store"
	"github.com/fleetform/fleetsched/pkg/types"
	"github.com/rs/zerolog"
)

// TickInterval is the cadence both loops in this package tick at (spec
// §4.6–§4.7), matching pkg/scheduler's.
const TickInterval = 3 * time.Second

// Updater is the updater control loop (spec §4.6): it detects drift
// between an instance's declared configuration and its observed
// container, and repairs it.
type Updater struct {
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

// NewUpdater constructs an Updater for formation.
func NewUpdater(formation string, s store.Store, mgr executor.Manager, c clock.Clock, broker *events.Broker, isLeader func() bool) *Updater {
	u := &Updater{
		formation: formation,
		store:     s,
		manager:   mgr,
		clock:     c,
		bucket:    ratelimit.NewDefault(c),
		broker:    broker,
		isLeader:  isLeader,
		logger:    log.WithFormation(log.WithComponent("updater"), formation),
	}
	u.runner = runner.New(TickInterval, func() { u.Tick(context.Background()) }, u.logger)
	return u
}

// Start begins the control loop on its own goroutine.
func (u *Updater) Start() { u.runner.Start() }

// Stop cooperatively stops the control loop.
func (u *Updater) Stop() { u.runner.Stop() }

// Tick runs exactly one updater cycle.
func (u *Updater) Tick(ctx context.Context) {
	if !u.isLeader() {
		return
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.UpdateLatency)

	instances, err := u.store.Index(u.formation)
	if err != nil {
		u.logger.Error().Err(err).Msg("failed to query instance index")
		return
	}
	if len(instances) == 0 {
		return
	}

	containers, err := u.manager.Containers(ctx, instances)
	if err != nil {
		u.logger.Error().Err(err).Msg("failed to query observed containers")
		return
	}

	for i, inst := range instances {
		if !inst.IsRunning() {
			continue
		}
		container := containers[i]
		if container == nil {
			continue
		}
		if u.reconcileOne(ctx, inst, container) {
			break
		}
	}
}

// reconcileOne compares inst's declared configuration against its observed
// container and repairs any drift. A rate-limit token is consumed only
// when a corrective action is actually due (a restart, or marking a
// matched MIGRATING instance RUNNING) — a steady-state instance that
// already matches does no work and costs nothing. reconcileOne reports
// true when the bucket was found exhausted, so Tick can stop the cycle
// rather than skip past the instance that needed the action.
func (u *Updater) reconcileOne(ctx context.Context, inst *types.Instance, container *types.Container) (exhausted bool) {
	if !container.EqualToInstance(inst) {
		if !u.bucket.Check() {
			metrics.RateLimitExhaustedTotal.WithLabelValues("updater").Inc()
			return true
		}
		u.restart(ctx, inst)
		return false
	}

	if inst.State == types.StateMigrating {
		if !u.bucket.Check() {
			metrics.RateLimitExhaustedTotal.WithLabelValues("updater").Inc()
			return true
		}
		u.completeMigration(inst)
	}
	return false
}

func (u *Updater) restart(ctx context.Context, inst *types.Instance) {
	execLogger := log.WithExecutor(log.WithInstance(u.logger, inst.Name), inst.AssignedTo)

	if err := u.manager.Restart(ctx, inst.Name, inst.AssignedTo); err != nil {
		var dispatchErr *schederr.DispatchError
		if errors.As(err, &dispatchErr) {
			execLogger.Warn().Err(err).Msg("restart failed, will retry next cycle")
			return
		}
		execLogger.Error().Err(err).Msg("unexpected restart error")
		return
	}

	metrics.RestartsTotal.Inc()
	execLogger.Info().Msg("drift detected, restart requested")
	if u.broker != nil {
		u.broker.Publish(&events.Event{Type: events.EventInstanceRestarted, Message: inst.Name})
	}
}

func (u *Updater) completeMigration(inst *types.Instance) {
	instLogger := log.WithInstance(u.logger, inst.Name)

	inst.State = types.StateRunning
	inst.UpdatedAt = u.clock.Now()
	if err := u.store.PutInstance(inst); err != nil {
		instLogger.Error().Err(err).Msg("failed to persist migration completion")
		return
	}

	metrics.MigrationsRepairedTotal.Inc()
	instLogger.Info().Msg("migration already matched observed container, marked running")
	if u.broker != nil {
		u.broker.Publish(&events.Event{Type: events.EventInstanceMigrated, Message: inst.Name})
	}
}

// Terminator is the terminator control loop (spec §4.7): it drives
// shutting-down instances to terminated by asking the executor manager to
// tear down their container.
type Terminator struct {
	formation string
	store     store.Store
	manager   executor.Manager
	bucket    *ratelimit.Bucket
	broker    *events.Broker
	isLeader  func() bool
	logger    zerolog.Logger

	runner *runner.PeriodicRunner
}

// NewTerminator constructs a Terminator for formation.
func NewTerminator(formation string, s store.Store, mgr executor.Manager, c clock.Clock, broker *events.Broker, isLeader func() bool) *Terminator {
	term := &Terminator{
		formation: formation,
		store:     s,
		manager:   mgr,
		bucket:    ratelimit.NewDefault(c),
		broker:    broker,
		isLeader:  isLeader,
		logger:    log.WithFormation(log.WithComponent("terminator"), formation),
	}
	term.runner = runner.New(TickInterval, func() { term.Tick(context.Background()) }, term.logger)
	return term
}

// Start begins the control loop on its own goroutine.
func (t *Terminator) Start() { t.runner.Start() }

// Stop cooperatively stops the control loop.
func (t *Terminator) Stop() { t.runner.Stop() }

// Tick runs exactly one terminator cycle.
func (t *Terminator) Tick(ctx context.Context) {
	if !t.isLeader() {
		return
	}

	instances, err := t.store.ShuttingDown(t.formation)
	if err != nil {
		t.logger.Error().Err(err).Msg("failed to query shutting-down instances")
		return
	}

	for _, inst := range instances {
		if !t.bucket.Check() {
			metrics.RateLimitExhaustedTotal.WithLabelValues("terminator").Inc()
			break
		}
		t.terminateOne(ctx, inst)
	}
}

func (t *Terminator) terminateOne(ctx context.Context, inst *types.Instance) {
	instLogger := log.WithExecutor(log.WithInstance(t.logger, inst.Name), inst.AssignedTo)

	if err := t.manager.Terminate(ctx, inst.Name, inst.AssignedTo); err != nil {
		var dispatchErr *schederr.DispatchError
		if errors.As(err, &dispatchErr) {
			instLogger.Warn().Err(err).Msg("terminate failed, will retry next cycle")
			return
		}
		instLogger.Error().Err(err).Msg("unexpected terminate error")
		return
	}

	metrics.TerminationsTotal.Inc()
	instLogger.Info().Msg("terminated")
	if t.broker != nil {
		t.broker.Publish(&events.Event{Type: events.EventInstanceTerminated, Message: inst.Name})
	}
}

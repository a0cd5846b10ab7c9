// Package runner implements PeriodicRunner (spec §4.2), modeled on the
// ticker-driven run loops of the teacher's scheduler and reconciler
// (cuemby/warren pkg/scheduler, pkg/reconciler): a dedicated goroutine fires
// a task at a fixed cadence until Stop is requested.
package runner

import (
	"time"

	"github.com/rs/zerolog"
)

// PeriodicRunner fires Task on a fixed interval until Stop is called. The
// interval is the delay between one iteration's completion and the next
// start, not a fixed phase — so a slow iteration pushes later ones back
// rather than causing a burst of catch-up runs.
type PeriodicRunner struct {
	interval time.Duration
	task     func()
	logger   zerolog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a PeriodicRunner. interval is the delay between ticks;
// task is the nullary unit of work. The logger is used to report panics
// recovered from task so a single bad iteration never kills the runner.
func New(interval time.Duration, task func(), logger zerolog.Logger) *PeriodicRunner {
	return &PeriodicRunner{
		interval: interval,
		task:     task,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins running the task on a dedicated goroutine at the configured
// cadence.
func (r *PeriodicRunner) Start() {
	go r.run()
}

// Stop requests cancellation and waits for the in-flight iteration (if any)
// to complete before returning.
func (r *PeriodicRunner) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *PeriodicRunner) run() {
	defer close(r.doneCh)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-timer.C:
			r.runOnce()
			timer.Reset(r.interval)
		}
	}
}

// runOnce executes a single iteration, recovering any panic so exceptions
// from the task never terminate the runner (spec §4.2).
func (r *PeriodicRunner) runOnce() {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("control loop iteration panicked, continuing")
		}
	}()
	r.task()
}

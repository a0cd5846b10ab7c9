/*
Package log provides structured logging via zerolog: a package-level
global Logger initialized once with Init, and chainable child-logger
helpers (WithComponent, WithFormation, WithInstance, WithExecutor) that
the control loops and the bootstrapper compose into a per-call logger
carrying whatever scope is known at that point.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	l := log.WithFormation(log.WithComponent("scheduler"), formation)
	log.WithInstance(l, inst.Name).Info().Msg("dispatched")

Every DispatchError swallowed by a control loop (spec §7) is logged at
warn; restart/terminate/migrate decisions at info. The rate limiter and
periodic runner log nothing in steady state.
*/
package log

// Package metrics defines the Prometheus collectors fleetsched's control
// loops and bootstrap procedure report against (spec §10).
//
// InstancesTotal is a single gauge vector keyed by state rather than one
// gauge per state. It and the leader-lock collectors (LeaderLockHeld,
// LeaderLockAcquisitionsTotal, LeaderLockLostTotal) are registered, but
// no package in this module sets them. The other collectors are updated
// directly by the package that produces the observation — pkg/scheduler
// increments DispatchTotal and observes SchedulingLatency, pkg/reconciler
// increments RestartsTotal, MigrationsRepairedTotal and TerminationsTotal
// and observes UpdateLatency, pkg/scheduler and pkg/reconciler increment
// RateLimitExhaustedTotal (labelled by loop) when their bucket runs dry,
// and pkg/bootstrap observes BootstrapDuration and
// BootstrapDeployDuration — there is no separate polling collector that
// walks live state the way a sidecar collector would against a running
// manager, since every metric here is produced as a side effect of a
// control-loop tick rather than sampled out-of-band.
//
// Handler exposes the registered collectors over HTTP for scraping;
// pkg/ophealth mounts it alongside /health and /ready on the same
// operational listener.
//
// Timer is a small stopwatch helper used with ObserveDuration and
// ObserveDurationVec to time a call and record it against a histogram in
// one deferred line:
//
//	timer := metrics.NewTimer()
//	defer timer.ObserveDuration(metrics.SchedulingLatency)
package metrics

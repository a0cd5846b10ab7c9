/*
Package reconciler implements fleetsched's Updater and Terminator control
loops (spec §4.6, §4.7), adapted from the teacher's pkg/reconciler
reconcileNodes/reconcileContainers cycle: both loops compare an observed
executor-reported reality against the store's declared intent and issue
corrective action through the executor manager, one rate-limited
corrective call per drifted instance per tick.

Updater pairs pkg/store's full instance index with the executor manager's
Containers(instances) call and, for each running instance whose observed
container differs from its declared configuration, requests a restart; an
instance stuck MIGRATING whose container already matches is transitioned
straight to RUNNING, covering a migration whose originating scheduler
crashed before it could record completion.

Terminator iterates pkg/store's shutting-down instances and calls
Terminate on each.

Both loops are leader-gated and share the token-bucket discipline used by
pkg/scheduler: one token per corrective action, the cycle stops the moment
the bucket is empty, and a pkg/schederr.DispatchError is logged and
swallowed rather than aborting the tick.
*/
package reconciler

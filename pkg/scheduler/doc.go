/*
Package scheduler implements fleetsched's scheduler control loop (spec
§4.5).

Every tick it queries pkg/store for instances still requiring placement
(state PENDING or MIGRATING) and, for each:

  - if assigned_to is already set, re-dispatches to that executor,
    recovering a placement that was interrupted partway through;
  - otherwise runs pkg/placement against the live executor fleet and
    dispatches to its choice.

A token-bucket rate limiter (pkg/ratelimit) bounds how many dispatch
calls a single tick issues; the cycle breaks as soon as the bucket is
exhausted rather than queuing the remainder for later in the same tick.
A pkg/schederr.DispatchError is logged at warn and swallowed — the
instance stays PENDING and is retried on the next tick. Any other
dispatch error is logged at error; the cycle then moves on to the next
instance.

The loop is leader-gated: outside the process holding the "leader" lock
(pkg/leaderlock), Tick is a no-op (spec §5).
*/
package scheduler

/*
Package store implements the coordination store every control loop,
the leader lock and the bootstrapper read and write against (spec §6,
§9). Two implementations share the Store interface:

	b, err := store.NewBolt(dataDir, clock.System{})  // production, bbolt-backed
	m := store.NewMem(clock.NewFake(t0))               // tests, in-memory

Both apply the same create-if-absent CAS and absolute-deadline lease
semantics for TryAcquireLock/RenewLock/ReleaseLock/GetLockHolder, so a
test written against Mem with a fake clock exercises the same lock
contract pkg/leaderlock relies on in production.
*/
package store

// Package store implements the coordination store (spec §6, §9): the single
// transactional backing every control loop and the bootstrapper read and
// write against. The real implementation is bbolt-backed (pkg/store.Bolt,
// grounded on the teacher's pkg/storage/boltdb.go); pkg/store.Mem is an
// in-memory alternative used by tests that need determinism without a
// filesystem.
package store

import (
	"time"

	"github.com/fleetform/fleetsched/pkg/types"
)

// Store is the full coordination-store contract: key reads/writes with
// create-if-absent semantics for the leader lock, plus the query shapes the
// three control loops and the bootstrapper need directly, so they never have
// to fetch every instance in a formation and filter client-side.
type Store interface {
	// PutInstance upserts an instance record keyed by (formation, name).
	PutInstance(inst *types.Instance) error
	// GetInstance returns the instance named name in formation, or
	// (nil, nil) if it does not exist.
	GetInstance(formation, name string) (*types.Instance, error)
	// DeleteInstance removes the instance record, if present.
	DeleteInstance(formation, name string) error
	// Index returns every instance declared for formation, regardless of
	// state, sorted by name.
	Index(formation string) ([]*types.Instance, error)
	// Unassigned returns every instance in formation whose state still
	// needs placement (PENDING or MIGRATING), whether or not AssignedTo is
	// set, the scheduler loop's input set (spec §4.5).
	Unassigned(formation string) ([]*types.Instance, error)
	// ShuttingDown returns every instance in formation in the
	// SHUTTING_DOWN state, the terminator loop's input set (spec §4.7).
	ShuttingDown(formation string) ([]*types.Instance, error)

	// PutRelease upserts a release record keyed by (formation, name).
	PutRelease(formation string, rel *types.Release) error
	// GetRelease returns the named release, or (nil, nil) if absent.
	GetRelease(formation, name string) (*types.Release, error)

	// TryAcquireLock attempts to claim lock name for holder with the
	// given lease duration. It succeeds (true, nil) if the slot was
	// absent or its lease had already expired; otherwise it returns
	// (false, nil) without error — contention is not exceptional.
	TryAcquireLock(name, holder string, lease time.Duration) (bool, error)
	// RenewLock extends holder's lease on name by lease, provided holder
	// still owns it. It returns (false, nil) if holder has lost the lock.
	RenewLock(name, holder string, lease time.Duration) (bool, error)
	// ReleaseLock drops holder's claim on name if still held, a no-op
	// otherwise.
	ReleaseLock(name, holder string) error
	// GetLockHolder returns the current holder of name and whether its
	// lease is still live, or ("", false, nil) if unclaimed or expired.
	GetLockHolder(name string) (holder string, live bool, err error)

	// Ping is a lightweight liveness check used by pkg/ophealth's /ready
	// endpoint — a no-op read transaction against the store. Bootstrap
	// does not call it.
	Ping() error

	// Close releases any resources held by the store.
	Close() error
}

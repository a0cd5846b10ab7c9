// Package leaderlock implements the scoped cross-process mutual-exclusion
// primitive described in spec §4.3: entering acquires a named slot in the
// coordination store (retrying on contention), exiting always releases,
// and holding while another process steals the slot surfaces as
// schederr.LockLost so the caller can abort its in-flight section.
package leaderlock

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetform/fleetsched/pkg/clock"
	"github.com/fleetform/fleetsched/pkg/schederr"
	"github.com/fleetform/fleetsched/pkg/store"
	"github.com/rs/zerolog"
)

// Default lease and retry parameters. The lease must comfortably exceed
// one control-loop tick so a healthy holder never loses its own lock to
// expiry; the retry interval controls how quickly a contending process
// notices the slot has freed up.
const (
	DefaultLease = 15 * time.Second
	DefaultRetry = 500 * time.Millisecond
)

// Lock is a named slot in the coordination store, scoped to one holder
// identity (spec §3, "LeaderLock record").
type Lock struct {
	store  store.Store
	clock  clock.Clock
	logger zerolog.Logger

	name   string
	holder string
	lease  time.Duration
	retry  time.Duration
}

// New constructs a Lock for name, to be acquired under holder's identity.
func New(s store.Store, c clock.Clock, logger zerolog.Logger, name, holder string, lease, retry time.Duration) *Lock {
	return &Lock{
		store:  s,
		clock:  c,
		logger: logger,
		name:   name,
		holder: holder,
		lease:  lease,
		retry:  retry,
	}
}

// Acquire blocks, retrying on the configured interval, until the lock is
// obtained or ctx is canceled.
func (l *Lock) Acquire(ctx context.Context) error {
	for {
		ok, err := l.store.TryAcquireLock(l.name, l.holder, l.lease)
		if err != nil {
			return fmt.Errorf("acquire lock %q: %w", l.name, err)
		}
		if ok {
			l.logger.Debug().Str("lock", l.name).Str("holder", l.holder).Msg("acquired leader lock")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		l.clock.Sleep(l.retry)
	}
}

// Renew extends the lease. It returns schederr.LockLost if another holder
// has taken the slot since Acquire (or the previous Renew) succeeded.
func (l *Lock) Renew() error {
	ok, err := l.store.RenewLock(l.name, l.holder, l.lease)
	if err != nil {
		return fmt.Errorf("renew lock %q: %w", l.name, err)
	}
	if ok {
		return nil
	}
	holder, _, err := l.store.GetLockHolder(l.name)
	if err != nil {
		return fmt.Errorf("renew lock %q: %w", l.name, err)
	}
	return &schederr.LockLost{Lock: l.name, Holder: holder}
}

// Release drops this holder's claim, a no-op if it is no longer held.
func (l *Lock) Release() error {
	if err := l.store.ReleaseLock(l.name, l.holder); err != nil {
		return fmt.Errorf("release lock %q: %w", l.name, err)
	}
	l.logger.Debug().Str("lock", l.name).Str("holder", l.holder).Msg("released leader lock")
	return nil
}

// WithLock acquires the lock, runs fn, and always releases afterward —
// even if fn panics or returns an error — mirroring the scoped
// enter/exit contract spec §4.3 describes ("exiting always releases
// even on error").
func WithLock(ctx context.Context, l *Lock, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			l.logger.Warn().Err(err).Str("lock", l.name).Msg("failed to release leader lock")
		}
	}()
	return fn()
}

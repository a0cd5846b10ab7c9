package store

import (
	"sync"
	"time"

	"github.com/fleetform/fleetsched/pkg/clock"
	"github.com/fleetform/fleetsched/pkg/types"
)

// Mem is an in-memory Store, used by control-loop and bootstrap tests that
// want deterministic behavior without touching the filesystem. It
// implements the exact same CAS/lease semantics as Bolt against a
// plain map, guarded by a mutex instead of bbolt's transaction log.
type Mem struct {
	mu sync.Mutex

	clock clock.Clock

	instances map[string]*types.Instance // key: formation+"/"+name
	releases  map[string]*types.Release  // key: formation+"/"+name
	locks     map[string]lockRecord
}

// NewMem constructs an empty Mem store using clk for lease comparisons.
func NewMem(clk clock.Clock) *Mem {
	return &Mem{
		clock:     clk,
		instances: make(map[string]*types.Instance),
		releases:  make(map[string]*types.Release),
		locks:     make(map[string]lockRecord),
	}
}

func (s *Mem) Close() error { return nil }
func (s *Mem) Ping() error  { return nil }

func (s *Mem) PutInstance(inst *types.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inst
	s.instances[inst.Formation+"/"+inst.Name] = &cp
	return nil
}

func (s *Mem) GetInstance(formation, name string) (*types.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[formation+"/"+name]
	if !ok {
		return nil, nil
	}
	cp := *inst
	return &cp, nil
}

func (s *Mem) DeleteInstance(formation, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, formation+"/"+name)
	return nil
}

func (s *Mem) Index(formation string) ([]*types.Instance, error) {
	return s.filter(formation, func(*types.Instance) bool { return true })
}

// Unassigned returns every instance whose state still requires placement
// (PENDING or MIGRATING), regardless of whether assigned_to is already
// set — see Bolt.Unassigned for why a stale assignment still qualifies.
func (s *Mem) Unassigned(formation string) ([]*types.Instance, error) {
	return s.filter(formation, func(i *types.Instance) bool {
		return i.State == types.StatePending || i.State == types.StateMigrating
	})
}

func (s *Mem) ShuttingDown(formation string) ([]*types.Instance, error) {
	return s.filter(formation, func(i *types.Instance) bool {
		return i.State == types.StateShuttingDown
	})
}

func (s *Mem) filter(formation string, keep func(*types.Instance) bool) ([]*types.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Instance
	for _, inst := range s.instances {
		if inst.Formation != formation {
			continue
		}
		if keep(inst) {
			cp := *inst
			out = append(out, &cp)
		}
	}
	types.SortInstancesByName(out)
	return out, nil
}

func (s *Mem) PutRelease(formation string, rel *types.Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rel
	s.releases[formation+"/"+rel.Name] = &cp
	return nil
}

func (s *Mem) GetRelease(formation, name string) (*types.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, ok := s.releases[formation+"/"+name]
	if !ok {
		return nil, nil
	}
	cp := *rel
	return &cp, nil
}

func (s *Mem) TryAcquireLock(name, holder string, lease time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if rec, ok := s.locks[name]; ok && rec.Holder != "" && now.Before(rec.Deadline) {
		return false, nil
	}
	s.locks[name] = lockRecord{Holder: holder, Deadline: now.Add(lease)}
	return true, nil
}

func (s *Mem) RenewLock(name, holder string, lease time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	rec, ok := s.locks[name]
	if !ok || rec.Holder != holder || !now.Before(rec.Deadline) {
		return false, nil
	}
	rec.Deadline = now.Add(lease)
	s.locks[name] = rec
	return true, nil
}

func (s *Mem) ReleaseLock(name, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.locks[name]; ok && rec.Holder == holder {
		delete(s.locks, name)
	}
	return nil
}

func (s *Mem) GetLockHolder(name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.locks[name]
	if !ok {
		return "", false, nil
	}
	if !s.clock.Now().Before(rec.Deadline) {
		return "", false, nil
	}
	return rec.Holder, true, nil
}

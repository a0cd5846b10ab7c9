package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fleetform/fleetsched/pkg/clock"
	"github.com/fleetform/fleetsched/pkg/schederr"
	"github.com/fleetform/fleetsched/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketInstances = []byte("instances")
	bucketReleases  = []byte("releases")
	bucketLocks     = []byte("locks")
)

// lockRecord is the persisted shape of a leader-lock slot: the current
// holder and the absolute instant its lease expires.
type lockRecord struct {
	Holder   string    `json:"holder"`
	Deadline time.Time `json:"deadline"`
}

// Bolt is the bbolt-backed Store (spec §9's "single authoritative
// coordination store"), modeled on the teacher's pkg/storage/boltdb.go:
// one bucket per entity kind, JSON-encoded values, a single db.Update
// transaction per write (bbolt transactions are already atomic, so unlike
// the teacher's higher-level transaction wrapper no separate rollback path
// is needed).
type Bolt struct {
	db    *bolt.DB
	clock clock.Clock
}

// NewBolt opens (creating if absent) a bbolt database under dataDir and
// ensures its buckets exist. clk supplies "now" for lease-deadline
// comparisons, so lock tests can drive time deterministically.
func NewBolt(dataDir string, clk clock.Clock) (*Bolt, error) {
	dbPath := filepath.Join(dataDir, "fleetsched.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open coordination store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketInstances, bucketReleases, bucketLocks} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Bolt{db: db, clock: clk}, nil
}

func (s *Bolt) Close() error { return s.db.Close() }

// Ping is a no-op read transaction, used by pkg/ophealth's /ready endpoint
// to detect that the coordination store is reachable.
func (s *Bolt) Ping() error {
	return s.db.View(func(tx *bolt.Tx) error { return nil })
}

func instanceKey(formation, name string) []byte {
	return []byte(formation + "/" + name)
}

func (s *Bolt) PutInstance(inst *types.Instance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return &schederr.StoreError{Op: "PutInstance", Err: err}
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInstances).Put(instanceKey(inst.Formation, inst.Name), data)
	})
	if err != nil {
		return &schederr.StoreError{Op: "PutInstance", Err: err}
	}
	return nil
}

func (s *Bolt) GetInstance(formation, name string) (*types.Instance, error) {
	var inst *types.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketInstances).Get(instanceKey(formation, name))
		if data == nil {
			return nil
		}
		var i types.Instance
		if err := json.Unmarshal(data, &i); err != nil {
			return err
		}
		inst = &i
		return nil
	})
	if err != nil {
		return nil, &schederr.StoreError{Op: "GetInstance", Err: err}
	}
	return inst, nil
}

func (s *Bolt) DeleteInstance(formation, name string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInstances).Delete(instanceKey(formation, name))
	})
	if err != nil {
		return &schederr.StoreError{Op: "DeleteInstance", Err: err}
	}
	return nil
}

func (s *Bolt) Index(formation string) ([]*types.Instance, error) {
	return s.filterInstances(formation, func(*types.Instance) bool { return true })
}

// Unassigned returns every instance whose state still requires placement
// (PENDING or MIGRATING), regardless of whether assigned_to is already
// set: an instance can carry a stale assignment from a placement that
// crashed partway through, and the scheduler re-dispatches those to the
// same executor rather than losing track of them (spec §4.5).
func (s *Bolt) Unassigned(formation string) ([]*types.Instance, error) {
	return s.filterInstances(formation, func(i *types.Instance) bool {
		return i.State == types.StatePending || i.State == types.StateMigrating
	})
}

func (s *Bolt) ShuttingDown(formation string) ([]*types.Instance, error) {
	return s.filterInstances(formation, func(i *types.Instance) bool {
		return i.State == types.StateShuttingDown
	})
}

func (s *Bolt) filterInstances(formation string, keep func(*types.Instance) bool) ([]*types.Instance, error) {
	prefix := []byte(formation + "/")
	var out []*types.Instance
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketInstances).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var i types.Instance
			if err := json.Unmarshal(v, &i); err != nil {
				return err
			}
			if keep(&i) {
				out = append(out, &i)
			}
		}
		return nil
	})
	if err != nil {
		return nil, &schederr.StoreError{Op: "filterInstances", Err: err}
	}
	types.SortInstancesByName(out)
	return out, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func releaseKey(formation, name string) []byte {
	return []byte(formation + "/" + name)
}

func (s *Bolt) PutRelease(formation string, rel *types.Release) error {
	data, err := json.Marshal(rel)
	if err != nil {
		return &schederr.StoreError{Op: "PutRelease", Err: err}
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReleases).Put(releaseKey(formation, rel.Name), data)
	})
	if err != nil {
		return &schederr.StoreError{Op: "PutRelease", Err: err}
	}
	return nil
}

func (s *Bolt) GetRelease(formation, name string) (*types.Release, error) {
	var rel *types.Release
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketReleases).Get(releaseKey(formation, name))
		if data == nil {
			return nil
		}
		var r types.Release
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		rel = &r
		return nil
	})
	if err != nil {
		return nil, &schederr.StoreError{Op: "GetRelease", Err: err}
	}
	return rel, nil
}

// TryAcquireLock is the store's half of the leader-lock contract (spec
// §4.3): a single write transaction reads the current slot, and succeeds
// only if it is absent or its lease has already expired, so two processes
// racing to acquire cannot both win.
func (s *Bolt) TryAcquireLock(name, holder string, lease time.Duration) (bool, error) {
	now := s.clock.Now()
	var acquired bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLocks)
		data := b.Get([]byte(name))
		if data != nil {
			var rec lockRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				return err
			}
			if rec.Holder != "" && now.Before(rec.Deadline) {
				return nil // held and live; acquired stays false
			}
		}
		rec := lockRecord{Holder: holder, Deadline: now.Add(lease)}
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(name), out); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, &schederr.StoreError{Op: "TryAcquireLock", Err: err}
	}
	return acquired, nil
}

// RenewLock extends holder's lease, provided holder is still the current
// occupant; it reports false without error if holder has already lost the
// lock to someone else (spec §4.3's LockLost condition).
func (s *Bolt) RenewLock(name, holder string, lease time.Duration) (bool, error) {
	now := s.clock.Now()
	var renewed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLocks)
		data := b.Get([]byte(name))
		if data == nil {
			return nil
		}
		var rec lockRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if rec.Holder != holder || !now.Before(rec.Deadline) {
			return nil
		}
		rec.Deadline = now.Add(lease)
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(name), out); err != nil {
			return err
		}
		renewed = true
		return nil
	})
	if err != nil {
		return false, &schederr.StoreError{Op: "RenewLock", Err: err}
	}
	return renewed, nil
}

func (s *Bolt) ReleaseLock(name, holder string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLocks)
		data := b.Get([]byte(name))
		if data == nil {
			return nil
		}
		var rec lockRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if rec.Holder != holder {
			return nil
		}
		return b.Delete([]byte(name))
	})
	if err != nil {
		return &schederr.StoreError{Op: "ReleaseLock", Err: err}
	}
	return nil
}

func (s *Bolt) GetLockHolder(name string) (string, bool, error) {
	var holder string
	var live bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLocks).Get([]byte(name))
		if data == nil {
			return nil
		}
		var rec lockRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		holder = rec.Holder
		live = s.clock.Now().Before(rec.Deadline)
		return nil
	})
	if err != nil {
		return "", false, &schederr.StoreError{Op: "GetLockHolder", Err: err}
	}
	if !live {
		return "", false, nil
	}
	return holder, true, nil
}

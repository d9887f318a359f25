package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ncruces/go-sqlite3-uringvfs/vfs"
)

// slotState is the lock state recorded for one occupied slot.
type slotState struct {
	lock    *FileLock
	current vfs.LockLevel
}

// RangeLock provides N independent advisory locks over a single logical
// file — the WAL-index byte-range lock bank of spec.md §4.3 — backed by
// one lock file per slot plus a mutex file that serializes any
// multi-slot transition.
type RangeLock struct {
	ino     uint64
	dir     string
	slots   map[int]*slotState
}

// NewRangeLock creates a RangeLock keyed by the database file's inode.
// lockDir overrides the directory the slot/mutex files live in (empty =
// system temp dir).
func NewRangeLock(ino uint64, lockDir string) *RangeLock {
	if lockDir == "" {
		lockDir = os.TempDir()
	}
	return &RangeLock{ino: ino, dir: lockDir, slots: map[int]*slotState{}}
}

func (r *RangeLock) mutexPath() string {
	return filepath.Join(r.dir, fmt.Sprintf("%d_m.lck", r.ino))
}

func (r *RangeLock) slotPath(i int) string {
	return filepath.Join(r.dir, fmt.Sprintf("%d_%d.lck", r.ino, i))
}

func (r *RangeLock) openSlot(i int) (*slotState, error) {
	if s, ok := r.slots[i]; ok {
		return s, nil
	}
	f, err := os.OpenFile(r.slotPath(i), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	s := &slotState{lock: NewFileLock(f), current: vfs.LOCK_NONE}
	r.slots[i] = s
	return s, nil
}

func transition(s *slotState, to vfs.LockLevel) bool {
	switch to {
	case vfs.LOCK_NONE:
		s.lock.Unlock()
		return true
	case vfs.LOCK_SHARED:
		return s.lock.TryShared()
	case vfs.LOCK_EXCLUSIVE:
		return s.lock.TryExclusive()
	default:
		panic(fmt.Sprintf("rangelock: invalid target lock level %v", to))
	}
}

// Lock attempts to move every slot in [lo, hi) to the given LockLevel
// (only LOCK_NONE/LOCK_SHARED/LOCK_EXCLUSIVE are legal). The whole range
// transitions atomically: on the first failed slot, every slot touched
// by this call is restored to its pre-call state and Lock returns false
// (spec.md §4.3, §8 L7).
func (r *RangeLock) Lock(lo, hi int, to vfs.LockLevel) (bool, error) {
	if to != vfs.LOCK_NONE && to != vfs.LOCK_SHARED && to != vfs.LOCK_EXCLUSIVE {
		panic(fmt.Sprintf("rangelock: invalid target lock level %v", to))
	}

	mutex, err := os.OpenFile(r.mutexPath(), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return false, err
	}
	mutexLock := NewFileLock(mutex)
	mutexLock.WaitExclusive()
	defer mutexLock.Close()

	failedAt := -1
	for i := lo; i < hi; i++ {
		s, err := r.openSlot(i)
		if err != nil {
			failedAt = i
			break
		}
		if s.current == to {
			continue
		}
		if !transition(s, to) {
			failedAt = i
			break
		}
	}

	if failedAt >= 0 {
		// Revert every slot this call touched, including the slot that
		// failed: a flock(2) conversion that fails under LOCK_NB may
		// already have dropped that slot's previous lock.
		for i := lo; i <= failedAt; i++ {
			if s, ok := r.slots[i]; ok {
				transition(s, s.current)
			}
		}
		return false, nil
	}

	if to == vfs.LOCK_NONE {
		for i := lo; i < hi; i++ {
			if s, ok := r.slots[i]; ok {
				s.lock.Close()
				delete(r.slots, i)
			}
		}
	} else {
		for i := lo; i < hi; i++ {
			r.slots[i].current = to
		}
	}
	return true, nil
}

// Close unlocks and closes every still-held slot.
func (r *RangeLock) Close() error {
	var first error
	for i, s := range r.slots {
		if err := s.lock.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.slots, i)
	}
	return first
}

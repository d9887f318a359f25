package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ncruces/go-sqlite3-uringvfs/vfs"
)

// DBLock emulates SQLite's five-level database lock protocol (spec.md
// §3 "DbLock", §4.2) atop two whole-file advisory FileLocks: primary on
// the database file itself, and sidecar on a file in the system temp
// directory keyed by the database file's inode, so every process that
// opens the same physical file shares one sidecar lock namespace.
//
// State encoding (primary, sidecar):
//
//	None      unlocked           unlocked
//	Shared    shared             shared, then released
//	Reserved  shared             exclusive, downgraded to shared
//	Pending   shared             exclusive
//	Exclusive exclusive          exclusive
type DBLock struct {
	primary       *FileLock
	primaryOwned  bool
	sidecar       *FileLock
	current       vfs.LockLevel
}

// SidecarPath returns the inode-keyed sidecar lock path for a database
// file, in dir (the system temp directory if dir is empty).
func SidecarPath(dir string, ino uint64) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("%d.lck", ino))
}

// NewDBLock constructs a DBLock around primary. primaryOwned controls
// whether Close closes the primary fd (false when primary is merely
// borrowed from a DbHandle that owns the database file itself).
// lockDir overrides the sidecar's directory (empty = system temp dir).
func NewDBLock(primary *os.File, primaryOwned bool, ino uint64, lockDir string) (*DBLock, error) {
	sc, err := os.OpenFile(SidecarPath(lockDir, ino), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	return &DBLock{
		primary:      NewFileLock(primary),
		primaryOwned: primaryOwned,
		sidecar:      NewFileLock(sc),
		current:      vfs.LOCK_NONE,
	}, nil
}

// Current returns the lock level currently held.
func (d *DBLock) Current() vfs.LockLevel { return d.current }

// Lock attempts to transition from Current() to to, per spec.md §4.2.
// It returns true iff to is achieved, false iff a would-block conflict
// prevented the transition; forbidden transitions panic (spec.md §8 L6).
func (d *DBLock) Lock(to vfs.LockLevel) bool {
	if d.current == to {
		return true
	}
	if d.current == vfs.LOCK_NONE && to != vfs.LOCK_SHARED {
		panic(fmt.Sprintf("lock: cannot transition from unlocked to %v (only Shared is reachable from None)", to))
	}

	switch to {
	case vfs.LOCK_NONE:
		d.primary.Unlock()
		if d.current == vfs.LOCK_PENDING || d.current == vfs.LOCK_EXCLUSIVE {
			d.sidecar.Unlock()
		}
		d.current = vfs.LOCK_NONE
		return true

	case vfs.LOCK_SHARED:
		if d.current != vfs.LOCK_RESERVED {
			if !d.primary.TryShared() {
				return false
			}
		}
		if d.sidecar.TryShared() {
			d.sidecar.Unlock()
			d.current = vfs.LOCK_SHARED
			return true
		}
		switch d.current {
		case vfs.LOCK_PENDING, vfs.LOCK_EXCLUSIVE:
			panic("lock: unexpected failure transitioning to Shared from " + d.current.String())
		case vfs.LOCK_NONE:
			d.primary.Unlock()
			return false
		default:
			return false
		}

	case vfs.LOCK_RESERVED:
		if d.current != vfs.LOCK_SHARED {
			panic("lock: Reserved requires holding Shared, current=" + d.current.String())
		}
		if !d.sidecar.TryExclusive() {
			return false
		}
		if !d.sidecar.TryShared() {
			panic("lock: downgrade of sidecar exclusive->shared failed unexpectedly")
		}
		d.current = vfs.LOCK_RESERVED
		return true

	case vfs.LOCK_PENDING:
		panic("lock: cannot explicitly request Pending (request Exclusive instead)")

	case vfs.LOCK_EXCLUSIVE:
		if d.current != vfs.LOCK_PENDING {
			if !d.sidecar.TryExclusive() {
				return false
			}
		}
		if !d.primary.TryExclusive() {
			d.current = vfs.LOCK_PENDING
			return true
		}
		d.current = vfs.LOCK_EXCLUSIVE
		return true

	default:
		panic(fmt.Sprintf("lock: invalid target lock level %v", to))
	}
}

// Reserved reports whether some other process holds Reserved or higher.
func (d *DBLock) Reserved() bool {
	if d.current > vfs.LOCK_SHARED {
		return true
	}
	if d.sidecar.TryExclusive() {
		d.sidecar.Unlock()
		return false
	}
	return true
}

// Close steps the lock to None, then closes the sidecar fd, and the
// primary fd only if this DBLock opened it.
func (d *DBLock) Close() error {
	d.Lock(vfs.LOCK_NONE)
	err := d.sidecar.Close()
	if d.primaryOwned {
		if cerr := d.primary.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

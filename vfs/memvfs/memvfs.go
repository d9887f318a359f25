// Package memvfs implements the in-memory VFS backend. Its data store is
// deliberately trivial (spec.md §1, "Explicitly out of scope... a trivial
// growable byte buffer") — a single mutex-guarded []byte per database,
// shared between connections that open the same name. Because every
// connection lives in the same process and address space, locking is a
// plain in-process state machine; there is no need for the two-FD
// advisory scheme vfs/lock implements for real files.
package memvfs

import (
	"io"
	"sync"

	"github.com/ncruces/go-sqlite3-uringvfs/sqlite3"
	"github.com/ncruces/go-sqlite3-uringvfs/vfs"
)

// VFS is a registrable in-memory vfs.VFS. Every database opened through
// it is named and kept alive by reference count until every connection
// to it closes.
type VFS struct {
	mu  sync.Mutex
	dbs map[string]*database
}

// New constructs an empty in-memory VFS.
func New() *VFS {
	return &VFS{dbs: map[string]*database{}}
}

type database struct {
	name string
	mu   sync.RWMutex
	buf  []byte
	refs int

	lockMu    sync.Mutex
	shared    int  // connections currently holding >= LOCK_SHARED
	reserved  bool // some connection holds LOCK_RESERVED
	pending   bool // some connection is waiting to upgrade to LOCK_EXCLUSIVE
	exclusive bool // some connection holds LOCK_EXCLUSIVE
}

func (v *VFS) Open(name string, flags vfs.OpenFlag) (vfs.File, vfs.OpenFlag, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	db := v.dbs[name]
	if db == nil {
		if flags&vfs.OPEN_CREATE == 0 {
			return nil, flags, &sqlite3.Error{Code: sqlite3.CANTOPEN}
		}
		db = &database{name: name}
		v.dbs[name] = db
	}
	db.refs++

	return &file{vfs: v, database: db, readonly: flags&vfs.OPEN_READONLY != 0}, flags | vfs.OPEN_MEMORY, nil
}

func (v *VFS) Delete(name string, dirSync bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.dbs[name]; !ok {
		return &sqlite3.Error{Code: sqlite3.IOERR_DELETE_NOENT}
	}
	delete(v.dbs, name)
	return nil
}

func (v *VFS) Access(name string, flag vfs.AccessFlag) (bool, error) {
	return false, nil
}

func (v *VFS) FullPathname(name string) (string, error) {
	return name, nil
}

func (v *VFS) release(db *database) {
	v.mu.Lock()
	defer v.mu.Unlock()
	db.refs--
	if db.refs == 0 && v.dbs[db.name] == db {
		delete(v.dbs, db.name)
	}
}

var _ vfs.VFS = (*VFS)(nil)

type file struct {
	vfs *VFS
	*database
	lock     vfs.LockLevel
	readonly bool
}

func (f *file) Close() error {
	f.Unlock(vfs.LOCK_NONE)
	f.vfs.release(f.database)
	return nil
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if off >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[off:])
	if n < len(p) {
		clear(p[n:])
		return n, io.EOF
	}
	return n, nil
}

func (f *file) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	end := off + int64(len(p))
	if end > int64(len(f.buf)) {
		grown := make([]byte, end)
		copy(grown, f.buf)
		f.buf = grown
	}
	return copy(f.buf[off:end], p), nil
}

func (f *file) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.truncateLocked(size)
}

// truncateLocked grows with zero-fill, or shrinks by discarding the
// dropped tail outright: this VFS tracks only a single logical buffer,
// so "stored size" and "truncated size" coincide by construction (see
// DESIGN.md for the upstream ambiguity this resolves).
func (f *file) truncateLocked(size int64) error {
	if size < 0 {
		size = 0
	}
	switch {
	case size == int64(len(f.buf)):
	case size < int64(len(f.buf)):
		f.buf = f.buf[:size]
	default:
		grown := make([]byte, size)
		copy(grown, f.buf)
		f.buf = grown
	}
	return nil
}

func (f *file) Sync(flag vfs.SyncFlag) error { return nil }

func (f *file) Size() (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int64(len(f.buf)), nil
}

func (f *file) SizeHint(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size > int64(len(f.buf)) {
		return f.truncateLocked(size)
	}
	return nil
}

// Lock and Unlock implement the five-state lock protocol (spec.md §4.2)
// over the database's shared counters instead of real file descriptors:
// every open *file sharing a *database contributes to the same
// shared/reserved/pending/exclusive state, exactly as two fds on the
// same inode would.
func (f *file) Lock(lock vfs.LockLevel) error {
	if f.lock >= lock {
		return nil
	}
	if f.readonly && lock >= vfs.LOCK_RESERVED {
		return &sqlite3.Error{Code: sqlite3.IOERR_LOCK}
	}

	f.lockMu.Lock()
	defer f.lockMu.Unlock()

	switch lock {
	case vfs.LOCK_SHARED:
		if f.pending || f.exclusive {
			return &sqlite3.Error{Code: sqlite3.BUSY}
		}
		f.shared++
	case vfs.LOCK_RESERVED:
		if f.reserved {
			return &sqlite3.Error{Code: sqlite3.BUSY}
		}
		f.reserved = true
	case vfs.LOCK_PENDING:
		panic("memvfs: cannot explicitly request Pending")
	case vfs.LOCK_EXCLUSIVE:
		f.pending = true
		if f.shared > 1 {
			// Other connections still hold Shared: park at Pending and
			// let a later Lock(Exclusive) call retry.
			f.lock = vfs.LOCK_PENDING
			return &sqlite3.Error{Code: sqlite3.BUSY}
		}
		f.pending = false
		f.shared = 0
		f.exclusive = true
	}

	f.lock = lock
	return nil
}

func (f *file) Unlock(lock vfs.LockLevel) error {
	if f.lock <= lock {
		return nil
	}

	f.lockMu.Lock()
	defer f.lockMu.Unlock()

	if f.lock >= vfs.LOCK_EXCLUSIVE && lock < vfs.LOCK_EXCLUSIVE {
		f.exclusive = false
		if lock >= vfs.LOCK_SHARED {
			f.shared++
		}
	}
	if f.lock >= vfs.LOCK_PENDING && lock < vfs.LOCK_PENDING {
		f.pending = false
	}
	if f.lock >= vfs.LOCK_RESERVED && lock < vfs.LOCK_RESERVED {
		f.reserved = false
	}
	if f.lock >= vfs.LOCK_SHARED && lock < vfs.LOCK_SHARED && f.lock < vfs.LOCK_EXCLUSIVE && f.shared > 0 {
		f.shared--
	}

	f.lock = lock
	return nil
}

func (f *file) CheckReservedLock() (bool, error) {
	f.lockMu.Lock()
	defer f.lockMu.Unlock()
	return f.reserved || f.exclusive, nil
}

func (f *file) LockState() vfs.LockLevel { return f.lock }

func (f *file) SectorSize() int { return 4096 }

func (f *file) DeviceCharacteristics() vfs.DeviceCharacteristic {
	return vfs.IOCAP_ATOMIC | vfs.IOCAP_SEQUENTIAL | vfs.IOCAP_SAFE_APPEND | vfs.IOCAP_POWERSAFE_OVERWRITE
}

var (
	_ vfs.File          = (*file)(nil)
	_ vfs.FileLockState = (*file)(nil)
	_ vfs.FileSizeHint  = (*file)(nil)
)

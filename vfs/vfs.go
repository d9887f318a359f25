// Package vfs defines the virtual file system contract that SQLite's
// os_unix.c/os_win.c vtable exposes natively, at the abstraction level of
// Go interfaces rather than a C function-pointer struct. A VFS is
// registered once under a name (see Register) and selected per connection
// through a "file:<path>?vfs=<name>" URI.
package vfs

import (
	"fmt"
	"sync"
)

// OpenFlag mirrors the SQLITE_OPEN_* flag bits passed to Open.
type OpenFlag uint32

const (
	OPEN_READONLY OpenFlag = 0x00000001
	OPEN_READWRITE OpenFlag = 0x00000002
	OPEN_CREATE    OpenFlag = 0x00000004
	OPEN_EXCLUSIVE OpenFlag = 0x00000010

	OPEN_MAIN_DB      OpenFlag = 0x00000100
	OPEN_MAIN_JOURNAL OpenFlag = 0x00000800
	OPEN_TEMP_DB      OpenFlag = 0x00000200
	OPEN_TEMP_JOURNAL OpenFlag = 0x00001000
	OPEN_TRANSIENT_DB OpenFlag = 0x00000400
	OPEN_SUBJOURNAL   OpenFlag = 0x00002000
	OPEN_SUPER_JOURNAL OpenFlag = 0x00004000
	OPEN_WAL          OpenFlag = 0x00080000

	OPEN_NOMUTEX     OpenFlag = 0x00008000
	OPEN_FULLMUTEX   OpenFlag = 0x00010000
	OPEN_MEMORY      OpenFlag = 0x00000080
	OPEN_DELETEONCLOSE OpenFlag = 0x00000008
)

// Kind extracts the OPEN_{MAIN,TEMP,TRANSIENT}_{DB,JOURNAL}/WAL component
// of flags, matching OpenOptions.kind from spec.md §4.5.
func (f OpenFlag) Kind() OpenFlag {
	return f & (OPEN_MAIN_DB | OPEN_MAIN_JOURNAL | OPEN_TEMP_DB | OPEN_TEMP_JOURNAL |
		OPEN_TRANSIENT_DB | OPEN_SUBJOURNAL | OPEN_SUPER_JOURNAL | OPEN_WAL)
}

// AccessFlag mirrors the SQLITE_ACCESS_* constants passed to Access.
type AccessFlag uint32

const (
	ACCESS_EXISTS    AccessFlag = 0
	ACCESS_READWRITE AccessFlag = 1
	ACCESS_READ      AccessFlag = 2
)

// SyncFlag mirrors the SQLITE_SYNC_* flag bits passed to File.Sync.
type SyncFlag uint32

const (
	SYNC_NORMAL   SyncFlag = 0x00002
	SYNC_FULL     SyncFlag = 0x00003
	SYNC_DATAONLY SyncFlag = 0x00010
)

// DeviceCharacteristic mirrors the SQLITE_IOCAP_* bits returned by
// File.DeviceCharacteristics.
type DeviceCharacteristic uint32

const (
	IOCAP_ATOMIC             DeviceCharacteristic = 0x00000001
	IOCAP_SEQUENTIAL         DeviceCharacteristic = 0x00000400
	IOCAP_SAFE_APPEND        DeviceCharacteristic = 0x00000200
	IOCAP_POWERSAFE_OVERWRITE DeviceCharacteristic = 0x00001000
)

// LockLevel is SQLite's five-state per-connection database lock (spec.md
// §3, "LockState"): an ordered enumeration with a total, strict order.
type LockLevel int32

const (
	LOCK_NONE LockLevel = iota
	LOCK_SHARED
	LOCK_RESERVED
	LOCK_PENDING
	LOCK_EXCLUSIVE
)

func (l LockLevel) String() string {
	switch l {
	case LOCK_NONE:
		return "NONE"
	case LOCK_SHARED:
		return "SHARED"
	case LOCK_RESERVED:
		return "RESERVED"
	case LOCK_PENDING:
		return "PENDING"
	case LOCK_EXCLUSIVE:
		return "EXCLUSIVE"
	default:
		return fmt.Sprintf("LockLevel(%d)", int(l))
	}
}

// VFS is the mandatory subset of SQLite's VFS vtable (spec.md §6):
// everything needed to open, delete, probe, and canonicalize a named
// resource. Randomness/sleep/current-time/last-error are not part of
// this interface. Package vfsutil's Bridge does not export randomness,
// sleep or current-time functions either; it offers only the last error
// text recorded by its read/write trampolines (Bridge.LastError).
type VFS interface {
	// Open opens (and, per flags, may create) the named file, returning
	// the concrete File and the flags actually granted (e.g. OPEN_MEMORY
	// may be added; OPEN_READONLY may be forced for a read-only access).
	Open(name string, flags OpenFlag) (File, OpenFlag, error)

	// Delete removes the named file. dirSync requests that the
	// containing directory be synced once the delete completes.
	Delete(name string, dirSync bool) error

	// Access reports whether name can be accessed under flag.
	Access(name string, flag AccessFlag) (bool, error)

	// FullPathname returns the canonical form of name.
	FullPathname(name string) (string, error)
}

// File is the mandatory subset of SQLite's IO-methods vtable (spec.md §6).
type File interface {
	Close() error
	ReadAt(p []byte, off int64) (n int, err error)
	WriteAt(p []byte, off int64) (n int, err error)
	Truncate(size int64) error
	Sync(flag SyncFlag) error
	Size() (int64, error)
	Lock(lock LockLevel) error
	Unlock(lock LockLevel) error
	CheckReservedLock() (bool, error)
	SectorSize() int
	DeviceCharacteristics() DeviceCharacteristic
}

// FileLockState is an optional capability: a File that can report its own
// current lock level without a round trip through the lock primitive.
type FileLockState interface {
	LockState() LockLevel
}

// FileSizeHint is an optional capability: a File that can use a
// size hint to preallocate storage.
type FileSizeHint interface {
	SizeHint(size int64) error
}

// SharedMemory is the WAL-index region store a connection uses once it
// enters WAL mode: map/lock/unmap over fixed-size 32KiB regions (spec.md
// §4.4, "WalIndex").
type SharedMemory interface {
	// Map returns region r, growing (write path) or zero-filling (read
	// path, on short read) as needed.
	Map(r int) ([]byte, error)

	// Lock attempts to transition the [lo,hi) slot range to the given
	// LockLevel (only LOCK_NONE/LOCK_SHARED/LOCK_EXCLUSIVE are legal).
	Lock(lo, hi int, lock LockLevel) (bool, error)

	// Unmap releases the connection's use of the shared index. delete,
	// when true, removes the backing file (only valid for the last
	// connection to leave WAL mode cleanly).
	Unmap(delete bool) error

	Barrier()
}

// FileSharedMemory is an optional capability: a File that backs a WAL
// database and can hand out a SharedMemory for its -shm companion.
type FileSharedMemory interface {
	SharedMemory() (SharedMemory, error)
}

var (
	registryMu sync.Mutex
	registry   = map[string]VFS{}
)

// Register binds name to vfs for the lifetime of the process (spec.md
// §3, "VfsRegistration"). Registering an already-registered name is a
// programmer error and panics, mirroring the extension re-entrancy rule
// of spec.md §6.
func Register(name string, v VFS) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		panic("vfs: " + name + " already registered")
	}
	registry[name] = v
}

// Find returns the VFS registered under name, or nil.
func Find(name string) VFS {
	registryMu.Lock()
	defer registryMu.Unlock()
	return registry[name]
}

package diskvfs

import (
	"os"
	"sync"

	"github.com/ncruces/go-sqlite3-uringvfs/vfs"
	"github.com/ncruces/go-sqlite3-uringvfs/vfs/lock"
	"github.com/ncruces/go-sqlite3-uringvfs/vfs/wal"
)

// Handle owns one open database file: its fd, the inode observed at
// open time, and (once requested) its DBLock — component C5 of
// spec.md §4.5.
type Handle struct {
	vfs      *VFS
	path     string
	file     *os.File
	ino      uint64
	readonly bool

	mu   sync.Mutex
	dlck *lock.DBLock
}

// ensureLock lazily constructs the DBLock, reserving the sidecar fd.
func (h *Handle) ensureLock() (*lock.DBLock, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dlck == nil {
		dl, err := lock.NewDBLock(h.file, false, h.ino, h.vfs.cfg.LockDir)
		if err != nil {
			return nil, err
		}
		h.dlck = dl
	}
	return h.dlck, nil
}

// Lock attempts to transition to the given LockLevel (spec.md §4.5).
func (h *Handle) Lock(to vfs.LockLevel) (bool, error) {
	dl, err := h.ensureLock()
	if err != nil {
		return false, err
	}
	return dl.Lock(to), nil
}

// Reserved reports whether some other process holds Reserved or higher.
func (h *Handle) Reserved() (bool, error) {
	dl, err := h.ensureLock()
	if err != nil {
		return false, err
	}
	return dl.Reserved(), nil
}

// CurrentLock returns the lock level currently held by this handle.
func (h *Handle) CurrentLock() vfs.LockLevel {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dlck == nil {
		return vfs.LOCK_NONE
	}
	return h.dlck.Current()
}

// Fd returns the underlying file descriptor, for callers (vfs/uringvfs)
// that submit their own I/O against it instead of using *os.File.
func (h *Handle) Fd() uintptr { return h.file.Fd() }

// Path returns the normalized path this handle was opened with.
func (h *Handle) Path() string { return h.path }

// Moved reports whether the file at Handle's path no longer refers to
// the inode observed at open time (spec.md §3 "DbHandle", derived
// property "moved()").
func (h *Handle) Moved() (bool, error) {
	ino, err := inodeOfPath(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	return ino != h.ino, nil
}

// WalIndex opens (or creates) the "<db>-shm" companion for this handle,
// returning a SharedMemory connection (spec.md §4.4).
func (h *Handle) WalIndex(readonly bool) (*wal.SharedIndex, error) {
	fi, err := h.file.Stat()
	if err != nil {
		return nil, err
	}
	shmPath := wal.ShmPath(h.path)
	return wal.Open(shmPath, h.ino, readonly, fi.Mode(), h.vfs.cfg.LockDir)
}

// Close tears down the lock (if any) and closes the database fd.
func (h *Handle) Close() error {
	h.mu.Lock()
	dl := h.dlck
	h.dlck = nil
	h.mu.Unlock()

	var err error
	if dl != nil {
		err = dl.Close()
	}
	if cerr := h.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

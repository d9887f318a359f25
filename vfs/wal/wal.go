// Package wal implements the WAL shared-memory index (spec.md §4.4,
// component C4): a "<db>-shm" file logically divided into fixed 32KiB
// regions, with byte-range locking delegated to vfs/lock.RangeLock.
package wal

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ncruces/go-sqlite3-uringvfs/vfs"
	"github.com/ncruces/go-sqlite3-uringvfs/vfs/lock"
)

// RegionSize is the fixed shm region size mandated by spec.md §3/§6.
const RegionSize = 32768

// SharedIndex is a connection's view of a database's WAL shared-memory
// index: a file lock on the whole "<db>-shm" file plus a RangeLock for
// the fine-grained WAL locking slots.
type SharedIndex struct {
	path     string
	fileLock *lock.FileLock
	ranges   *lock.RangeLock
	readonly bool
}

// Open opens (creating if necessary) the shm file at path, backing it
// with a RangeLock keyed by ino. If this call is the first exclusive
// opener (shm file did not yet exist, or every other opener has left),
// the file is truncated — discarding stale content — before any region
// is read, per spec.md §4.4 and §8 L8.
//
// dbPerm is the permission mode of the main database file: when the shm
// file did not exist before this call, its permissions are set to match
// dbPerm, except it is never downgraded to read-only (spec.md §3).
func Open(path string, ino uint64, readonly bool, dbPerm os.FileMode, lockDir string) (*SharedIndex, error) {
	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	flag := os.O_RDONLY
	if !readonly {
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(path, flag, 0o600)
	if err != nil {
		return nil, err
	}
	fl := lock.NewFileLock(f)

	if !readonly && fl.TryExclusive() {
		// First opener: re-open with truncate, downgrade the old fd to
		// shared, take shared on the new fd, and only then close the old
		// fd, so a shared hold exists throughout and no other process can
		// slip an exclusive lock into the gap
		// (spec.md §4.4, §9 "WAL first-opener handshake").
		newFile, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			fl.Close()
			return nil, err
		}
		newLock := lock.NewFileLock(newFile)

		if isNew {
			perm := dbPerm
			if perm&0o200 != 0 || perm&0o020 != 0 || perm&0o002 != 0 {
				os.Chmod(path, perm)
			}
		}

		if !fl.TryShared() || !newLock.TryShared() {
			panic("wal: first-opener handshake could not acquire shared lock")
		}
		fl.Close()
		fl = newLock
	} else {
		fl.WaitShared()
	}

	return &SharedIndex{
		path:     path,
		fileLock: fl,
		ranges:   lock.NewRangeLock(ino, lockDir),
		readonly: readonly,
	}, nil
}

// Map returns a freshly read (or, on growth, zero-filled) region r.
func (s *SharedIndex) Map(r int) ([]byte, error) {
	data := make([]byte, RegionSize)
	if err := s.Pull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Pull refreshes dst (len(dst) must be RegionSize) from region r.
func (s *SharedIndex) Pull(r int, dst []byte) error {
	if len(dst) != RegionSize {
		panic("wal: region buffer must be exactly RegionSize bytes")
	}
	if err := s.growIfNeeded(r); err != nil {
		return err
	}
	n, err := s.fileLock.File().ReadAt(dst, int64(r)*RegionSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			// A short read past the backing file's current extent is
			// normal for a region nobody has written yet: treat it as a
			// zero region rather than an I/O failure, in both readonly
			// and writable connections.
			clear(dst[n:])
			return nil
		}
		return err
	}
	return nil
}

// Push writes src (len(src) must be RegionSize) to region r and fsyncs.
func (s *SharedIndex) Push(r int, src []byte) error {
	if len(src) != RegionSize {
		panic("wal: region buffer must be exactly RegionSize bytes")
	}
	if err := s.growIfNeeded(r); err != nil {
		return err
	}
	if _, err := s.fileLock.File().WriteAt(src, int64(r)*RegionSize); err != nil {
		return err
	}
	return s.fileLock.File().Sync()
}

func (s *SharedIndex) growIfNeeded(r int) error {
	if s.readonly {
		return nil
	}
	want := int64(r+1) * RegionSize
	fi, err := s.fileLock.File().Stat()
	if err != nil {
		return err
	}
	if fi.Size() < want {
		return s.fileLock.File().Truncate(want)
	}
	return nil
}

// Lock delegates to the underlying RangeLock.
func (s *SharedIndex) Lock(lo, hi int, level vfs.LockLevel) (bool, error) {
	return s.ranges.Lock(lo, hi, level)
}

// Barrier is a memory barrier hook; regions are always read fresh from
// the backing file, so there is nothing to flush here.
func (s *SharedIndex) Barrier() {}

// Unmap releases this connection's use of the shared index. When delete
// is true (the last clean WAL user exiting), the backing file is removed.
func (s *SharedIndex) Unmap(delete bool) error {
	err := s.ranges.Close()
	if cerr := s.fileLock.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if delete {
		if rerr := os.Remove(s.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
			err = rerr
		}
	}
	return err
}

var _ vfs.SharedMemory = (*SharedIndex)(nil)

// ShmPath returns the "<db>-shm" companion path for a main database path.
// Callers are expected to pass the main database's path (e.g. the result
// of stripping a "-wal"/"-journal" suffix), not a journal/WAL path.
func ShmPath(dbPath string) string {
	return fmt.Sprintf("%s-shm", dbPath)
}

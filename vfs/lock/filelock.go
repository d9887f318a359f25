// Package lock implements the advisory whole-file lock primitive (C1),
// the two-FD database-lock state machine (C2), and the WAL-index
// byte-range lock bank (C3) described in spec.md §4.1–§4.3.
//
// BSD-style whole-file advisory locks (flock(2)) are used throughout,
// deliberately: the guarantee needed is process-visible exclusion, not
// POSIX fcntl's byte-range precision, and flock locks are released
// exactly once, on close of the fd that took them — no per-process
// "closing any fd drops every lock on the file" surprise to work around.
package lock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// FileLock owns a file descriptor and the advisory-lock state of the
// entire file it refers to (spec.md §4.1).
type FileLock struct {
	f *os.File
}

// NewFileLock takes ownership of f. The returned FileLock closes f (and
// releases any lock still held) when Close is called.
func NewFileLock(f *os.File) *FileLock {
	return &FileLock{f: f}
}

// File returns the underlying file, e.g. for reads/writes alongside locking.
func (l *FileLock) File() *os.File { return l.f }

// Fd returns the raw file descriptor.
func (l *FileLock) Fd() int { return int(l.f.Fd()) }

// TryShared attempts a non-blocking shared lock. false means the lock
// would block (another process holds an exclusive lock); any other
// failure is a programmer/environment error and panics.
func (l *FileLock) TryShared() bool {
	return tryFlock(l.Fd(), unix.LOCK_SH|unix.LOCK_NB)
}

// TryExclusive attempts a non-blocking exclusive lock.
func (l *FileLock) TryExclusive() bool {
	return tryFlock(l.Fd(), unix.LOCK_EX|unix.LOCK_NB)
}

// WaitShared blocks until a shared lock is acquired.
func (l *FileLock) WaitShared() {
	waitFlock(l.Fd(), unix.LOCK_SH)
}

// WaitExclusive blocks until an exclusive lock is acquired.
func (l *FileLock) WaitExclusive() {
	waitFlock(l.Fd(), unix.LOCK_EX)
}

// Unlock releases any lock held on the file.
func (l *FileLock) Unlock() {
	if err := unix.Flock(l.Fd(), unix.LOCK_UN); err != nil {
		panic("lock: unlock failed: " + err.Error())
	}
}

// Close unlocks and closes the underlying file.
func (l *FileLock) Close() error {
	l.Unlock()
	return l.f.Close()
}

func tryFlock(fd, how int) bool {
	err := unix.Flock(fd, how)
	if err == nil {
		return true
	}
	if errors.Is(err, unix.EWOULDBLOCK) {
		return false
	}
	panic("lock: flock failed: " + err.Error())
}

func waitFlock(fd, how int) {
	for {
		err := unix.Flock(fd, how)
		if err == nil {
			return
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		panic("lock: blocking flock failed: " + err.Error())
	}
}

// Package diskvfs implements the portable (non-io_uring) disk-backed VFS:
// the database handle (C5), its open policy (C6), and the full two-FD
// lock / WAL-index machinery from vfs/lock and vfs/wal wired up behind
// the vfs.VFS/vfs.File interfaces. vfs/uringvfs builds on top of this
// package, swapping only the read/write/open/close/sync path for one
// that submits through io_uring.
package diskvfs

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/ncruces/go-sqlite3-uringvfs/sqlite3"
	"github.com/ncruces/go-sqlite3-uringvfs/vfs"
	"github.com/ncruces/go-sqlite3-uringvfs/vfs/wal"
)

// Config holds the functional options a VFS is constructed with.
type Config struct {
	// LockDir overrides the directory sidecar/slot/mutex lock files are
	// created in. Empty means the system temp directory.
	LockDir string
}

// Option configures a VFS at construction time.
type Option func(*Config)

// WithLockDir overrides the sidecar lock directory (default: os.TempDir()).
func WithLockDir(dir string) Option {
	return func(c *Config) { c.LockDir = dir }
}

// VFS is the disk-backed vfs.VFS implementation (component C6: open
// policy). name is recorded at construction; no method reads it.
type VFS struct {
	name        string
	cfg         Config
	tempCounter atomic.Uint64
}

// New constructs a disk-backed VFS. It does not register it; call
// vfs.Register separately (see package extension for the full C9 flow).
func New(name string, opts ...Option) *VFS {
	v := &VFS{name: name}
	for _, o := range opts {
		o(&v.cfg)
	}
	return v
}

// normalizePath collapses "." and ".." components while preserving any
// volume/root prefix (spec.md §4.5 step 1).
func normalizePath(p string) string {
	return filepath.Clean(p)
}

// mainDBPath recovers the main database path from a WAL/journal path by
// trimming only the trailing "-wal"/"-journal" suffix from the file's
// extension, leaving any hyphens in the stem untouched (spec.md §4.5,
// "foo.db-wal -> foo.db"; connection.rs's wal_index/permissions split
// the extension at its first '-', not the whole basename).
func mainDBPath(p string) string {
	dir, file := filepath.Split(p)
	ext := filepath.Ext(file)
	if ext == "" {
		return p
	}
	stem := file[:len(file)-len(ext)]
	suffix := ext[1:]
	if i := strings.IndexByte(suffix, '-'); i >= 0 {
		suffix = suffix[:i]
	}
	return filepath.Join(dir, stem+"."+suffix)
}

// Open implements vfs.VFS.Open: normalizes the path, applies the
// create/read/write/create-new access semantics, eagerly reserves a
// DBLock for OPEN_MAIN_DB (so FD exhaustion later cannot wedge the lock
// machine, spec.md §4.5 step 4 / §5 "Resource discipline"), and verifies
// the "-shm" companion is readable for OPEN_WAL (step 5).
func (v *VFS) Open(name string, flags vfs.OpenFlag) (vfs.File, vfs.OpenFlag, error) {
	path := normalizePath(name)

	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return nil, flags, sqlite3.As(sqlite3.CANTOPEN, os.ErrInvalid)
	}

	osFlag := os.O_RDONLY
	if flags&vfs.OPEN_READONLY == 0 {
		osFlag = os.O_RDWR
	}
	switch {
	case flags&vfs.OPEN_EXCLUSIVE != 0 && flags&vfs.OPEN_CREATE != 0:
		osFlag |= os.O_CREATE | os.O_EXCL
	case flags&vfs.OPEN_CREATE != 0:
		osFlag |= os.O_CREATE
	}

	f, err := os.OpenFile(path, osFlag, 0o600)
	if err != nil {
		return nil, flags, sqlite3.As(sqlite3.CANTOPEN, err)
	}

	ino, err := inodeOf(f)
	if err != nil {
		f.Close()
		return nil, flags, sqlite3.As(sqlite3.IOERR_FSTAT, err)
	}

	h := &Handle{
		vfs:     v,
		path:    path,
		file:    f,
		ino:     ino,
		readonly: flags&vfs.OPEN_READONLY != 0,
	}

	kind := flags.Kind()
	if kind == vfs.OPEN_MAIN_DB {
		if _, err := h.ensureLock(); err != nil {
			f.Close()
			return nil, flags, sqlite3.As(sqlite3.CANTOPEN, err)
		}
	}
	if kind == vfs.OPEN_WAL {
		shmPath := wal.ShmPath(mainDBPath(path))
		if fi, err := os.Stat(shmPath); err == nil {
			if fi.Mode().Perm()&0o444 == 0 {
				f.Close()
				return nil, flags, sqlite3.As(sqlite3.CANTOPEN, os.ErrPermission)
			}
		}
	}

	return &File{Handle: h}, flags, nil
}

// Delete removes the named file.
func (v *VFS) Delete(name string, dirSync bool) error {
	path := normalizePath(name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return sqlite3.As(sqlite3.IOERR_DELETE_NOENT, err)
		}
		return sqlite3.As(sqlite3.IOERR_DELETE, err)
	}
	if dirSync {
		if dir, err := os.Open(filepath.Dir(path)); err == nil {
			dir.Sync()
			dir.Close()
		}
	}
	return nil
}

// Access reports whether name can be accessed under flag.
func (v *VFS) Access(name string, flag vfs.AccessFlag) (bool, error) {
	path := normalizePath(name)
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, sqlite3.As(sqlite3.IOERR_ACCESS, err)
	}
	if flag == vfs.ACCESS_READWRITE {
		return fi.Mode().Perm()&0o222 != 0, nil
	}
	return true, nil
}

// FullPathname returns the canonical absolute path for name.
func (v *VFS) FullPathname(name string) (string, error) {
	if filepath.IsAbs(name) {
		return normalizePath(name), nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", sqlite3.As(sqlite3.CANTOPEN, err)
	}
	return normalizePath(filepath.Join(wd, name)), nil
}

// TemporaryName returns a process+counter unique temp-database path of
// the form "etilqs_<hex-pid>_<hex-counter>.db" (spec.md §4.5).
func (v *VFS) TemporaryName() string {
	n := v.tempCounter.Add(1) - 1
	return filepath.Join(os.TempDir(), hexName(os.Getpid(), n))
}

func hexName(pid int, counter uint64) string {
	return "etilqs_" + toHex(uint64(pid)) + "_" + toHex(counter) + ".db"
}

func toHex(n uint64) string {
	const digits = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n&0xf]
		n >>= 4
	}
	return string(buf[i:])
}

var _ vfs.VFS = (*VFS)(nil)

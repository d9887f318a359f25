package diskvfs

import (
	"errors"
	"io"

	"github.com/ncruces/go-sqlite3-uringvfs/sqlite3"
	"github.com/ncruces/go-sqlite3-uringvfs/vfs"
	"github.com/ncruces/go-sqlite3-uringvfs/vfs/wal"
)

// File is the vfs.File backed by a Handle, using plain os.File I/O.
// vfs/uringvfs.File embeds a *File and submits reads, writes, sync, and
// size queries through io_uring instead; its truncate and close stay
// synchronous.
type File struct {
	*Handle
	shm *wal.SharedIndex
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.file.ReadAt(p, off)
	if errors.Is(err, io.EOF) {
		clear(p[n:])
		return n, sqlite3.As(sqlite3.IOERR_SHORT_READ, err)
	}
	if err != nil {
		return n, sqlite3.As(sqlite3.IOERR_READ, err)
	}
	return n, nil
}

func (f *File) WriteAt(p []byte, off int64) (int, error) {
	n, err := f.file.WriteAt(p, off)
	if err != nil {
		return n, sqlite3.As(sqlite3.IOERR_WRITE, err)
	}
	return n, nil
}

func (f *File) Truncate(size int64) error {
	if err := f.file.Truncate(size); err != nil {
		return sqlite3.As(sqlite3.IOERR_TRUNCATE, err)
	}
	return nil
}

func (f *File) Sync(flag vfs.SyncFlag) error {
	if flag&vfs.SYNC_DATAONLY != 0 {
		if err := syncData(f.file); err != nil {
			return sqlite3.As(sqlite3.IOERR_FSYNC, err)
		}
		return nil
	}
	if err := f.file.Sync(); err != nil {
		return sqlite3.As(sqlite3.IOERR_FSYNC, err)
	}
	return nil
}

func (f *File) Size() (int64, error) {
	fi, err := f.file.Stat()
	if err != nil {
		return 0, sqlite3.As(sqlite3.IOERR_FSTAT, err)
	}
	return fi.Size(), nil
}

func (f *File) Lock(l vfs.LockLevel) error {
	ok, err := f.Handle.Lock(l)
	if err != nil {
		return sqlite3.As(sqlite3.IOERR_LOCK, err)
	}
	if !ok {
		return &sqlite3.Error{Code: sqlite3.BUSY}
	}
	return nil
}

func (f *File) Unlock(l vfs.LockLevel) error {
	ok, err := f.Handle.Lock(l)
	if err != nil {
		return sqlite3.As(sqlite3.IOERR_UNLOCK, err)
	}
	if !ok {
		return &sqlite3.Error{Code: sqlite3.BUSY}
	}
	return nil
}

func (f *File) CheckReservedLock() (bool, error) {
	ok, err := f.Handle.Reserved()
	if err != nil {
		return false, sqlite3.As(sqlite3.IOERR_CHECKRESERVEDLOCK, err)
	}
	return ok, nil
}

func (f *File) LockState() vfs.LockLevel { return f.Handle.CurrentLock() }

func (f *File) SectorSize() int { return 1024 }

func (f *File) DeviceCharacteristics() vfs.DeviceCharacteristic {
	return vfs.IOCAP_ATOMIC | vfs.IOCAP_POWERSAFE_OVERWRITE | vfs.IOCAP_SAFE_APPEND | vfs.IOCAP_SEQUENTIAL
}

// SharedMemory opens (memoizing) the WAL shared index for this file.
func (f *File) SharedMemory() (vfs.SharedMemory, error) {
	if f.shm == nil {
		shm, err := f.Handle.WalIndex(f.readonly)
		if err != nil {
			return nil, sqlite3.As(sqlite3.IOERR_SHMMAP, err)
		}
		f.shm = shm
	}
	return f.shm, nil
}

func (f *File) Close() error {
	if f.shm != nil {
		f.shm.Unmap(false)
		f.shm = nil
	}
	if err := f.Handle.Close(); err != nil {
		return sqlite3.As(sqlite3.IOERR_CLOSE, err)
	}
	return nil
}

var (
	_ vfs.File             = (*File)(nil)
	_ vfs.FileLockState    = (*File)(nil)
	_ vfs.FileSharedMemory = (*File)(nil)
)

package vfsutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncruces/go-sqlite3-uringvfs/sqlite3"
	"github.com/ncruces/go-sqlite3-uringvfs/vfs"
)

func TestResultCodeMapsNilToOK(t *testing.T) {
	require.Equal(t, sqlite3.OK, resultCode(nil))
}

func TestResultCodePreservesSqliteError(t *testing.T) {
	err := &sqlite3.Error{Code: sqlite3.IOERR_READ}
	require.Equal(t, sqlite3.IOERR_READ, resultCode(err))
}

func TestResultCodeWrappedSqliteErrorUnwraps(t *testing.T) {
	wrapped := &sqlite3.Error{Code: sqlite3.BUSY}
	err := errors.Join(errors.New("context"), wrapped)
	require.Equal(t, sqlite3.BUSY, resultCode(err))
}

func TestResultCodeFallsBackToGenericIOErr(t *testing.T) {
	require.Equal(t, sqlite3.IOERR, resultCode(errors.New("boom")))
}

func TestHandleTablePutGetDrop(t *testing.T) {
	ht := newHandleTable()
	var f fakeFile
	id := ht.put(&f)
	require.NotZero(t, id)
	require.Same(t, &f, ht.get(id).(*fakeFile))

	ht.drop(id)
	require.Nil(t, ht.get(id))
}

func TestHandleTableLastError(t *testing.T) {
	ht := newHandleTable()
	var f fakeFile
	id := ht.put(&f)

	require.NoError(t, ht.lastError(id))
	ht.setLastErr(id, errors.New("read failed"))
	require.Error(t, ht.lastError(id))
	ht.setLastErr(id, nil)
	require.NoError(t, ht.lastError(id))
}

type fakeFile struct{}

func (*fakeFile) Close() error                           { return nil }
func (*fakeFile) ReadAt(p []byte, off int64) (int, error)  { return 0, nil }
func (*fakeFile) WriteAt(p []byte, off int64) (int, error) { return 0, nil }
func (*fakeFile) Truncate(size int64) error              { return nil }
func (*fakeFile) Sync(flag vfs.SyncFlag) error           { return nil }
func (*fakeFile) Size() (int64, error)                   { return 0, nil }
func (*fakeFile) Lock(lock vfs.LockLevel) error          { return nil }
func (*fakeFile) Unlock(lock vfs.LockLevel) error        { return nil }
func (*fakeFile) CheckReservedLock() (bool, error)       { return false, nil }
func (*fakeFile) SectorSize() int                        { return 4096 }
func (*fakeFile) DeviceCharacteristics() vfs.DeviceCharacteristic { return 0 }

var _ vfs.File = (*fakeFile)(nil)

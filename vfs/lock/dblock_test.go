package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncruces/go-sqlite3-uringvfs/vfs"
)

// newDBLockPair opens two independent file descriptors on the same
// database file and wraps each in its own DBLock sharing one sidecar
// lock namespace, simulating two connections to the same database.
func newDBLockPair(t *testing.T) (d1, d2 *DBLock) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "db.sqlite")
	f1, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	require.NoError(t, err)
	f2, err := os.OpenFile(path, os.O_RDWR, 0o600)
	require.NoError(t, err)

	const testIno uint64 = 42
	lockDir := t.TempDir()
	d1, err = NewDBLock(f1, true, testIno, lockDir)
	require.NoError(t, err)
	d2, err = NewDBLock(f2, true, testIno, lockDir)
	require.NoError(t, err)
	return d1, d2
}

func TestDBLockNoneToSharedAlwaysSucceeds(t *testing.T) {
	d1, d2 := newDBLockPair(t)
	defer d1.Close()
	defer d2.Close()

	require.True(t, d1.Lock(vfs.LOCK_SHARED))
	require.True(t, d2.Lock(vfs.LOCK_SHARED))
	require.Equal(t, vfs.LOCK_SHARED, d1.Current())
	require.Equal(t, vfs.LOCK_SHARED, d2.Current())
}

func TestDBLockTwoReservedConflict(t *testing.T) {
	d1, d2 := newDBLockPair(t)
	defer d1.Close()
	defer d2.Close()

	require.True(t, d1.Lock(vfs.LOCK_SHARED))
	require.True(t, d2.Lock(vfs.LOCK_SHARED))

	require.True(t, d1.Lock(vfs.LOCK_RESERVED))
	require.False(t, d2.Lock(vfs.LOCK_RESERVED))
}

func TestDBLockExclusiveWithOtherSharedParksAtPending(t *testing.T) {
	d1, d2 := newDBLockPair(t)
	defer d1.Close()
	defer d2.Close()

	require.True(t, d1.Lock(vfs.LOCK_SHARED))
	require.True(t, d2.Lock(vfs.LOCK_SHARED))
	require.True(t, d1.Lock(vfs.LOCK_RESERVED))

	// d1 attempts Exclusive while d2 still holds Shared: it cannot
	// acquire the primary exclusively, so it parks at Pending and the
	// call still reports success (spec.md §4.2).
	require.True(t, d1.Lock(vfs.LOCK_EXCLUSIVE))
	require.Equal(t, vfs.LOCK_PENDING, d1.Current())

	// d2 cannot release and reacquire Shared while d1 holds Pending.
	require.True(t, d2.Lock(vfs.LOCK_NONE))
	require.False(t, d2.Lock(vfs.LOCK_SHARED))
}

func TestDBLockReservedRequiresSharedFirst(t *testing.T) {
	d1, d2 := newDBLockPair(t)
	defer d1.Close()
	defer d2.Close()

	require.Panics(t, func() { d1.Lock(vfs.LOCK_RESERVED) })
}

func TestDBLockFromUnlockedOnlyReachesShared(t *testing.T) {
	d1, d2 := newDBLockPair(t)
	defer d1.Close()
	defer d2.Close()

	require.Panics(t, func() { d1.Lock(vfs.LOCK_EXCLUSIVE) })
}

func TestDBLockReservedDowngradeToSharedSucceeds(t *testing.T) {
	d1, d2 := newDBLockPair(t)
	defer d1.Close()
	defer d2.Close()

	require.True(t, d1.Lock(vfs.LOCK_SHARED))
	require.True(t, d1.Lock(vfs.LOCK_RESERVED))
	require.True(t, d1.Lock(vfs.LOCK_SHARED))
	require.Equal(t, vfs.LOCK_SHARED, d1.Current())
}

func TestDBLockReservedReflectsAcrossConnections(t *testing.T) {
	d1, d2 := newDBLockPair(t)
	defer d1.Close()
	defer d2.Close()

	require.True(t, d1.Lock(vfs.LOCK_SHARED))
	require.False(t, d1.Reserved())

	require.True(t, d1.Lock(vfs.LOCK_RESERVED))
	require.True(t, d2.Reserved())
}

func TestDBLockExclusiveAloneSucceeds(t *testing.T) {
	d1, d2 := newDBLockPair(t)
	defer d1.Close()
	defer d2.Close()

	require.True(t, d1.Lock(vfs.LOCK_SHARED))
	require.True(t, d1.Lock(vfs.LOCK_RESERVED))
	require.True(t, d1.Lock(vfs.LOCK_EXCLUSIVE))
	require.Equal(t, vfs.LOCK_EXCLUSIVE, d1.Current())
	require.False(t, d2.Lock(vfs.LOCK_SHARED))
}

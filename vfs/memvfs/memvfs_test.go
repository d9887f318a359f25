package memvfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncruces/go-sqlite3-uringvfs/vfs"
)

func TestOpenWithoutCreateFails(t *testing.T) {
	v := New()
	_, _, err := v.Open("missing.db", vfs.OPEN_MAIN_DB|vfs.OPEN_READWRITE)
	require.Error(t, err)
}

func TestOpenCreatesAndSharesBuffer(t *testing.T) {
	v := New()
	f1, _, err := v.Open("shared.db", vfs.OPEN_MAIN_DB|vfs.OPEN_CREATE|vfs.OPEN_READWRITE)
	require.NoError(t, err)
	defer f1.Close()

	_, err = f1.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)

	f2, _, err := v.Open("shared.db", vfs.OPEN_MAIN_DB|vfs.OPEN_READWRITE)
	require.NoError(t, err)
	defer f2.Close()

	buf := make([]byte, 5)
	_, err = f2.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
}

func TestCloseOfLastReferenceDropsDatabase(t *testing.T) {
	v := New()
	f, _, err := v.Open("gone.db", vfs.OPEN_MAIN_DB|vfs.OPEN_CREATE|vfs.OPEN_READWRITE)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, _, err = v.Open("gone.db", vfs.OPEN_MAIN_DB|vfs.OPEN_READWRITE)
	require.Error(t, err)
}

func TestDeleteOfLiveDatabaseSucceeds(t *testing.T) {
	v := New()
	f, _, err := v.Open("live.db", vfs.OPEN_MAIN_DB|vfs.OPEN_CREATE|vfs.OPEN_READWRITE)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, v.Delete("live.db", false))

	f2, _, err := v.Open("live.db", vfs.OPEN_MAIN_DB|vfs.OPEN_CREATE|vfs.OPEN_READWRITE)
	require.NoError(t, err)
	defer f2.Close()
	size, err := f2.Size()
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestDeleteOfMissingDatabaseReportsNotFound(t *testing.T) {
	v := New()
	err := v.Delete("missing.db", false)
	require.Error(t, err)
}

func TestTruncateGrowsWithZeroFill(t *testing.T) {
	v := New()
	f, _, err := v.Open("grow.db", vfs.OPEN_MAIN_DB|vfs.OPEN_CREATE|vfs.OPEN_READWRITE)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Truncate(4))
	size, err := f.Size()
	require.NoError(t, err)
	require.EqualValues(t, 4, size)

	buf := make([]byte, 4)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0}, buf)
}

func TestTruncateShrinksByDiscardingTail(t *testing.T) {
	v := New()
	f, _, err := v.Open("shrink.db", vfs.OPEN_MAIN_DB|vfs.OPEN_CREATE|vfs.OPEN_READWRITE)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteAt([]byte("abcdef"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(3))

	size, err := f.Size()
	require.NoError(t, err)
	require.EqualValues(t, 3, size)
}

func TestLockStateMachineExclusiveExcludesShared(t *testing.T) {
	v := New()
	f1, _, err := v.Open("lock.db", vfs.OPEN_MAIN_DB|vfs.OPEN_CREATE|vfs.OPEN_READWRITE)
	require.NoError(t, err)
	defer f1.Close()
	f2, _, err := v.Open("lock.db", vfs.OPEN_MAIN_DB|vfs.OPEN_READWRITE)
	require.NoError(t, err)
	defer f2.Close()

	require.NoError(t, f1.Lock(vfs.LOCK_SHARED))
	require.NoError(t, f1.Lock(vfs.LOCK_RESERVED))
	require.NoError(t, f1.Lock(vfs.LOCK_EXCLUSIVE))

	err = f2.Lock(vfs.LOCK_SHARED)
	require.Error(t, err)
}

func TestCheckReservedLockReflectsOtherConnection(t *testing.T) {
	v := New()
	f1, _, err := v.Open("res.db", vfs.OPEN_MAIN_DB|vfs.OPEN_CREATE|vfs.OPEN_READWRITE)
	require.NoError(t, err)
	defer f1.Close()
	f2, _, err := v.Open("res.db", vfs.OPEN_MAIN_DB|vfs.OPEN_READWRITE)
	require.NoError(t, err)
	defer f2.Close()

	require.NoError(t, f1.Lock(vfs.LOCK_SHARED))
	require.NoError(t, f1.Lock(vfs.LOCK_RESERVED))

	reserved, err := f2.CheckReservedLock()
	require.NoError(t, err)
	require.True(t, reserved)
}

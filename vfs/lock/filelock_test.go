package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileLockSharedAllowsMultipleReaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.lck")
	f1, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	require.NoError(t, err)
	f2, err := os.OpenFile(path, os.O_RDWR, 0o600)
	require.NoError(t, err)

	l1 := NewFileLock(f1)
	l2 := NewFileLock(f2)
	defer l1.Close()
	defer l2.Close()

	require.True(t, l1.TryShared())
	require.True(t, l2.TryShared())
}

func TestFileLockExclusiveExcludesEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.lck")
	f1, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	require.NoError(t, err)
	f2, err := os.OpenFile(path, os.O_RDWR, 0o600)
	require.NoError(t, err)

	l1 := NewFileLock(f1)
	l2 := NewFileLock(f2)
	defer l1.Close()
	defer l2.Close()

	require.True(t, l1.TryExclusive())
	require.False(t, l2.TryShared())
	require.False(t, l2.TryExclusive())
}

func TestFileLockUnlockReleasesForOtherFds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.lck")
	f1, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	require.NoError(t, err)
	f2, err := os.OpenFile(path, os.O_RDWR, 0o600)
	require.NoError(t, err)

	l1 := NewFileLock(f1)
	l2 := NewFileLock(f2)
	defer l1.Close()
	defer l2.Close()

	require.True(t, l1.TryExclusive())
	l1.Unlock()
	require.True(t, l2.TryExclusive())
}

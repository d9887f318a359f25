package wal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncruces/go-sqlite3-uringvfs/vfs"
)

func TestOpenFirstOpenerTruncatesStaleContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.sqlite-shm")

	// Seed stale content as if a previous crashed process left it behind.
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xAA}, RegionSize), 0o600))

	s, err := Open(path, 1, false, 0o644, t.TempDir())
	require.NoError(t, err)
	defer s.Unmap(true)

	region, err := s.Map(0)
	require.NoError(t, err)
	require.Equal(t, make([]byte, RegionSize), region)
}

func TestOpenSecondOpenerDoesNotTruncate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.sqlite-shm")
	lockDir := t.TempDir()

	s1, err := Open(path, 2, false, 0o644, lockDir)
	require.NoError(t, err)
	defer s1.Unmap(false)

	require.NoError(t, s1.Push(0, bytes.Repeat([]byte{0x42}, RegionSize)))

	s2, err := Open(path, 2, false, 0o644, lockDir)
	require.NoError(t, err)
	defer s2.Unmap(false)

	region, err := s2.Map(0)
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0x42}, RegionSize), region)
}

func TestPullZeroFillsUnwrittenRegion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.sqlite-shm")

	s, err := Open(path, 3, false, 0o644, t.TempDir())
	require.NoError(t, err)
	defer s.Unmap(true)

	region, err := s.Map(5)
	require.NoError(t, err)
	require.Equal(t, make([]byte, RegionSize), region)
}

func TestLockDelegatesToRangeLock(t *testing.T) {
	dir := t.TempDir()
	lockDir := t.TempDir()
	path := filepath.Join(dir, "a.sqlite-shm")

	sA, err := Open(path, 100, false, 0o644, lockDir)
	require.NoError(t, err)
	defer sA.Unmap(false)
	sB, err := Open(path, 100, false, 0o644, lockDir)
	require.NoError(t, err)
	defer sB.Unmap(true)

	ok, err := sA.Lock(0, 1, vfs.LOCK_EXCLUSIVE)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = sB.Lock(0, 1, vfs.LOCK_SHARED)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestShmPathAppendsSuffix(t *testing.T) {
	require.Equal(t, "foo.db-shm", ShmPath("foo.db"))
}

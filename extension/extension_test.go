package extension

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncruces/go-sqlite3-uringvfs/vfs"
	"github.com/ncruces/go-sqlite3-uringvfs/vfs/memvfs"
)

func TestRegisterRejectsDuplicateName(t *testing.T) {
	name := "extension-test-dup"
	require.NoError(t, Register(name, memvfs.New()))
	err := Register(name, memvfs.New())
	require.Error(t, err)
}

func TestRegisterSurvivesPanicOnUnderlyingRegistration(t *testing.T) {
	name := "extension-test-panic"
	vfs.Register(name, memvfs.New())
	defer func() {
		// vfs.Register has no Unregister; nothing further to clean up.
	}()

	err := Register(name, memvfs.New())
	require.Error(t, err)
}

func TestURIFromFileBuildsVFSQualifiedURI(t *testing.T) {
	uri := URIFromFile("myvfs", "/tmp/test.db")
	require.Contains(t, uri, "vfs=myvfs")
	require.Contains(t, uri, "/tmp/test.db")
}

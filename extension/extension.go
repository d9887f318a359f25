// Package extension is the C9 entrypoint: it registers a vfs.VFS under
// a process-global name and provides the URI helper and scalar
// function consumers use to point a SQLite connection at it.
package extension

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/ncruces/go-sqlite3-uringvfs/sqlite3"
	"github.com/ncruces/go-sqlite3-uringvfs/vfs"
)

var (
	mu         sync.Mutex
	registered = map[string]bool{}
)

// Register wires v into the process-global VFS registry under name.
// Unlike vfs.Register (which panics on a duplicate name, since that is
// a programmer error at process-init time), Register returns an error:
// an extension can be loaded more than once by a misconfigured
// application, and re-entry after a failed load must not leave a
// half-registered VFS behind (spec.md §4.8).
func Register(name string, v vfs.VFS) (err error) {
	mu.Lock()
	defer mu.Unlock()

	if registered[name] {
		return fmt.Errorf("extension: %q already registered", name)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extension: register %q: %v", name, r)
		}
	}()

	vfs.Register(name, v)
	registered[name] = true
	return nil
}

// URIFromFile builds a "file:" URI that opens path through the VFS
// registered under name (spec.md §4.8, "URI scalar helper").
func URIFromFile(name, path string) string {
	u := url.URL{Scheme: "file", Opaque: path}
	q := u.Query()
	q.Set("vfs", name)
	u.RawQuery = q.Encode()
	return u.String()
}

// RegisterScalar wires a "<name>_from_file(path)" scalar function onto
// conn, returning the URI URIFromFile would build for path. This gives
// SQL callers a way to construct a vfs-qualified URI without
// string-concatenating one by hand.
func RegisterScalar(conn sqlite3.Conn, name string) error {
	fnName := name + "_from_file"
	return conn.CreateFunction(fnName, 1, true, func(ctx sqlite3.Context, args []sqlite3.Value) {
		if len(args) != 1 {
			ctx.ResultError(fmt.Errorf("%s: expected 1 argument", fnName))
			return
		}
		ctx.ResultText(URIFromFile(name, args[0].Text()))
	})
}

package sqlite3

// Conn is the slice of a SQLite connection handle that extension
// entrypoints need: the ability to register a scalar SQL function.
// The full connection/statement/ABI surface is the external,
// out-of-scope SQLite core; this interface exists only so an
// extension's RegisterScalar(conn, name) can be written and tested
// without it.
type Conn interface {
	CreateFunction(name string, nArg int, deterministic bool, fn ScalarFunc) error
}

// Context is passed to a ScalarFunc to report its result or an error.
type Context interface {
	ResultText(string)
	ResultError(error)
}

// Value is one SQL argument passed to a ScalarFunc.
type Value interface {
	Text() string
}

// ScalarFunc is the shape of a registered scalar SQL function.
type ScalarFunc func(ctx Context, args []Value)

// Package sqlite3 carries the small slice of SQLite's result-code and
// scalar-function ABI that a VFS needs to talk about: error codes, and
// the Conn/Context/Value shapes used to register a scalar helper
// function. The rest of the SQLite C ABI is an external collaborator;
// only these interfaces matter to this repository.
package sqlite3

import (
	"errors"
	"fmt"
)

// ErrorCode is a SQLite primary or extended result code.
type ErrorCode int

// Primary and extended result codes used by the VFS/IO-methods contract.
// Values match SQLite's public header so a host bridging to real SQLite
// (see package vfsutil) can pass them through unchanged.
const (
	OK         ErrorCode = 0
	BUSY       ErrorCode = 5
	CANTOPEN   ErrorCode = 14
	MISUSE     ErrorCode = 21
	IOERR      ErrorCode = 10
	NOTFOUND   ErrorCode = 12
	PERM       ErrorCode = 3
	READONLY   ErrorCode = 8
	PROTOCOL   ErrorCode = 15
	BUSY_RECOVERY        ErrorCode = BUSY | (1 << 8)
	IOERR_READ           ErrorCode = IOERR | (1 << 8)
	IOERR_SHORT_READ     ErrorCode = IOERR | (2 << 8)
	IOERR_WRITE          ErrorCode = IOERR | (3 << 8)
	IOERR_FSYNC          ErrorCode = IOERR | (4 << 8)
	IOERR_TRUNCATE       ErrorCode = IOERR | (6 << 8)
	IOERR_FSTAT          ErrorCode = IOERR | (7 << 8)
	IOERR_UNLOCK         ErrorCode = IOERR | (8 << 8)
	IOERR_RDLOCK         ErrorCode = IOERR | (9 << 8)
	IOERR_DELETE         ErrorCode = IOERR | (10 << 8)
	IOERR_LOCK           ErrorCode = IOERR | (15 << 8)
	IOERR_CHECKRESERVEDLOCK ErrorCode = IOERR | (14 << 8)
	IOERR_CLOSE          ErrorCode = IOERR | (16 << 8)
	IOERR_SHMOPEN        ErrorCode = IOERR | (18 << 8)
	IOERR_SHMSIZE        ErrorCode = IOERR | (19 << 8)
	IOERR_SHMLOCK        ErrorCode = IOERR | (20 << 8)
	IOERR_SHMMAP         ErrorCode = IOERR | (21 << 8)
	IOERR_SEEK           ErrorCode = IOERR | (22 << 8)
	IOERR_DELETE_NOENT   ErrorCode = IOERR | (23 << 8)
	IOERR_ACCESS         ErrorCode = IOERR | (13 << 8)
)

// Error is the error type returned by VFS/File methods. Code is always
// one of the ErrorCode constants above; Err, when non-nil, is the
// underlying OS error that produced it.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sqlite3: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("sqlite3: %s", e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err carries the given ErrorCode, unwrapping as needed.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (c ErrorCode) String() string {
	switch c {
	case OK:
		return "OK"
	case BUSY:
		return "BUSY"
	case BUSY_RECOVERY:
		return "BUSY_RECOVERY"
	case CANTOPEN:
		return "CANTOPEN"
	case MISUSE:
		return "MISUSE"
	case IOERR:
		return "IOERR"
	case NOTFOUND:
		return "NOTFOUND"
	case PERM:
		return "PERM"
	case READONLY:
		return "READONLY"
	case PROTOCOL:
		return "PROTOCOL"
	case IOERR_READ:
		return "IOERR_READ"
	case IOERR_SHORT_READ:
		return "IOERR_SHORT_READ"
	case IOERR_WRITE:
		return "IOERR_WRITE"
	case IOERR_FSYNC:
		return "IOERR_FSYNC"
	case IOERR_TRUNCATE:
		return "IOERR_TRUNCATE"
	case IOERR_FSTAT:
		return "IOERR_FSTAT"
	case IOERR_UNLOCK:
		return "IOERR_UNLOCK"
	case IOERR_RDLOCK:
		return "IOERR_RDLOCK"
	case IOERR_DELETE:
		return "IOERR_DELETE"
	case IOERR_LOCK:
		return "IOERR_LOCK"
	case IOERR_CHECKRESERVEDLOCK:
		return "IOERR_CHECKRESERVEDLOCK"
	case IOERR_CLOSE:
		return "IOERR_CLOSE"
	case IOERR_SHMOPEN:
		return "IOERR_SHMOPEN"
	case IOERR_SHMSIZE:
		return "IOERR_SHMSIZE"
	case IOERR_SHMLOCK:
		return "IOERR_SHMLOCK"
	case IOERR_SHMMAP:
		return "IOERR_SHMMAP"
	case IOERR_SEEK:
		return "IOERR_SEEK"
	case IOERR_DELETE_NOENT:
		return "IOERR_DELETE_NOENT"
	case IOERR_ACCESS:
		return "IOERR_ACCESS"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// As turns a plain error into a *Error, wrapping it under the given code
// unless it already carries an Error (in which case the existing code
// takes precedence — do not mask a more specific classification).
func As(code ErrorCode, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Code: code, Err: err}
}

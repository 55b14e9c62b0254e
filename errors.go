package walb

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Error is a structured walb error carrying the operation, component and
// category that produced it, following the §7 error taxonomy.
type Error struct {
	Op        string  // operation that failed, e.g. "logpack.write", "redo.run"
	Component string  // subsystem, e.g. "super", "logpack", "ringbuf", "snapshot"
	Code      ErrCode // high-level category
	Msg       string
	Inner     error // wrapped cause
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Component != "" {
		return fmt.Sprintf("walb: %s[%s]: %s", e.Component, e.Op, msg)
	}
	return fmt.Sprintf("walb: %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrCode is a high-level error category, one per §7 failure class.
type ErrCode string

const (
	// CodeFormat marks malformed on-disk structure: bad sector_type,
	// size, or field combination caught before checksum verification.
	CodeFormat ErrCode = "format"
	// CodeChecksum marks a checksum mismatch on an otherwise
	// well-formed sector or record.
	CodeChecksum ErrCode = "checksum"
	// CodeIO marks an underlying device I/O failure.
	CodeIO ErrCode = "io"
	// CodeRange marks an out-of-range lsid, offset or size.
	CodeRange ErrCode = "range"
	// CodeNotFound marks a lookup (snapshot name/id, pack) that found
	// nothing.
	CodeNotFound ErrCode = "not-found"
	// CodeNameInUse marks a snapshot Add call with a name already
	// indexed.
	CodeNameInUse ErrCode = "name-in-use"
	// CodeNoSpace marks a full snapshot metadata region.
	CodeNoSpace ErrCode = "no-space"
	// CodeInvariant marks a violated internal invariant: a contract
	// bug in walb itself rather than bad input, analogous to a panic
	// boundary.
	CodeInvariant ErrCode = "invariant-violation"
)

// NewError builds a structured error.
func NewError(op, component string, code ErrCode, msg string) *Error {
	return &Error{Op: op, Component: component, Code: code, Msg: msg}
}

// WrapError wraps inner with op/component context, preserving the code of
// an already-structured inner error or defaulting to CodeIO.
func WrapError(op, component string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if we, ok := inner.(*Error); ok {
		return &Error{Op: op, Component: component, Code: we.Code, Msg: we.Msg, Inner: we}
	}
	return &Error{Op: op, Component: component, Code: CodeIO, Msg: inner.Error(), Inner: pkgerrors.WithStack(inner)}
}

// IsCode reports whether err (or something it wraps) is a *Error with the
// given code.
func IsCode(err error, code ErrCode) bool {
	for err != nil {
		if we, ok := err.(*Error); ok {
			return we.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

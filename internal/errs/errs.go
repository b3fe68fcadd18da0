// Package errs defines the error taxonomy shared by the executor, the
// synchronizer and the adapter boundary.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how callers must react to it.
type Kind string

const (
	// Transport means the relay was unreachable, timed out or rejected the call.
	Transport Kind = "transport"
	// Protocol means the secure group channel refused an operation.
	Protocol Kind = "protocol"
	// Storage means the persistence gateway failed.
	Storage Kind = "storage"
	// InvalidInput means a user-supplied identifier was malformed.
	InvalidInput Kind = "invalid_input"
	// Inconsistency means local storage and the group channel disagree.
	Inconsistency Kind = "inconsistency"
)

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, &Error{Kind: Protocol}) matches any protocol error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New returns a classified error without a cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err. A nil err yields nil. An err that is already
// classified keeps its kind; only the operation context is added.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Op == op {
			return e
		}
		return &Error{Kind: e.Kind, Op: op, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrapf classifies err and attaches a message.
func Wrapf(kind Kind, op string, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

func TransportErr(op string, err error) error { return Wrap(Transport, op, err) }
func ProtocolErr(op string, err error) error { return Wrap(Protocol, op, err) }
func StorageErr(op string, err error) error { return Wrap(Storage, op, err) }
func InvalidInputErr(op, msg string) error { return New(InvalidInput, op, msg) }
func InconsistencyErr(op, msg string) error { return New(Inconsistency, op, msg) }

// KindOf returns the kind of the outermost classified error in err's
// chain, or the empty string when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

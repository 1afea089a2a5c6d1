// domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindTransientExternal ErrorKind = "transient_external"
	KindIntegrity         ErrorKind = "integrity"
)

// Error is the typed failure returned by every operation of the core.
// Op names the operation or pipeline step that failed.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "" when none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

func NewValidationError(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NewConflictError(op, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NewIntegrityError(op, format string, args ...any) *Error {
	return &Error{Kind: KindIntegrity, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewTransientError wraps a collaborator failure (network, speech, AI,
// object store, transcoder).
func NewTransientError(op string, err error) *Error {
	return &Error{Kind: KindTransientExternal, Op: op, Err: err}
}

// ErrLeaseHeld is returned by a VideoLocker when another worker owns the video.
var ErrLeaseHeld = errors.New("video lease is held by another worker")

// ErrLeaseLost is the cancellation cause of a lease context whose lease
// could not be renewed.
var ErrLeaseLost = errors.New("video lease was lost")

// Package moderr defines the error taxonomy shared across vigil workflows.
//
// UserFacingError is caught at workflow boundaries and turned into a direct
// reply to the requester. DomainError marks an invariant violation and aborts
// the operation. TransientError wraps a failed platform or store call; the
// current item is skipped and the loop continues.
package moderr

import (
	"errors"
	"fmt"
)

type UserFacingError struct {
	Msg string
}

func (e *UserFacingError) Error() string {
	return e.Msg
}

// UserFacing builds an error whose message is safe and useful to send back to
// the requesting user verbatim.
func UserFacing(format string, args ...any) error {
	return &UserFacingError{Msg: fmt.Sprintf(format, args...)}
}

func AsUserFacing(err error) (*UserFacingError, bool) {
	var ufe *UserFacingError
	if errors.As(err, &ufe) {
		return ufe, true
	}
	return nil, false
}

type DomainError struct {
	Msg string
}

func (e *DomainError) Error() string {
	return e.Msg
}

func Domain(format string, args ...any) error {
	return &DomainError{Msg: fmt.Sprintf(format, args...)}
}

func IsDomain(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient tags a platform or store call failure. Returns nil if err is nil
// so call sites can wrap unconditionally.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

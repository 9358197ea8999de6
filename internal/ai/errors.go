package ai

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures so callers can pick a recovery path.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindQuota     ErrorKind = "quota"
	KindInvalid   ErrorKind = "invalid"
)

// Error is returned by provider clients once their own retry budget is spent.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with the given kind.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind of a provider error, or "" when err is not one.
func KindOf(err error) ErrorKind {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr.Kind
	}
	return ""
}

// IsKind reports whether err is a provider error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

package errkind

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. The kind decides whether the job
// controller retries the stage or fails the job outright.
type Kind string

const (
	IO                 Kind = "io"
	Store              Kind = "store"
	Network            Kind = "network"
	RateLimit          Kind = "rate_limit"
	Unavailable        Kind = "unavailable"
	Unsupported        Kind = "unsupported"
	Corrupt            Kind = "corrupt"
	Malformed          Kind = "malformed"
	PlanningIncomplete Kind = "planning_incomplete"
	Validation         Kind = "validation"
	Conflict           Kind = "conflict"
	Cancelled          Kind = "cancelled"
	Fatal              Kind = "fatal"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf walks the chain and returns the first classified kind, or Fatal
// when no *Error is present.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return Fatal
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the controller should re-run the stage after a
// delay. Transient transport and capacity failures retry; everything that
// reflects bad input or a broken invariant does not.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Network, RateLimit, Unavailable, Store, IO:
		return true
	default:
		return false
	}
}

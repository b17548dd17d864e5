package storage

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/pitchdesk/pkg/apperr"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// Fault is the fixed set of store failures business code may see
type Fault int

const (
	FaultUnknown Fault = iota
	FaultUnavailable
	FaultTimeout
	FaultConflict
	FaultConstraint
)

func (f Fault) String() string {
	switch f {
	case FaultUnavailable:
		return "unavailable"
	case FaultTimeout:
		return "timeout"
	case FaultConflict:
		return "conflict"
	case FaultConstraint:
		return "constraint"
	default:
		return "unknown"
	}
}

// FaultError carries a classified driver error. The driver error is kept
// for logs but its text is never shown to clients.
type FaultError struct {
	Fault Fault
	Op    string
	Err   error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s: store %s: %v", e.Op, e.Fault, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

// FaultOf returns the fault class of err, and false when err is not a store fault
func FaultOf(err error) (Fault, bool) {
	var fe *FaultError
	if errors.As(err, &fe) {
		return fe.Fault, true
	}
	return FaultUnknown, false
}

// AppError converts a store error into the shared error taxonomy.
// ErrNotFound becomes NotFound, constraint violations become Conflict,
// retryable faults become Transient and everything else is Internal.
// Errors that are already classified pass through unchanged.
func AppError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, ErrNotFound) {
		return apperr.E(apperr.KindNotFound, op, "not found")
	}
	fault, ok := FaultOf(err)
	if !ok {
		return apperr.Wrap(apperr.KindInternal, op, err)
	}
	switch fault {
	case FaultConstraint:
		return apperr.Wrap(apperr.KindConflict, op, err)
	case FaultUnavailable, FaultTimeout, FaultConflict:
		return apperr.Wrap(apperr.KindTransient, op, err)
	default:
		return apperr.Wrap(apperr.KindInternal, op, err)
	}
}

// Package apperr defines the error kinds shared by the authorization and
// review packages and the HTTP layer.
//
// Expected denials (wrong tenant, missing role, absent resource) are returned
// as *Error values with a Kind. Anything else is a fault and normally arrives
// wrapped as KindTransient or KindInternal.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindInvalidSession
	KindNoTenant
	KindCrossTenant
	KindInsufficientRole
	KindForbidden
	KindNotFound
	KindValidation
	KindConflict
	KindTransient
)

var kindNames = map[Kind]string{
	KindInternal:         "internal",
	KindUnauthenticated:  "unauthenticated",
	KindInvalidSession:   "invalid_session",
	KindNoTenant:         "no_tenant",
	KindCrossTenant:      "cross_tenant",
	KindInsufficientRole: "insufficient_role",
	KindForbidden:        "forbidden",
	KindNotFound:         "not_found",
	KindValidation:       "validation",
	KindConflict:         "conflict",
	KindTransient:        "transient_store_error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified error
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so errors.Is(err, apperr.NotFound) works for any op
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	Unauthenticated  = &Error{Kind: KindUnauthenticated}
	InvalidSession   = &Error{Kind: KindInvalidSession}
	NoTenant         = &Error{Kind: KindNoTenant}
	CrossTenant      = &Error{Kind: KindCrossTenant}
	InsufficientRole = &Error{Kind: KindInsufficientRole}
	Forbidden        = &Error{Kind: KindForbidden}
	NotFound         = &Error{Kind: KindNotFound}
	Validation       = &Error{Kind: KindValidation}
	Conflict         = &Error{Kind: KindConflict}
	Transient        = &Error{Kind: KindTransient}
)

// E builds a classified error
func E(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err under kind
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validationf builds a KindValidation error with a formatted message
func Validationf(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of the first *Error in err's chain
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return ""
}

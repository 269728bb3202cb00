package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure independently of its message. Transports map
// kinds to status codes.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindInternal:
		fallthrough
	default:
		return "internal"
	}
}

// Error is a classified, client-presentable error. Its Message is safe to
// show to API clients.
type Error struct {
	Kind    ErrorKind
	Message string

	parent   *Error
	kindOnly bool
}

func newKindError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, kindOnly: true}
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is the kind sentinel (ErrValidation, ErrConflict,
// ...) matching e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)

	return ok && t.kindOnly && t.Kind == e.Kind
}

// Unwrap returns the sentinel e was derived from with With.
func (e *Error) Unwrap() error {
	if e.parent == nil {
		return nil
	}

	return e.parent
}

// With derives an error of the same kind with a more specific message.
// errors.Is(derived, e) holds.
func (e *Error) With(format string, args ...any) *Error {
	return &Error{
		Kind:    e.Kind,
		Message: fmt.Sprintf(format, args...),
		parent:  e,
	}
}

// Kind sentinels. errors.Is(err, ErrConflict) matches every conflict.
var (
	ErrValidation      = newKindError(KindValidation, "validation failed")
	ErrUnauthenticated = newKindError(KindUnauthenticated, "unauthenticated")
	ErrForbidden       = newKindError(KindForbidden, "forbidden")
	ErrNotFound        = newKindError(KindNotFound, "not found")
	ErrConflict        = newKindError(KindConflict, "conflict")
)

var (
	ErrNoAuthToken        = newError(KindUnauthenticated, "missing bearer token")
	ErrInvalidAuthToken   = newError(KindUnauthenticated, "invalid token")
	ErrTokenExpired       = newError(KindUnauthenticated, "token expired")
	ErrInvalidCredentials = newError(KindUnauthenticated, "invalid email or password")
	ErrRoleNotAllowed     = newError(KindForbidden, "insufficient permissions")
)

var (
	ErrBookNotFound           = newError(KindNotFound, "book not found")
	ErrUserNotFound           = newError(KindNotFound, "user not found")
	ErrLoanNotFound           = newError(KindNotFound, "loan not found")
	ErrLoanNotFoundOrReturned = newError(KindNotFound, "loan not found or already returned")
	ErrCoverNotFound          = newError(KindNotFound, "cover not found")
)

var (
	ErrNoCopiesAvailable  = newError(KindConflict, "no copies available")
	ErrInsufficientCopies = newError(KindConflict, "more copies are on loan than the new total allows")
	ErrHasActiveLoans     = newError(KindConflict, "user has active loans")
	ErrBookHasActiveLoans = newError(KindConflict, "book has active loans")
	ErrEmailTaken         = newError(KindConflict, "email already registered")
	ErrUserInactive       = newError(KindConflict, "user is inactive")
)

var (
	ErrCoverTooLarge        = newError(KindValidation, "cover image too large")
	ErrCoverTypeUnsupported = newError(KindValidation, "cover image type not supported")
)

// Validationf builds an ad-hoc validation error.
func Validationf(format string, args ...any) *Error {
	return ErrValidation.With(format, args...)
}

// KindOf returns the kind of the first classified error in err's tree, or
// KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}

	return KindInternal
}

// PublicMessage returns the client-presentable message for err. Unclassified
// errors yield a generic message.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Kind != KindInternal {
		return de.Message
	}

	return "internal server error"
}

package types

import "fmt"

// Kind discriminates domain errors so callers can render inline
// feedback without inspecting message text.
type Kind string

const (
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindAlreadyMember     Kind = "already_member"
	KindDuplicateRequest  Kind = "duplicate_request"
	KindInvalidCount      Kind = "invalid_count"
	KindInvalidName       Kind = "invalid_name"
	KindImmutableCategory Kind = "immutable_category"
	KindContentBlocked    Kind = "content_blocked"
	KindConfirmRequired   Kind = "confirm_required"
	KindWriteError        Kind = "write_error"
	KindInternal          Kind = "internal"
)

type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func AlreadyMember(format string, args ...any) *Error {
	return newError(KindAlreadyMember, format, args...)
}

func DuplicateRequest(format string, args ...any) *Error {
	return newError(KindDuplicateRequest, format, args...)
}

func InvalidCount(format string, args ...any) *Error {
	return newError(KindInvalidCount, format, args...)
}

func InvalidName(format string, args ...any) *Error {
	return newError(KindInvalidName, format, args...)
}

func ImmutableCategory(format string, args ...any) *Error {
	return newError(KindImmutableCategory, format, args...)
}

func ContentBlocked(format string, args ...any) *Error {
	return newError(KindContentBlocked, format, args...)
}

func ConfirmRequired(format string, args ...any) *Error {
	return newError(KindConfirmRequired, format, args...)
}

// WriteError wraps a persistence failure. It is surfaced to the
// caller unchanged rather than patched over with local state.
func WriteError(err error, format string, args ...any) *Error {
	return &Error{Kind: KindWriteError, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of a domain error, or KindInternal for any
// other error.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

package clip

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNotFound     ErrorKind = "not-found"
	KindTooLarge     ErrorKind = "too-large"
	KindInvalidInput ErrorKind = "invalid-input"
	KindConflict     ErrorKind = "conflict"
	KindInternal     ErrorKind = "internal"
)

// Error is a command rejection. It is returned to the originating
// connection only and never broadcast to other members.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NotFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func TooLargeError(msg string) *Error {
	return &Error{Kind: KindTooLarge, Message: msg}
}

func InvalidInputError(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

func ConflictError(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func InternalError(msg string) *Error {
	return &Error{Kind: KindInternal, Message: msg}
}

// KindOf maps any error to its rejection kind; unrecognized errors are
// reported as internal.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

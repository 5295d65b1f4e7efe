package qa

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNotFound      ErrorKind = "not_found"
	KindValidation    ErrorKind = "validation"
	KindTransport     ErrorKind = "transport"
	KindAuthorization ErrorKind = "authorization"
)

// Sentinels for errors.Is; every *Error matches the sentinel of its kind.
var (
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrTransport     = &Error{Kind: KindTransport}
	ErrAuthorization = &Error{Kind: KindAuthorization}
)

// Error is the failure surfaced next to the component that produced it.
// Key is the message key for the hosting view; Threshold is set for
// length checks.
type Error struct {
	Kind      ErrorKind
	Key       string
	Field     string
	Threshold int
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	text := e.Message
	if text == "" {
		text = e.Key
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, text, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, text)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Key == "" || t.Key == e.Key)
}

func validationError(field, key string, threshold int) *Error {
	return &Error{Kind: KindValidation, Field: field, Key: key, Threshold: threshold}
}

func notFoundError(key string) *Error {
	return &Error{Kind: KindNotFound, Key: key}
}

// userMessager is implemented by gateway errors that carry a message meant
// for the person who triggered the call.
type userMessager interface {
	UserMessage() string
}

// transportError wraps a gateway failure, keeping the server's message when
// one is available and falling back to the generic key otherwise.
func transportError(key string, err error) *Error {
	out := &Error{Kind: KindTransport, Key: key, Err: err}
	var messager userMessager
	if errors.As(err, &messager) {
		out.Message = messager.UserMessage()
	}
	return out
}

// KindOf returns the kind of err, or "" when err is not a qa error.
func KindOf(err error) ErrorKind {
	var qaErr *Error
	if errors.As(err, &qaErr) {
		return qaErr.Kind
	}
	return ""
}

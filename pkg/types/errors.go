package types

import "errors"

// ErrorKind classifies a rejected request.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation_error"
	KindConflict     ErrorKind = "conflict_error"
	KindUnauthorized ErrorKind = "unauthorized_error"
	KindNotFound     ErrorKind = "not_found_error"
	KindRateLimited  ErrorKind = "rate_limited"
	KindInternal     ErrorKind = "internal_error"
)

// Error is a rejection reported to the originating connection only.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds a typed rejection.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Rejections returned by the chat engine
var (
	ErrInvalidName       = NewError(KindValidation, "invalid username")
	ErrNameTooLong       = NewError(KindValidation, "username is too long")
	ErrInvalidMessage    = NewError(KindValidation, "invalid message")
	ErrMessageTooLong    = NewError(KindValidation, "message is too long")
	ErrInvalidPayload    = NewError(KindValidation, "invalid payload")
	ErrUnknownEvent      = NewError(KindValidation, "unknown event")
	ErrInvalidFile       = NewError(KindValidation, "invalid file")
	ErrFileTooLarge      = NewError(KindValidation, "file exceeds size limit")
	ErrNameTaken         = NewError(KindConflict, "username already taken")
	ErrNotRegistered     = NewError(KindUnauthorized, "you must join first before sending messages")
	ErrAlreadyRegistered = NewError(KindUnauthorized, "connection already joined")
	ErrConnectionClosed  = NewError(KindUnauthorized, "connection is closed")
	ErrInvalidRecipient  = NewError(KindNotFound, "invalid recipient")
	ErrRateLimited       = NewError(KindRateLimited, "rate limit exceeded")
	ErrNotPublic         = NewError(KindValidation, "only public messages are kept in history")
)

// KindOf returns the kind of a typed rejection, or KindInternal for any other error.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

// ErrorEvent renders err as the payload sent back to the originating connection.
func ErrorEvent(err error, ref string) Event {
	message := "internal error"
	var typed *Error
	if errors.As(err, &typed) {
		message = typed.Message
	}
	return Event{
		Name: EventError,
		Data: ErrorPayload{Kind: KindOf(err), Message: message, Ref: ref},
	}
}

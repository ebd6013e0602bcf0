package service

import (
	"errors"

	"github.com/vedran77/pulseboard/pkg/validator"
)

// Error kinds. Every *Error unwraps to exactly one of them.
var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
)

// Error is a client-visible failure of a service operation.
type Error struct {
	kind    error
	Message string
	Fields  validator.ValidationErrors
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.kind }

func newError(kind error, message string) *Error {
	return &Error{kind: kind, Message: message}
}

func invalid(fields validator.ValidationErrors) *Error {
	return &Error{kind: ErrValidation, Message: "Invalid input", Fields: fields}
}

var (
	ErrChannelNotFound     = newError(ErrNotFound, "Channel not found")
	ErrChannelUnavailable  = newError(ErrValidation, "Channel does not exist or has been deleted")
	ErrNotAdmin            = newError(ErrForbidden, "Only admins can perform this action")
	ErrNotChannelMember    = newError(ErrForbidden, "You are not a member of this channel")
	ErrMessageNotFound     = newError(ErrNotFound, "Message not found")
	ErrMessageDeleted      = newError(ErrValidation, "Message has already been deleted")
	ErrReplyTargetNotFound = newError(ErrValidation, "Reply target must be a message in the same channel")
)

// Code maps an error to the stable code reported to clients.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}

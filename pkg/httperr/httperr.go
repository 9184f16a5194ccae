package httperr

import (
	"errors"
	"net/http"
)

type BadRequestError struct {
	msg string
}

func (e *BadRequestError) Error() string { return e.msg }

func NewBadRequest(msg string) error { return &BadRequestError{msg: msg} }

func IsBadRequest(err error) bool {
	_, ok := errors.AsType[*BadRequestError](err)
	return ok
}

type ForbiddenError struct {
	msg string
}

func (e *ForbiddenError) Error() string { return e.msg }

func NewForbidden(msg string) error {
	if msg == "" {
		msg = "forbidden"
	}
	return &ForbiddenError{msg: msg}
}

func IsForbidden(err error) bool {
	_, ok := errors.AsType[*ForbiddenError](err)
	return ok
}

type NotFoundError struct {
	msg string
}

func (e *NotFoundError) Error() string { return e.msg }

func NewNotFound(msg string) error {
	if msg == "" {
		msg = "not found"
	}
	return &NotFoundError{msg: msg}
}

func IsNotFound(err error) bool {
	_, ok := errors.AsType[*NotFoundError](err)
	return ok
}

type ConflictError struct {
	msg string
}

func (e *ConflictError) Error() string { return e.msg }

func NewConflict(msg string) error { return &ConflictError{msg: msg} }

func IsConflict(err error) bool {
	_, ok := errors.AsType[*ConflictError](err)
	return ok
}

// OperationError is raised when a service reports failure without a more
// specific kind.
type OperationError struct {
	msg string
}

func (e *OperationError) Error() string { return e.msg }

func NewError(msg string) error {
	if msg == "" {
		msg = "error"
	}
	return &OperationError{msg: msg}
}

func IsError(err error) bool {
	_, ok := errors.AsType[*OperationError](err)
	return ok
}

// Status maps err to its HTTP status and stable error code.
func Status(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case IsBadRequest(err):
		return http.StatusBadRequest, "bad_request"
	case IsForbidden(err):
		return http.StatusForbidden, "forbidden"
	case IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case IsConflict(err):
		return http.StatusConflict, "conflict"
	case IsError(err):
		return http.StatusInternalServerError, "error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

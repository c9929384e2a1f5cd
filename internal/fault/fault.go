// Package fault defines the error kinds returned by fleet, loyalty and
// reconciliation operations.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("invalid state")
	ErrNotAuthorized   = errors.New("not authorized")
	ErrExpired         = errors.New("expired")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
)

// TransitionError reports an operation that is not legal from the entity's
// current status.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	Op     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s is %s: cannot %s", e.Entity, e.ID, e.From, e.Op)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidState
}

// Transition builds a TransitionError.
func Transition(entity, id, from, op string) error {
	return &TransitionError{Entity: entity, ID: id, From: from, Op: op}
}

// Kind returns a stable code for err, or "INTERNAL" when it carries no kind.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrNotAuthorized):
		return "NOT_AUTHORIZED"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	}
	return "INTERNAL"
}

func HTTPStatus(err error) int {
	switch Kind(err) {
	case "INVALID_ARGUMENT":
		return http.StatusBadRequest
	case "INVALID_STATE", "CONFLICT":
		return http.StatusConflict
	case "NOT_AUTHORIZED":
		return http.StatusForbidden
	case "EXPIRED":
		return http.StatusGone
	case "NOT_FOUND":
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

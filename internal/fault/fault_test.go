package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindUnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("reserve: %w", Transition("bike", "B1", "on_trip", "reserve"))
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected transition error to be ErrInvalidState")
	}
	if got := Kind(err); got != "INVALID_STATE" {
		t.Errorf("Kind() = %q", got)
	}

	var te *TransitionError
	if !errors.As(err, &te) || te.From != "on_trip" {
		t.Errorf("expected TransitionError with From on_trip, got %v", te)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrInvalidArgument:               http.StatusBadRequest,
		ErrInvalidState:                  http.StatusConflict,
		ErrConflict:                      http.StatusConflict,
		ErrNotAuthorized:                 http.StatusForbidden,
		ErrExpired:                       http.StatusGone,
		fmt.Errorf("x: %w", ErrNotFound): http.StatusNotFound,
		errors.New("boom"):               http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := HTTPStatus(err); got != want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", err, got, want)
		}
	}
}

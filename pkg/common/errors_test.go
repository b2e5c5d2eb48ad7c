package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:        http.StatusBadRequest,
		KindNotFound:          http.StatusNotFound,
		KindConflict:          http.StatusConflict,
		KindInvalidTransition: http.StatusBadRequest,
		KindEmptyUpdate:       http.StatusBadRequest,
		KindUnavailable:       http.StatusServiceUnavailable,
		KindInternal:          http.StatusInternalServerError,
		KindUnauthorized:      http.StatusUnauthorized,
		KindForbidden:         http.StatusForbidden,
	}
	for kind, want := range cases {
		if got := kind.HTTPStatus(); got != want {
			t.Errorf("%s: expected %d, got %d", kind, want, got)
		}
	}
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("update match: %w", InvalidTransition("match is %s", "completed"))
	if KindOf(err) != KindInvalidTransition {
		t.Fatalf("expected invalid_transition, got %s", KindOf(err))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("plain errors should be internal")
	}
	if KindOf(nil) != "" {
		t.Fatalf("nil error should have no kind")
	}
	if !IsKind(fmt.Errorf("wrap: %w", ErrEmptyUpdate), KindEmptyUpdate) {
		t.Fatalf("ErrEmptyUpdate sentinel should map to empty_update")
	}
}

func TestAppErrorMessage(t *testing.T) {
	err := Validation(map[string]string{"opponent": "required", "date": "must be in the future"})
	want := "invalid input (date: must be in the future; opponent: required)"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}

	cause := errors.New("connection refused")
	u := Unavailable(cause)
	if !errors.Is(u, ErrUnavailable) || !errors.Is(u, cause) {
		t.Errorf("unavailable error should wrap both sentinel and cause")
	}
}

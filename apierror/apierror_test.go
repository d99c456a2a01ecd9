package apierror

import (
	"testing"

	"github.com/pkg/errors"
)

func TestNew(t *testing.T) {
	err := New(ErrBadRequest, "bad input", nil)
	if err.Code != ErrBadRequest {
		t.Errorf("expected code %s, got %s", ErrBadRequest, err.Code)
	}

	if err.Message != "bad input" {
		t.Errorf("expected message 'bad input', got %s", err.Message)
	}

	if err.OrigError != nil {
		t.Errorf("expected nil original error, got %s", err.OrigError)
	}

	orig := errors.New("boom")
	wrapped := errors.Wrap(orig, "wrapping boom")
	err = New(ErrInternalError, "something broke", wrapped)
	if err.OrigError != orig {
		t.Errorf("expected original error to be unwrapped to %s, got %s", orig, err.OrigError)
	}
}

func TestString(t *testing.T) {
	err := New(ErrNotFound, "thing not found", nil)
	if expected := "NotFound: thing not found"; err.String() != expected {
		t.Errorf("expected %s, got %s", expected, err.String())
	}

	err = New(ErrConflict, "thing exists", errors.New("boom"))
	if expected := "Conflict: thing exists (boom)"; err.Error() != expected {
		t.Errorf("expected %s, got %s", expected, err.Error())
	}
}

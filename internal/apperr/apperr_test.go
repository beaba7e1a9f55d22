package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestConstructorsSetTypeAndRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		wantType  Type
		retryable bool
	}{
		{"validation", Validation("bad input"), TypeValidation, false},
		{"not found", NotFound("missing"), TypeNotFound, false},
		{"conflict", Conflict("taken"), TypeConflict, false},
		{"invalid state", InvalidState("wrong phase"), TypeInvalidState, false},
		{"timeout", Timeout("too slow"), TypeTimeout, true},
		{"transient", TransientInfra(errors.New("io"), "disk"), TypeTransientInfra, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", tt.err.Type, tt.wantType)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", tt.err.Retryable, tt.retryable)
			}
		})
	}
}

func TestFromClassifiesUnknownErrors(t *testing.T) {
	e := From(errors.New("something broke"))
	if e.Type != TypeTransientInfra {
		t.Errorf("Type = %s, want %s for unclassified errors", e.Type, TypeTransientInfra)
	}

	orig := NotFound("gone")
	if got := From(fmt.Errorf("wrapped: %w", orig)); got.Type != TypeNotFound {
		t.Errorf("From(wrapped) Type = %s, want %s", got.Type, TypeNotFound)
	}
}

func TestIsType(t *testing.T) {
	err := fmt.Errorf("outer: %w", Conflict("busy"))
	if !IsType(err, TypeConflict) {
		t.Error("IsType should see through wrapping")
	}
	if IsType(err, TypeTimeout) {
		t.Error("IsType should not match a different type")
	}
	if IsType(nil, TypeConflict) {
		t.Error("IsType(nil) should be false")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("root")
	err := TransientInfra(cause, "infra hiccup")
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

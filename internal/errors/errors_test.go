package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New("test error")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Error() != "test error" {
		t.Errorf("expected 'test error', got '%s'", err.Error())
	}
}

func TestWrap(t *testing.T) {
	baseErr := errors.New("base error")

	t.Run("wrap non-nil error", func(t *testing.T) {
		wrapped := Wrap(baseErr, "wrapped")
		if wrapped == nil {
			t.Fatal("expected wrapped error, got nil")
		}
		expected := "wrapped: base error"
		if wrapped.Error() != expected {
			t.Errorf("expected '%s', got '%s'", expected, wrapped.Error())
		}
		if !errors.Is(wrapped, baseErr) {
			t.Error("expected wrapped error to wrap baseErr")
		}
	})

	t.Run("wrap nil error", func(t *testing.T) {
		if wrapped := Wrap(nil, "wrapped"); wrapped != nil {
			t.Errorf("expected nil, got %v", wrapped)
		}
	})
}

func TestWrapf(t *testing.T) {
	baseErr := errors.New("base error")

	wrapped := Wrapf(baseErr, "wrapped %d", 123)
	if wrapped.Error() != "wrapped 123: base error" {
		t.Errorf("unexpected message '%s'", wrapped.Error())
	}
	if !errors.Is(wrapped, baseErr) {
		t.Error("expected wrapped error to wrap baseErr")
	}
	if Wrapf(nil, "x %d", 1) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestIsAndAs(t *testing.T) {
	domainErr := Wrap(ErrNotFound, "cell not found")
	if !Is(domainErr, ErrNotFound) {
		t.Error("expected domain error to match ErrNotFound")
	}
	if Is(domainErr, ErrConflict) {
		t.Error("did not expect domain error to match ErrConflict")
	}

	var target interface{ Unwrap() error }
	if !As(domainErr, &target) {
		t.Error("expected As to find a wrapping error")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "unavailable", err: Wrap(ErrUnavailable, "custodian unavailable"), want: true},
		{name: "timeout", err: Wrap(ErrTimeout, "slow"), want: true},
		{name: "not found", err: Wrap(ErrNotFound, "missing"), want: false},
		{name: "integrity", err: ErrIntegrity, want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(nil) != nil {
		t.Error("expected nil")
	}

	deadline := FromContext(fmt.Errorf("query: %w", context.DeadlineExceeded))
	if !Is(deadline, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", deadline)
	}

	canceled := FromContext(context.Canceled)
	if !Is(canceled, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", canceled)
	}

	other := errors.New("boom")
	if FromContext(other) != other {
		t.Error("expected unrelated error to pass through")
	}
}

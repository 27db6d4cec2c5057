// Package errors tests for error code definitions and error handling.
package errors

import (
	"errors"
	"strings"
	"testing"
)

// TestErrorCodeValues verifies all error codes have non-empty values.
func TestErrorCodeValues(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
	}{
		{"internal", ErrInternal},
		{"invalid", ErrInvalid},
		{"not found", ErrNotFound},
		{"storage", ErrStorage},
		{"migration", ErrMigration},
		{"network", ErrNetwork},
		{"remote rejected", ErrRemoteRejected},
		{"sync failed", ErrSyncFailed},
		{"cache store", ErrCacheStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code == "" {
				t.Errorf("Error code %s is empty", tt.name)
			}
		})
	}
}

// TestNew verifies AppError creation without a wrapped error.
func TestNew(t *testing.T) {
	err := New(ErrRemoteRejected, "Failed to fetch URL: 404")

	if err.Code != ErrRemoteRejected {
		t.Errorf("Code = %v, want %v", err.Code, ErrRemoteRejected)
	}
	if err.Message != "Failed to fetch URL: 404" {
		t.Errorf("Message = %v, want 'Failed to fetch URL: 404'", err.Message)
	}
	if err.Unwrap() != nil {
		t.Errorf("Unwrap() = %v, want nil", err.Unwrap())
	}
}

// TestWrap verifies AppError wrapping preserves the cause.
func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(ErrNetwork, "request failed", cause)

	if err.Code != ErrNetwork {
		t.Errorf("Code = %v, want %v", err.Code, ErrNetwork)
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error must match the cause via errors.Is")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() = %v, want cause included", err.Error())
	}
}

// TestIs verifies code matching through wrapping.
func TestIs(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrStorage, "failed to persist item", cause)

	if !Is(err, ErrStorage) {
		t.Error("Is() = false, want true for matching code")
	}
	if Is(err, ErrNetwork) {
		t.Error("Is() = true, want false for non-matching code")
	}
	if Is(cause, ErrStorage) {
		t.Error("Is() = true, want false for a plain error")
	}
	if Is(nil, ErrStorage) {
		t.Error("Is() = true, want false for nil")
	}
}

// TestMessage verifies message extraction for UI surfaces.
func TestMessage(t *testing.T) {
	appErr := New(ErrRemoteRejected, "highlight text is required")
	if got := Message(appErr); got != "highlight text is required" {
		t.Errorf("Message() = %v, want the AppError message", got)
	}

	plain := errors.New("something broke")
	if got := Message(plain); got != "something broke" {
		t.Errorf("Message() = %v, want the error string", got)
	}
}

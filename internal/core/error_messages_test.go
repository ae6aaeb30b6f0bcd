package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "file too large",
			err:         fmt.Errorf("%w: 12582912 bytes exceeds 10485760", ErrFileTooLarge),
			wantCode:    "FILE002",
			wantMessage: "File exceeds the 10 MB limit",
		},
		{
			name:        "timeout wins over transport",
			err:         fmt.Errorf("validateFile: %w: %w", ErrTransportTimeout, context.DeadlineExceeded),
			wantCode:    "NET001",
			wantMessage: "The request timed out",
		},
		{
			name:        "malformed wins over transport",
			err:         fmt.Errorf("%w: %w", ErrTransport, ErrMalformedResponse),
			wantCode:    "NET003",
			wantMessage: "The server response could not be read",
		},
		{
			name:        "duplicate names",
			err:         fmt.Errorf("%w: Budget", ErrDuplicateDatasetNames),
			wantCode:    "IMP004",
			wantMessage: "Some datasets will be overwritten",
		},
		{
			name:        "wrapped in user error",
			err:         NewUserError(ErrReadOnlyMode),
			wantCode:    "FORM003",
			wantMessage: "The form is in review mode",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestMapError_CodesUnique(t *testing.T) {
	seen := make(map[string]error)
	for _, e := range errorCatalog {
		if prev, ok := seen[e.msg.Code]; ok {
			t.Errorf("code %s used by %v and %v", e.msg.Code, prev, e.target)
		}
		seen[e.msg.Code] = e.target
		if e.msg.Message == "" || e.msg.Action == "" {
			t.Errorf("code %s missing message or action", e.msg.Code)
		}
	}
}

func TestUserError(t *testing.T) {
	if NewUserError(nil) != nil {
		t.Fatal("NewUserError(nil) should be nil")
	}

	ue := NewUserError(fmt.Errorf("process: %w", ErrProcessingRejected))
	ue.Detail = "Sheet missing"

	if !errors.Is(ue, ErrProcessingRejected) {
		t.Error("UserError does not unwrap to its technical error")
	}
	if got := ue.Error(); got != "The file could not be processed: Sheet missing" {
		t.Errorf("Error() = %q", got)
	}
	if !IsUserFacing(ue) || IsUserFacing(errors.New("x")) {
		t.Error("IsUserFacing mismatch")
	}
}

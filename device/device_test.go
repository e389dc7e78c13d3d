package device

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Reason
	}{
		{"classified error", NewError(ReasonPermissionDenied, "denied"), ReasonPermissionDenied},
		{"wrapped classified error", fmt.Errorf("locating: %w", NewError(ReasonNotSupported, "")), ReasonNotSupported},
		{"deadline", context.DeadlineExceeded, ReasonTimeout},
		{"wrapped deadline", fmt.Errorf("locating: %w", context.DeadlineExceeded), ReasonTimeout},
		{"plain error", errors.New("boom"), ReasonUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyReason(tc.err); got != tc.want {
				t.Fatalf("ClassifyReason = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestErrorMessageFallsBackToReason(t *testing.T) {
	if got := NewError(ReasonTimeout, "").Error(); got != "timeout" {
		t.Fatalf("Error() = %q", got)
	}
	if got := NewError(ReasonTimeout, "tardó demasiado").Error(); got != "tardó demasiado" {
		t.Fatalf("Error() = %q", got)
	}
}

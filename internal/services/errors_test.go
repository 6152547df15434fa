package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"reelsmith/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "segmentation", "probe", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"segmentation", "probe", "failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestDetails(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "stitching", "validate input", "resolution must be positive", nil)
	details := services.Details(err)
	if details.Kind != "validation" {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Stage != "stitching" || details.Operation != "validate input" {
		t.Fatalf("unexpected details %+v", details)
	}
	if details.Message != "resolution must be positive" {
		t.Fatalf("unexpected message %q", details.Message)
	}

	plain := services.Details(errors.New("disk full"))
	if plain.Kind != "transient" || plain.Message != "disk full" {
		t.Fatalf("unexpected plain details %+v", plain)
	}
	if got := services.Details(nil); got != (services.ErrorDetails{}) {
		t.Fatalf("expected zero details for nil, got %+v", got)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"validation", services.Wrap(services.ErrValidation, "s", "op", "bad", nil), false},
		{"configuration", services.Wrap(services.ErrConfiguration, "s", "op", "bad", nil), false},
		{"external", services.Wrap(services.ErrExternalTool, "s", "op", "bad", nil), true},
		{"plain", errors.New("io"), true},
		{"cancelled", services.Wrap(services.ErrCancelled, "s", "op", "stop", context.Canceled), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable = %v, want %v", got, tc.want)
			}
		})
	}
}

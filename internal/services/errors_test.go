package services_test

import (
	"errors"
	"fmt"
	"testing"

	"vidcast/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection reset")
	err := services.Wrap(services.ErrTransient, "platform", "chunk upload", "part 3", base)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause to survive, got %v", err)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "platform", "merge", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected nil marker to default to transient, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", services.Wrap(services.ErrValidation, "platform", "submit", "bad title", nil), false},
		{"configuration", services.ErrConfiguration, false},
		{"credential", fmt.Errorf("check: %w", services.ErrCredentialInvalid), false},
		{"not_found", services.ErrNotFound, false},
		{"transient", services.Wrap(services.ErrTransient, "platform", "negotiate", "", errors.New("503")), true},
		{"untagged", errors.New("boom"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsSchedulingSignal(t *testing.T) {
	if !services.IsSchedulingSignal(services.ErrResourceLocked) {
		t.Fatal("resource locked should be a scheduling signal")
	}
	if !services.IsSchedulingSignal(fmt.Errorf("dispatch: %w", services.ErrPoolExhausted)) {
		t.Fatal("pool exhausted should be a scheduling signal")
	}
	if services.IsSchedulingSignal(services.ErrValidation) {
		t.Fatal("validation error is not a scheduling signal")
	}
}

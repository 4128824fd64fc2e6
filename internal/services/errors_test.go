package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"vidqueue/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "encoding", "mux", "failed", base)
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
	for _, fragment := range []string{"encoding", "mux", "failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestDetailsSurvivesFurtherWrapping(t *testing.T) {
	inner := services.Wrap(services.ErrValidation, "workflow", "route", "unknown codec", nil)
	outer := fmt.Errorf("add task: %w", inner)

	details := services.Details(outer)
	if details.Kind != services.ErrValidation.Error() {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Component != "workflow" || details.Operation != "route" {
		t.Fatalf("unexpected details %+v", details)
	}
	if services.IsRetryable(outer) {
		t.Fatal("validation errors must not be retryable")
	}
}

func TestDetailsForPlainErrors(t *testing.T) {
	details := services.Details(fmt.Errorf("wrapped: %w", services.ErrTimeout))
	if details.Kind != services.ErrTimeout.Error() {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if !services.IsRetryable(services.ErrTimeout) {
		t.Fatal("expected timeout to be retryable")
	}
	if got := services.Details(nil); got.Kind != "" {
		t.Fatalf("expected empty details for nil, got %+v", got)
	}
}

package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

var markers = []error{
	ErrExternalTool,
	ErrValidation,
	ErrConfiguration,
	ErrNotFound,
	ErrTimeout,
	ErrTransient,
}

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	detail := &detailError{
		marker:    marker,
		component: strings.TrimSpace(component),
		operation: strings.TrimSpace(operation),
		message:   strings.TrimSpace(message),
		cause:     err,
	}
	return detail
}

// ErrorDetails is the structured view of a wrapped error used for logging.
type ErrorDetails struct {
	Kind      string
	Component string
	Operation string
	Message   string
	Cause     error
}

// Details extracts structured information from an error produced by Wrap.
// Errors that were not wrapped report the transient kind and their own text.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	var detail *detailError
	if errors.As(err, &detail) {
		return ErrorDetails{
			Kind:      detail.marker.Error(),
			Component: detail.component,
			Operation: detail.operation,
			Message:   detail.message,
			Cause:     detail.cause,
		}
	}
	kind := ErrTransient.Error()
	for _, marker := range markers {
		if errors.Is(err, marker) {
			kind = marker.Error()
			break
		}
	}
	return ErrorDetails{Kind: kind, Message: err.Error()}
}

// IsRetryable reports whether the failure is worth resubmitting unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

type detailError struct {
	marker    error
	component string
	operation string
	message   string
	cause     error
}

func (e *detailError) Error() string {
	detail := buildDetail(e.component, e.operation, e.message)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.marker, detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.marker, detail)
}

func (e *detailError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.marker, e.cause}
	}
	return []error{e.marker}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component != "" {
		parts = append(parts, component)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

package services

import (
	"errors"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrCancelled     = errors.New("cancelled")
)

// ServiceError carries the stage/operation context attached by Wrap while
// keeping both the marker and the underlying cause reachable via errors.Is.
type ServiceError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Err       error
}

func (e *ServiceError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	marker := "service error"
	if e.Marker != nil {
		marker = e.Marker.Error()
	}
	if e.Err != nil {
		return marker + ": " + detail + ": " + e.Err.Error()
	}
	return marker + ": " + detail
}

func (e *ServiceError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Marker != nil {
		errs = append(errs, e.Marker)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Wrap builds an error that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &ServiceError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Err:       err,
	}
}

// ErrorDetails is the flattened, log-friendly view of a wrapped error.
type ErrorDetails struct {
	Kind      string
	Stage     string
	Operation string
	Message   string
}

// Details extracts the context attached by Wrap. Errors that were not built by
// Wrap still report their classification kind and message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return ErrorDetails{
			Kind:      Kind(err),
			Stage:     svcErr.Stage,
			Operation: svcErr.Operation,
			Message:   svcErr.Message,
		}
	}
	return ErrorDetails{Kind: Kind(err), Message: err.Error()}
}

// Kind classifies an error by the marker it carries.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "transient"
	}
}

// Retryable reports whether a caller-side retry could plausibly succeed.
// Contract violations and configuration problems never are.
func Retryable(err error) bool {
	switch Kind(err) {
	case "validation", "configuration", "not_found", "cancelled", "":
		return false
	default:
		return true
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

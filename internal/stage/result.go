package stage

import (
	"context"
	"errors"
	"maps"
	"strings"

	"reelsmith/internal/services"
)

// Kind classifies a module result.
type Kind int

const (
	KindSuccess Kind = iota
	KindPartial
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindPartial:
		return "partial"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// SegmentRef locates the segment a diagnostic refers to.
type SegmentRef struct {
	ID    string `json:"id,omitempty"`
	Index int    `json:"index"`
}

// Diagnostics carries structured context for a failure. Callers log or
// display it; nothing branches on its contents.
type Diagnostics struct {
	Module  string            `json:"module,omitempty"`
	Version string            `json:"version,omitempty"`
	Field   string            `json:"field,omitempty"`
	Segment *SegmentRef       `json:"segment,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// ForModule returns diagnostics pre-filled with a module's identity.
func ForModule(info Info) Diagnostics {
	return Diagnostics{Module: info.ID, Version: info.Version}
}

// WithField returns a copy naming the offending input field.
func (d Diagnostics) WithField(field string) Diagnostics {
	d.Field = field
	return d
}

// WithSegment returns a copy pointing at a segment.
func (d Diagnostics) WithSegment(id string, index int) Diagnostics {
	d.Segment = &SegmentRef{ID: id, Index: index}
	return d
}

// WithExtra returns a copy with an additional opaque key.
func (d Diagnostics) WithExtra(key, value string) Diagnostics {
	extra := make(map[string]string, len(d.Extra)+1)
	maps.Copy(extra, d.Extra)
	extra[key] = value
	d.Extra = extra
	return d
}

// Result is the tagged outcome of Module.Process. Success and Partial carry
// a usable value; Partial adds warnings. Failure carries a reason, a cause,
// and diagnostics.
type Result[T any] struct {
	kind        Kind
	value       T
	warnings    []string
	reason      string
	err         error
	diagnostics Diagnostics
}

// Success wraps a fully successful value.
func Success[T any](value T) Result[T] {
	return Result[T]{kind: KindSuccess, value: value}
}

// Partial wraps a usable value produced with degraded quality. With no
// warnings it is equivalent to Success.
func Partial[T any](value T, warnings ...string) Result[T] {
	kept := make([]string, 0, len(warnings))
	for _, w := range warnings {
		if w = strings.TrimSpace(w); w != "" {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return Success(value)
	}
	return Result[T]{kind: KindPartial, value: value, warnings: kept}
}

// Failure builds an unusable result. A nil cause is replaced with a
// validation error built from reason.
func Failure[T any](reason string, cause error, diagnostics Diagnostics) Result[T] {
	if cause == nil {
		cause = services.Wrap(services.ErrValidation, diagnostics.Module, "process", reason, nil)
	}
	return Result[T]{kind: KindFailure, reason: reason, err: cause, diagnostics: diagnostics}
}

// Kind reports the result classification.
func (r Result[T]) Kind() Kind { return r.kind }

// Usable reports whether a value is available (Success or Partial).
func (r Result[T]) Usable() bool { return r.kind != KindFailure }

// Value returns the carried value and whether it is usable.
func (r Result[T]) Value() (T, bool) {
	if r.kind == KindFailure {
		var zero T
		return zero, false
	}
	return r.value, true
}

// Warnings returns a copy of the partial-result warnings.
func (r Result[T]) Warnings() []string {
	return append([]string(nil), r.warnings...)
}

// Reason is the human-readable failure reason.
func (r Result[T]) Reason() string { return r.reason }

// Err is the failure cause; nil for usable results.
func (r Result[T]) Err() error { return r.err }

// Diagnostics returns the failure diagnostics.
func (r Result[T]) Diagnostics() Diagnostics { return r.diagnostics }

// CheckInput returns a Failure result when in is invalid. ok is true when
// processing may continue.
func CheckInput[Out any](info Info, in Input) (Result[Out], bool) {
	problems := in.ValidationErrors()
	if len(problems) == 0 {
		return Result[Out]{}, true
	}
	reason := "invalid input: " + strings.Join(problems, "; ")
	diag := ForModule(info).WithField(fieldFromProblem(problems[0]))
	cause := services.Wrap(services.ErrValidation, info.ID, "validate input", reason, nil)
	return Failure[Out](reason, cause, diag), false
}

// Cancelled returns a Failure whose cause is the context error.
func Cancelled[Out any](info Info, err error) Result[Out] {
	marker := services.ErrCancelled
	if errors.Is(err, context.DeadlineExceeded) {
		marker = services.ErrTimeout
	}
	reason := "cancelled: " + err.Error()
	return Failure[Out](reason, services.Wrap(marker, info.ID, "process", reason, err), ForModule(info))
}

// fieldFromProblem extracts the leading field name from messages of the
// form "field: detail" or "field must ...".
func fieldFromProblem(problem string) string {
	if idx := strings.Index(problem, ":"); idx > 0 {
		return strings.TrimSpace(problem[:idx])
	}
	if fields := strings.Fields(problem); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

package stage

import (
	"context"
	"strings"
)

// Info identifies a module for log and provenance correlation. It never
// drives control flow.
type Info struct {
	ID      string
	Version string
}

func (i Info) String() string {
	if i.Version == "" {
		return i.ID
	}
	return i.ID + "@" + i.Version
}

// Input is implemented by every stage input type. An input is valid when it
// reports no problems.
type Input interface {
	ValidationErrors() []string
}

// IsValid reports whether in passes its own validity check.
func IsValid(in Input) bool {
	return len(in.ValidationErrors()) == 0
}

// Module is the contract each pipeline stage satisfies. Process blocks until
// the stage finishes or ctx is done; callers wanting concurrency run it on a
// goroutine. Implementations must return a Failure rather than panic when in
// is invalid.
type Module[In Input, Out any] interface {
	Info() Info
	Process(ctx context.Context, in In) Result[Out]
	Validate() Validation
}

// Validation is the outcome of a module's configuration self-check.
type Validation struct {
	Module   string
	Problems []string
}

// Valid reports whether the self-check found no problems.
func (v Validation) Valid() bool {
	return len(v.Problems) == 0
}

func (v Validation) String() string {
	if v.Valid() {
		return v.Module + ": ok"
	}
	return v.Module + ": " + strings.Join(v.Problems, "; ")
}

// Valid constructs a passing Validation.
func Valid(module string) Validation {
	return Validation{Module: module}
}

// Invalid constructs a failing Validation; empty problems are dropped.
func Invalid(module string, problems ...string) Validation {
	v := Validation{Module: module}
	for _, p := range problems {
		if p = strings.TrimSpace(p); p != "" {
			v.Problems = append(v.Problems, p)
		}
	}
	return v
}

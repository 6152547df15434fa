package stage

import (
	"context"
	"errors"
	"testing"

	"reelsmith/internal/services"
)

type fakeInput struct{ problems []string }

func (f fakeInput) ValidationErrors() []string { return f.problems }

func TestPartialWithoutWarningsIsSuccess(t *testing.T) {
	res := Partial(3, "", "  ")
	if res.Kind() != KindSuccess {
		t.Fatalf("expected success, got %s", res.Kind())
	}
	res = Partial(3, "pair 1 unmeasured")
	if res.Kind() != KindPartial || !res.Usable() {
		t.Fatalf("expected usable partial, got %s", res.Kind())
	}
	if v, ok := res.Value(); !ok || v != 3 {
		t.Fatalf("unexpected value %v %v", v, ok)
	}
	if len(res.Warnings()) != 1 {
		t.Fatalf("unexpected warnings %v", res.Warnings())
	}
}

func TestFailureHasNoValue(t *testing.T) {
	info := Info{ID: "segmentation", Version: "1"}
	res := Failure[int]("boom", nil, ForModule(info).WithSegment("seg-a", 2).WithExtra("k", "v"))
	if res.Usable() {
		t.Fatal("failure must not be usable")
	}
	if _, ok := res.Value(); ok {
		t.Fatal("failure must not expose a value")
	}
	if !errors.Is(res.Err(), services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", res.Err())
	}
	diag := res.Diagnostics()
	if diag.Module != "segmentation" || diag.Segment == nil || diag.Segment.Index != 2 || diag.Extra["k"] != "v" {
		t.Fatalf("unexpected diagnostics %+v", diag)
	}
}

func TestWithExtraDoesNotAlias(t *testing.T) {
	base := Diagnostics{}.WithExtra("a", "1")
	derived := base.WithExtra("b", "2")
	if _, ok := base.Extra["b"]; ok {
		t.Fatal("WithExtra mutated the receiver")
	}
	if derived.Extra["a"] != "1" {
		t.Fatal("WithExtra dropped existing keys")
	}
}

func TestCheckInput(t *testing.T) {
	info := Info{ID: "continuity"}
	if _, ok := CheckInput[string](info, fakeInput{}); !ok {
		t.Fatal("valid input rejected")
	}
	res, ok := CheckInput[string](info, fakeInput{problems: []string{"segments: at least one segment is required"}})
	if ok {
		t.Fatal("invalid input accepted")
	}
	if res.Kind() != KindFailure {
		t.Fatalf("expected failure, got %s", res.Kind())
	}
	if res.Diagnostics().Field != "segments" {
		t.Fatalf("unexpected field %q", res.Diagnostics().Field)
	}
	if services.Retryable(res.Err()) {
		t.Fatal("contract violations must not be retryable")
	}
}

func TestCancelledWrapsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Cancelled[int](Info{ID: "stitching"}, ctx.Err())
	if !errors.Is(res.Err(), context.Canceled) || !errors.Is(res.Err(), services.ErrCancelled) {
		t.Fatalf("unexpected cause %v", res.Err())
	}
}

func TestValidation(t *testing.T) {
	if !Valid("x").Valid() {
		t.Fatal("Valid should be valid")
	}
	v := Invalid("x", "", "duration must be positive")
	if v.Valid() || len(v.Problems) != 1 {
		t.Fatalf("unexpected validation %+v", v)
	}
	if v.String() != "x: duration must be positive" {
		t.Fatalf("unexpected string %q", v.String())
	}
}

package continuity

import (
	"context"
	"errors"
	"testing"

	"reelsmith/internal/media"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
)

func tableMeter(features map[string]media.Features) Meter {
	return MeterFunc(func(_ context.Context, seg media.Segment) (media.Features, error) {
		f, ok := features[seg.ID]
		if !ok {
			return media.Features{}, errors.New("no features")
		}
		return f, nil
	})
}

func twoSegments() []media.Segment {
	return []media.Segment{
		{ID: "a", Start: 0, End: 4},
		{ID: "b", Start: 4, End: 8},
	}
}

func TestColorViolationSelectsDissolve(t *testing.T) {
	mod := New(tableMeter(map[string]media.Features{
		"a": {Color: 0.0},
		"b": {Color: 0.9},
	}))
	res := mod.Process(context.Background(), Input{
		Segments: twoSegments(),
		Rules:    media.MustRuleSet(media.Rule{Type: media.RuleColor, Threshold: 0.5}),
	})
	out, ok := res.Value()
	if !ok || res.Kind() != stage.KindSuccess {
		t.Fatalf("expected success, got %s %v", res.Kind(), res.Warnings())
	}
	if len(out.Transitions) != 1 {
		t.Fatalf("expected one transition, got %d", len(out.Transitions))
	}
	tr := out.Transitions[0]
	if tr.Type != media.TransitionDissolve || tr.Duration != DefaultTransitionDuration {
		t.Fatalf("unexpected transition %+v", tr)
	}
	if tr.From != "a" || tr.To != "b" {
		t.Fatalf("unexpected endpoints %+v", tr)
	}
	for _, seg := range out.Segments {
		if !seg.HasTag("smooth:color") {
			t.Fatalf("segment %s missing smoothing tag: %v", seg.ID, seg.Tags)
		}
	}
	if out.Metadata.Violations[media.RuleColor] != 1 || out.Metadata.PairsEvaluated != 1 {
		t.Fatalf("unexpected metadata %+v", out.Metadata)
	}
	if problems := media.ValidateTransitions(out.Transitions, out.Segments); len(problems) != 0 {
		t.Fatalf("transitions invalid: %v", problems)
	}
}

func TestNoViolationUsesCut(t *testing.T) {
	mod := New(tableMeter(map[string]media.Features{
		"a": {Color: 0.2, Motion: 0.1},
		"b": {Color: 0.3, Motion: 0.2},
	}))
	out, ok := mod.Process(context.Background(), Input{
		Segments: twoSegments(),
		Rules:    media.MustRuleSet(media.Rule{Type: media.RuleColor, Threshold: 0.5}, media.Rule{Type: media.RuleMotion, Threshold: 0.5}),
	}).Value()
	if !ok {
		t.Fatal("expected usable result")
	}
	if out.Transitions[0].Type != media.TransitionCut || out.Transitions[0].Duration != 0 {
		t.Fatalf("unexpected transition %+v", out.Transitions[0])
	}
	if len(out.Segments[0].Tags) != 0 {
		t.Fatalf("unexpected tags %v", out.Segments[0].Tags)
	}
}

func TestMostExceededRuleWins(t *testing.T) {
	mod := New(tableMeter(map[string]media.Features{
		"a": {Color: 0.0, Motion: 0.0},
		"b": {Color: 0.6, Motion: 0.9},
	}))
	out, _ := mod.Process(context.Background(), Input{
		Segments: twoSegments(),
		Rules:    media.MustRuleSet(media.Rule{Type: media.RuleColor, Threshold: 0.5}, media.Rule{Type: media.RuleMotion, Threshold: 0.5}),
	}).Value()
	if out.Transitions[0].Type != media.TransitionSlide {
		t.Fatalf("expected motion (slide) to win, got %s", out.Transitions[0].Type)
	}
	if !out.Segments[0].HasTag("smooth:color") || !out.Segments[0].HasTag("smooth:motion") {
		t.Fatalf("expected both rules tagged, got %v", out.Segments[0].Tags)
	}
}

func TestTransitionDurationClampedToHalfShorterSegment(t *testing.T) {
	mod := New(tableMeter(map[string]media.Features{
		"a": {Lighting: 0},
		"b": {Lighting: 1},
	}), WithTransitionDuration(2), WithMaxCorrection(1))
	segments := []media.Segment{{ID: "a", Start: 0, End: 4}, {ID: "b", Start: 4, End: 5}}
	out, _ := mod.Process(context.Background(), Input{
		Segments: segments,
		Rules:    media.MustRuleSet(media.Rule{Type: media.RuleLighting, Threshold: 0.1}),
	}).Value()
	if out.Transitions[0].Duration != 0.5 {
		t.Fatalf("expected clamp to 0.5, got %v", out.Transitions[0].Duration)
	}
}

func TestExcessBeyondMaxCorrectionIsPartial(t *testing.T) {
	mod := New(tableMeter(map[string]media.Features{
		"a": {Composition: 0},
		"b": {Composition: 1},
	}))
	res := mod.Process(context.Background(), Input{
		Segments: twoSegments(),
		Rules:    media.MustRuleSet(media.Rule{Type: media.RuleComposition, Threshold: 0.1}),
	})
	if res.Kind() != stage.KindPartial {
		t.Fatalf("expected partial, got %s", res.Kind())
	}
	out, _ := res.Value()
	if out.Transitions[0].Type != media.TransitionFade {
		t.Fatalf("expected fade for composition, got %s", out.Transitions[0].Type)
	}
}

func TestUnmeasuredPairFallsBackToCut(t *testing.T) {
	mod := New(tableMeter(map[string]media.Features{"a": {}}))
	res := mod.Process(context.Background(), Input{
		Segments: twoSegments(),
		Rules:    media.MustRuleSet(media.Rule{Type: media.RuleColor, Threshold: 0}),
	})
	if res.Kind() != stage.KindPartial {
		t.Fatalf("expected partial, got %s", res.Kind())
	}
	out, _ := res.Value()
	if out.Transitions[0].Type != media.TransitionCut || out.Metadata.PairsUnmeasured != 1 {
		t.Fatalf("unexpected output %+v", out)
	}
	if len(out.Segments) != 2 {
		t.Fatalf("segment count changed: %d", len(out.Segments))
	}
}

func TestSingleSegmentHasNoTransitions(t *testing.T) {
	mod := New(tableMeter(map[string]media.Features{"a": {}}))
	out, ok := mod.Process(context.Background(), Input{
		Segments: []media.Segment{{ID: "a", Start: 0, End: 1}},
	}).Value()
	if !ok || len(out.Segments) != 1 || len(out.Transitions) != 0 {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestInputIsNotMutated(t *testing.T) {
	segments := twoSegments()
	mod := New(tableMeter(map[string]media.Features{"a": {Color: 0}, "b": {Color: 1}}))
	mod.Process(context.Background(), Input{
		Segments: segments,
		Rules:    media.MustRuleSet(media.Rule{Type: media.RuleColor, Threshold: 0.1}),
	})
	if len(segments[0].Tags) != 0 || len(segments[1].Tags) != 0 {
		t.Fatalf("input segments mutated: %+v", segments)
	}
}

func TestEmptyInputFails(t *testing.T) {
	res := New(tableMeter(nil)).Process(context.Background(), Input{})
	if res.Kind() != stage.KindFailure || !errors.Is(res.Err(), services.ErrValidation) {
		t.Fatalf("expected validation failure, got %s %v", res.Kind(), res.Err())
	}
}

func TestValidateRejectsCutPolicy(t *testing.T) {
	mod := New(tableMeter(nil), WithPolicy(map[media.RuleType]media.TransitionType{
		media.RuleColor: media.TransitionCut,
	}))
	if mod.Validate().Valid() {
		t.Fatal("expected cut policy to be rejected")
	}
	res := mod.Process(context.Background(), Input{Segments: twoSegments()})
	if !errors.Is(res.Err(), services.ErrConfiguration) {
		t.Fatalf("expected configuration failure, got %v", res.Err())
	}
}

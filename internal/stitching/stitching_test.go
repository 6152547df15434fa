package stitching

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"reelsmith/internal/media"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
)

type recordingSink struct {
	ref       string
	err       error
	published []media.Timeline
}

func (s *recordingSink) Publish(_ context.Context, tl media.Timeline) (string, error) {
	s.published = append(s.published, tl)
	return s.ref, s.err
}

func pair() []media.Segment {
	return []media.Segment{{ID: "a", Start: 0, End: 4}, {ID: "b", Start: 4, End: 8}}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCutJoinSumsSpans(t *testing.T) {
	mod := New(WithIDGenerator(func() string { return "tl-1" }))
	res := mod.Process(context.Background(), Input{
		Segments:    pair(),
		Transitions: []media.Transition{{From: "a", To: "b", Type: media.TransitionCut}},
		Settings:    media.DefaultOutputSettings(),
	})
	out, ok := res.Value()
	if !ok || res.Kind() != stage.KindSuccess {
		t.Fatalf("expected success, got %s: %s %v", res.Kind(), res.Reason(), res.Warnings())
	}
	if !approx(out.Duration, 8) {
		t.Fatalf("expected 8s, got %v", out.Duration)
	}
	if out.Reference != "timeline://tl-1.mp4" {
		t.Fatalf("unexpected reference %q", out.Reference)
	}
	if out.Resolution != (media.Resolution{Width: 1920, Height: 1080}) {
		t.Fatalf("unexpected resolution %v", out.Resolution)
	}
}

func TestBlendedJoinOverlaps(t *testing.T) {
	out, ok := New().Process(context.Background(), Input{
		Segments:    pair(),
		Transitions: []media.Transition{{From: "a", To: "b", Type: media.TransitionDissolve, Duration: 0.5}},
		Settings:    media.DefaultOutputSettings(),
	}).Value()
	if !ok || !approx(out.Duration, 7.5) {
		t.Fatalf("expected 7.5s, got %v", out.Duration)
	}
}

func TestMissingTransitionDefaultsToCutWithWarning(t *testing.T) {
	res := New().Process(context.Background(), Input{
		Segments: pair(),
		Settings: media.DefaultOutputSettings(),
	})
	if res.Kind() != stage.KindPartial {
		t.Fatalf("expected partial, got %s", res.Kind())
	}
	out, _ := res.Value()
	if len(out.Timeline.Joins) != 1 || out.Timeline.Joins[0].Type != media.TransitionCut {
		t.Fatalf("unexpected joins %+v", out.Timeline.Joins)
	}
	if !approx(out.Duration, 8) {
		t.Fatalf("expected 8s, got %v", out.Duration)
	}
}

func TestOverlongTransitionIsClamped(t *testing.T) {
	segments := []media.Segment{{ID: "a", Start: 0, End: 1}, {ID: "b", Start: 1, End: 5}}
	res := New().Process(context.Background(), Input{
		Segments:    segments,
		Transitions: []media.Transition{{From: "a", To: "b", Type: media.TransitionFade, Duration: 3}},
		Settings:    media.DefaultOutputSettings(),
	})
	if res.Kind() != stage.KindPartial {
		t.Fatalf("expected partial, got %s", res.Kind())
	}
	out, _ := res.Value()
	if !approx(out.Duration, 4) {
		t.Fatalf("expected 4s after clamping, got %v", out.Duration)
	}
}

func TestInvalidSettingsFail(t *testing.T) {
	settings := media.DefaultOutputSettings()
	settings.Resolution.Width = 0
	res := New().Process(context.Background(), Input{Segments: pair(), Settings: settings})
	if res.Kind() != stage.KindFailure || !errors.Is(res.Err(), services.ErrValidation) {
		t.Fatalf("expected validation failure, got %s %v", res.Kind(), res.Err())
	}
	if res.Diagnostics().Field != "settings" {
		t.Fatalf("unexpected field %q", res.Diagnostics().Field)
	}
}

func TestInvalidTransitionsFail(t *testing.T) {
	cases := map[string]media.Transition{
		"unknown endpoint":     {From: "a", To: "zzz", Type: media.TransitionCut},
		"dissolve no duration": {From: "a", To: "b", Type: media.TransitionDissolve},
	}
	for name, tr := range cases {
		t.Run(name, func(t *testing.T) {
			res := New().Process(context.Background(), Input{
				Segments:    pair(),
				Transitions: []media.Transition{tr},
				Settings:    media.DefaultOutputSettings(),
			})
			if res.Kind() != stage.KindFailure {
				t.Fatalf("expected failure, got %s", res.Kind())
			}
		})
	}
}

func TestSinkReferenceIsReturned(t *testing.T) {
	sink := &recordingSink{ref: "/out/manifest.json"}
	out, ok := New(WithSink(sink)).Process(context.Background(), Input{
		Segments: pair()[:1],
		Settings: media.DefaultOutputSettings(),
	}).Value()
	if !ok || out.Reference != "/out/manifest.json" {
		t.Fatalf("unexpected output %+v", out)
	}
	if len(sink.published) != 1 || len(sink.published[0].Segments) != 1 {
		t.Fatalf("sink not called with timeline: %+v", sink.published)
	}
}

func TestSinkErrorsFail(t *testing.T) {
	for name, sink := range map[string]*recordingSink{
		"error": {err: errors.New("disk full")},
		"empty": {ref: "  "},
	} {
		t.Run(name, func(t *testing.T) {
			res := New(WithSink(sink)).Process(context.Background(), Input{
				Segments: pair(),
				Settings: media.DefaultOutputSettings(),
			})
			if res.Kind() != stage.KindFailure {
				t.Fatalf("expected failure, got %s", res.Kind())
			}
			if strings.TrimSpace(res.Reason()) == "" {
				t.Fatal("expected failure reason")
			}
		})
	}
}

package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"reelsmith/internal/continuity"
	"reelsmith/internal/media"
	"reelsmith/internal/segmentation"
	"reelsmith/internal/services"
	"reelsmith/internal/stitching"
	"reelsmith/internal/testsupport"
)

func fixedProber(d float64) segmentation.Prober {
	return segmentation.ProberFunc(func(context.Context, string) (float64, error) { return d, nil })
}

// colorByStart gives each segment a color feature keyed by its start time.
func colorByStart(colors map[float64]float64) continuity.Meter {
	return continuity.MeterFunc(func(_ context.Context, seg media.Segment) (media.Features, error) {
		c, ok := colors[seg.Start]
		if !ok {
			c = 0.5
		}
		return media.Features{Color: c, Lighting: 0.5, Motion: 0.5, Composition: 0.5}, nil
	})
}

func newEngine(prober segmentation.Prober, meter continuity.Meter, opts ...Option) *Engine {
	defaults := WithDefaults(Defaults{
		SegmentDuration: 4,
		Rules:           media.MustRuleSet(media.Rule{Type: media.RuleColor, Threshold: 0.5}),
		Settings:        media.DefaultOutputSettings(),
	})
	return New(segmentation.New(prober), continuity.New(meter), stitching.New(),
		append([]Option{defaults}, opts...)...)
}

func TestRunProducesArtifact(t *testing.T) {
	engine := newEngine(fixedProber(10), colorByStart(map[float64]float64{0: 0.1, 4: 1.0, 8: 1.0}),
		WithRunIDGenerator(func() string { return "run-1" }))
	out := engine.Run(context.Background(), "a prompt", RunConfig{})
	if !out.Succeeded() {
		t.Fatalf("expected success, failed at %s: %s (%v)", out.FailedStage, out.Reason, out.Err)
	}
	if out.RunID != "run-1" {
		t.Fatalf("unexpected run id %q", out.RunID)
	}
	if len(out.Segments) != 3 || len(out.Transitions) != 2 {
		t.Fatalf("unexpected sequence: %d segments, %d transitions", len(out.Segments), len(out.Transitions))
	}
	if out.Transitions[0].Type != media.TransitionDissolve || out.Transitions[1].Type != media.TransitionCut {
		t.Fatalf("unexpected transitions %+v", out.Transitions)
	}
	// 4 + 4 + 2 seconds with one 0.5s dissolve.
	if math.Abs(out.Artifact.Duration-9.5) > 1e-9 {
		t.Fatalf("unexpected duration %v", out.Artifact.Duration)
	}
	if !strings.HasPrefix(out.Artifact.Reference, stitching.ReferenceScheme) {
		t.Fatalf("unexpected reference %q", out.Artifact.Reference)
	}
	if out.Artifact.Resolution != (media.Resolution{Width: 1920, Height: 1080}) {
		t.Fatalf("unexpected resolution %v", out.Artifact.Resolution)
	}
}

func TestRunConfigOverridesDefaults(t *testing.T) {
	engine := newEngine(fixedProber(10), colorByStart(nil))
	settings := media.DefaultOutputSettings()
	settings.Resolution = media.Resolution{Width: 1280, Height: 720}
	out := engine.Run(context.Background(), "p", RunConfig{SegmentDuration: 5, Settings: settings})
	if !out.Succeeded() {
		t.Fatalf("expected success: %s", out.Reason)
	}
	if len(out.Segments) != 2 || out.Artifact.Resolution.Width != 1280 {
		t.Fatalf("overrides not applied: %d segments, %+v", len(out.Segments), out.Artifact.Resolution)
	}
}

func TestRunAccumulatesWarnings(t *testing.T) {
	meter := continuity.MeterFunc(func(_ context.Context, seg media.Segment) (media.Features, error) {
		if seg.Start == 4 {
			return media.Features{}, errors.New("meter offline")
		}
		return media.Features{}, nil
	})
	out := newEngine(fixedProber(8), meter).Run(context.Background(), "p", RunConfig{})
	if !out.Succeeded() {
		t.Fatalf("partial results must not stop the run: %s", out.Reason)
	}
	if len(out.Warnings) == 0 || out.Warnings[0].Stage != continuity.ID {
		t.Fatalf("expected continuity warning, got %+v", out.Warnings)
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	prober := segmentation.ProberFunc(func(context.Context, string) (float64, error) {
		return 0, errors.New("probe crashed")
	})
	out := newEngine(prober, colorByStart(nil)).Run(context.Background(), "p", RunConfig{})
	if out.Succeeded() {
		t.Fatal("expected failure")
	}
	if out.FailedStage != segmentation.ID || !errors.Is(out.Err, services.ErrExternalTool) {
		t.Fatalf("unexpected failure %s: %v", out.FailedStage, out.Err)
	}
	if out.Diagnostics.Module != segmentation.ID || out.Diagnostics.Field != "source_reference" {
		t.Fatalf("diagnostics not carried verbatim: %+v", out.Diagnostics)
	}
}

func TestRunInvalidSettingsFailInStitching(t *testing.T) {
	settings := media.DefaultOutputSettings()
	settings.Resolution.Height = -1
	out := newEngine(fixedProber(8), colorByStart(nil)).Run(context.Background(), "p", RunConfig{Settings: settings})
	if out.FailedStage != stitching.ID || !errors.Is(out.Err, services.ErrValidation) {
		t.Fatalf("expected stitching validation failure, got %s: %v", out.FailedStage, out.Err)
	}
	if len(out.Segments) != 2 {
		t.Fatal("expected the adjusted sequence to be reported on failure")
	}
}

func TestRunHaltsOnCancellationBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prober := segmentation.ProberFunc(func(context.Context, string) (float64, error) {
		cancel()
		return 8, nil
	})
	out := newEngine(prober, colorByStart(nil)).Run(ctx, "p", RunConfig{})
	if out.Succeeded() {
		t.Fatal("expected cancelled run to fail")
	}
	if out.FailedStage != continuity.ID {
		t.Fatalf("expected halt before continuity, got %q", out.FailedStage)
	}
	if !errors.Is(out.Err, context.Canceled) || !errors.Is(out.Err, services.ErrCancelled) {
		t.Fatalf("expected context error as cause, got %v", out.Err)
	}
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	engine := newEngine(fixedProber(12), colorByStart(map[float64]float64{0: 0, 4: 1}))
	var wg sync.WaitGroup
	results := make([]Outcome, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = engine.Run(context.Background(), "p", RunConfig{})
		}(i)
	}
	wg.Wait()
	seen := make(map[string]bool)
	for _, out := range results {
		if !out.Succeeded() || out.Artifact.Duration != results[0].Artifact.Duration {
			t.Fatalf("runs diverged: %+v", out)
		}
		if seen[out.RunID] {
			t.Fatalf("run id reused: %s", out.RunID)
		}
		seen[out.RunID] = true
	}
}

func TestValidateAggregatesStages(t *testing.T) {
	engine := New(segmentation.New(nil), continuity.New(colorByStart(nil)), stitching.New())
	checks := engine.Validate()
	if len(checks) != 3 {
		t.Fatalf("expected one check per stage, got %d", len(checks))
	}
	if engine.Valid() {
		t.Fatal("expected missing prober to fail validation")
	}
	if checks[0].Valid() || !checks[1].Valid() || !checks[2].Valid() {
		t.Fatalf("unexpected checks %+v", checks)
	}
}

func TestNewFromConfigRunsScriptPrompt(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSegmentDuration(2))
	engine, err := NewFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if !engine.Valid() {
		t.Fatalf("expected valid engine: %+v", engine.Validate())
	}
	out := engine.Run(context.Background(), "Golden sunset over the desert.\n\nBlue moonlit ocean at night.", RunConfig{})
	if !out.Succeeded() {
		t.Fatalf("run failed at %s: %s (%v)", out.FailedStage, out.Reason, out.Err)
	}
	if len(out.Transitions) != 1 || out.Transitions[0].Type != media.TransitionDissolve {
		t.Fatalf("expected color dissolve, got %+v", out.Transitions)
	}
	if math.Abs(out.Artifact.Duration-3.5) > 1e-9 {
		t.Fatalf("unexpected duration %v", out.Artifact.Duration)
	}
	if filepath.Dir(out.Artifact.Reference) != cfg.Paths.OutputDir {
		t.Fatalf("manifest not in output dir: %s", out.Artifact.Reference)
	}
	if _, err := os.Stat(out.Artifact.Reference); err != nil {
		t.Fatalf("manifest missing: %v", err)
	}
}

func TestNewFromConfigProbesMediaFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	binDir := t.TempDir()
	stub := "#!/bin/sh\necho '{\"streams\":[{\"codec_type\":\"video\",\"width\":640,\"height\":360}],\"format\":{\"duration\":\"10.0\"}}'\n"
	if err := os.WriteFile(filepath.Join(binDir, "ffprobe"), []byte(stub), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	engine, err := NewFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	out := engine.RunSource(context.Background(), "file:///media/clip.mp4", RunConfig{})
	if !out.Succeeded() {
		t.Fatalf("run failed at %s: %s (%v)", out.FailedStage, out.Reason, out.Err)
	}
	if len(out.Segments) != 3 || math.Abs(out.Artifact.Duration-10) > 1e-9 {
		t.Fatalf("unexpected result: %d segments, %v seconds", len(out.Segments), out.Artifact.Duration)
	}
	for _, tr := range out.Transitions {
		if tr.Type != media.TransitionCut {
			t.Fatalf("unmeasured media pairs should cut, got %+v", tr)
		}
	}
	if len(out.Warnings) == 0 {
		t.Fatal("expected warnings for segments the script meter cannot read")
	}
}

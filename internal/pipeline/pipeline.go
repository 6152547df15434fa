package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelsmith/internal/config"
	"reelsmith/internal/continuity"
	"reelsmith/internal/logging"
	"reelsmith/internal/media"
	"reelsmith/internal/media/ffprobe"
	"reelsmith/internal/render"
	"reelsmith/internal/script"
	"reelsmith/internal/segmentation"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
	"reelsmith/internal/stageexec"
	"reelsmith/internal/stitching"
)

// Defaults fill RunConfig fields left at their zero value.
type Defaults struct {
	SegmentDuration float64
	Rules           media.RuleSet
	Settings        media.OutputSettings
}

// RunConfig carries per-run overrides. Zero values select the defaults.
type RunConfig struct {
	Settings        media.OutputSettings
	SegmentDuration float64
	Rules           media.RuleSet
}

// Warning is one degradation reported by a stage.
type Warning struct {
	Stage   string
	Message string
}

func (w Warning) String() string {
	return w.Stage + ": " + w.Message
}

// Artifact is the result of a successful run.
type Artifact struct {
	Reference  string
	Duration   float64
	Resolution media.Resolution
}

// Outcome reports a finished run. Exactly one of Artifact or FailedStage is
// set. Warnings accumulated before the end are reported either way.
type Outcome struct {
	RunID       string
	Artifact    *Artifact
	FailedStage string
	Reason      string
	Err         error
	Diagnostics stage.Diagnostics
	Warnings    []Warning

	// Segments and Transitions are the last sequence the run produced.
	Segments    []media.Segment
	Transitions []media.Transition
}

// Succeeded reports whether the run produced an artifact.
func (o Outcome) Succeeded() bool {
	return o.Artifact != nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaults sets the values used for zero RunConfig fields.
func WithDefaults(d Defaults) Option {
	return func(e *Engine) { e.defaults = d }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLevelOverrides sets per-stage log levels.
func WithLevelOverrides(overrides map[string]string) Option {
	return func(e *Engine) { e.overrides = overrides }
}

// WithRunIDGenerator replaces the uuid generator for run ids.
func WithRunIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithSourceEncoder converts prompt text into the source reference handed
// to segmentation. The default passes the prompt through unchanged.
func WithSourceEncoder(fn func(prompt string) string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.encode = fn
		}
	}
}

// Engine runs segmentation, continuity and stitching in order. It holds no
// per-run state; concurrent Run calls are independent.
type Engine struct {
	segmentation *segmentation.Module
	continuity   *continuity.Module
	stitching    *stitching.Module

	defaults  Defaults
	logger    *slog.Logger
	overrides map[string]string
	newID     func() string
	encode    func(string) string
}

// New assembles an engine from its three stages.
func New(seg *segmentation.Module, cont *continuity.Module, stitch *stitching.Module, opts ...Option) *Engine {
	e := &Engine{
		segmentation: seg,
		continuity:   cont,
		stitching:    stitch,
		defaults: Defaults{
			SegmentDuration: 4,
			Settings:        media.DefaultOutputSettings(),
		},
		logger: logging.NewNop(),
		newID:  uuid.NewString,
		encode: func(prompt string) string { return prompt },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "pipeline")
	return e
}

// NewFromConfig builds the engine the CLI runs: prompts are treated as
// inline scripts, local media files are probed with ffprobe, features come
// from scene vocabulary, and timelines are published as manifests in the
// output directory.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "configure", "config is nil", nil)
	}
	rules, err := cfg.RuleSet()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "configure", "continuity rules", err)
	}
	policy, err := cfg.TransitionPolicy()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "configure", "transition policy", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	seg := segmentation.New(sourceProber{media: ffprobe.Prober{}})
	cont := continuity.New(script.Meter{},
		continuity.WithPolicy(policy),
		continuity.WithTransitionDuration(cfg.Pipeline.TransitionDuration),
		continuity.WithMaxCorrection(cfg.Pipeline.MaxCorrection),
		continuity.WithLogger(logging.ForStage(logger, cfg.Logging.StageOverrides, continuity.ID)),
	)
	stitch := stitching.New(stitching.WithSink(render.NewFileSink(cfg.Paths.OutputDir, render.WithLogger(logger))))
	return New(seg, cont, stitch,
		WithDefaults(Defaults{
			SegmentDuration: cfg.Pipeline.SegmentDuration,
			Rules:           rules,
			Settings:        cfg.OutputSettings(),
		}),
		WithLogger(logger),
		WithLevelOverrides(cfg.Logging.StageOverrides),
		WithSourceEncoder(script.Reference),
	), nil
}

// Validate runs every stage's configuration self-check.
func (e *Engine) Validate() []stage.Validation {
	return []stage.Validation{
		e.segmentation.Validate(),
		e.continuity.Validate(),
		e.stitching.Validate(),
	}
}

// Valid reports whether every stage passed its self-check.
func (e *Engine) Valid() bool {
	for _, v := range e.Validate() {
		if !v.Valid() {
			return false
		}
	}
	return true
}

// Run turns prompt into an artifact. A Partial stage result never stops the
// run; the first Failure does. A cancelled ctx halts before the next stage.
func (e *Engine) Run(ctx context.Context, prompt string, rc RunConfig) Outcome {
	return e.RunSource(ctx, e.encode(prompt), rc)
}

// RunSource is Run for a source reference that needs no encoding, such as
// a media file path.
func (e *Engine) RunSource(ctx context.Context, source string, rc RunConfig) Outcome {
	runID := e.newID()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, e.logger)
	opts := stageexec.Options{Logger: e.logger, LevelOverrides: e.overrides}
	rc = e.resolve(rc)
	outcome := Outcome{RunID: runID}

	logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.Float64("segment_duration", rc.SegmentDuration),
		logging.Int("rules", rc.Rules.Len()),
	)
	started := time.Now()

	segRes := stageexec.Run(ctx, opts, e.segmentation, segmentation.Input{
		SourceReference: source,
		SegmentDuration: rc.SegmentDuration,
	})
	segOut, ok := collect(&outcome, segmentation.ID, segRes)
	if !ok {
		return e.finish(logger, outcome, started)
	}
	outcome.Segments = segOut.Segments

	contRes := stageexec.Run(ctx, opts, e.continuity, continuity.Input{
		Segments: segOut.Segments,
		Rules:    rc.Rules,
	})
	contOut, ok := collect(&outcome, continuity.ID, contRes)
	if !ok {
		return e.finish(logger, outcome, started)
	}
	outcome.Segments = contOut.Segments
	outcome.Transitions = contOut.Transitions

	stitchRes := stageexec.Run(ctx, opts, e.stitching, stitching.Input{
		Segments:    contOut.Segments,
		Transitions: contOut.Transitions,
		Settings:    rc.Settings,
	})
	stitchOut, ok := collect(&outcome, stitching.ID, stitchRes)
	if !ok {
		return e.finish(logger, outcome, started)
	}
	outcome.Artifact = &Artifact{
		Reference:  stitchOut.Reference,
		Duration:   stitchOut.Duration,
		Resolution: stitchOut.Resolution,
	}
	return e.finish(logger, outcome, started)
}

func (e *Engine) resolve(rc RunConfig) RunConfig {
	if rc.SegmentDuration == 0 {
		rc.SegmentDuration = e.defaults.SegmentDuration
	}
	if rc.Rules.Len() == 0 {
		rc.Rules = e.defaults.Rules
	}
	if rc.Settings == (media.OutputSettings{}) {
		rc.Settings = e.defaults.Settings
	}
	return rc
}

// collect folds a stage result into the outcome and reports whether the
// run may continue.
func collect[T any](outcome *Outcome, stageID string, res stage.Result[T]) (T, bool) {
	for _, w := range res.Warnings() {
		outcome.Warnings = append(outcome.Warnings, Warning{Stage: stageID, Message: w})
	}
	value, ok := res.Value()
	if !ok {
		outcome.FailedStage = stageID
		outcome.Reason = res.Reason()
		outcome.Err = res.Err()
		outcome.Diagnostics = res.Diagnostics()
	}
	return value, ok
}

func (e *Engine) finish(logger *slog.Logger, outcome Outcome, started time.Time) Outcome {
	elapsed := time.Since(started)
	if outcome.Succeeded() {
		logger.Info("pipeline completed",
			logging.String(logging.FieldEventType, "pipeline_complete"),
			logging.String("artifact", outcome.Artifact.Reference),
			logging.Float64("duration_seconds", outcome.Artifact.Duration),
			logging.Int("warnings", len(outcome.Warnings)),
			logging.Duration("elapsed", elapsed),
		)
		return outcome
	}
	logging.ErrorWithContext(logger, "pipeline failed", "pipeline_failure",
		logging.String("failed_stage", outcome.FailedStage),
		logging.String("reason", strings.TrimSpace(outcome.Reason)),
		logging.Int("warnings", len(outcome.Warnings)),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldErrorHint, fmt.Sprintf("inspect the %s stage log lines for run %s", outcome.FailedStage, outcome.RunID)),
	)
	return outcome
}

// sourceProber sends inline scripts to the script prober and everything
// else to media.
type sourceProber struct {
	media segmentation.Prober
}

func (p sourceProber) Probe(ctx context.Context, source string) (float64, error) {
	if script.IsReference(source) {
		return script.Prober{}.Probe(ctx, source)
	}
	return p.media.Probe(ctx, source)
}

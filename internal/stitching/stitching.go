package stitching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"reelsmith/internal/media"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
)

const (
	// ID identifies the stitching stage in logs and diagnostics.
	ID      = "stitching"
	Version = "1"

	// ReferenceScheme prefixes artifact references when no Sink is configured.
	ReferenceScheme = "timeline://"
)

// Input is the adjusted sequence, its transitions, and the render settings.
type Input struct {
	Segments    []media.Segment
	Transitions []media.Transition
	Settings    media.OutputSettings
}

// ValidationErrors lists every problem with the input.
func (in Input) ValidationErrors() []string {
	var problems []string
	if len(in.Segments) == 0 {
		problems = append(problems, "segments: at least one segment is required")
	}
	for _, p := range media.ValidateSequence(in.Segments) {
		problems = append(problems, "segments: "+p)
	}
	for _, p := range in.Settings.ValidationErrors() {
		problems = append(problems, "settings: "+p)
	}
	problems = append(problems, media.ValidateTransitions(in.Transitions, in.Segments)...)
	return problems
}

// Output is the published artifact.
type Output struct {
	Reference  string
	Duration   float64
	Resolution media.Resolution
	Timeline   media.Timeline
}

// Sink publishes a stitched timeline and returns its artifact reference.
type Sink interface {
	Publish(ctx context.Context, timeline media.Timeline) (string, error)
}

// Option configures a Module.
type Option func(*Module)

// WithSink publishes timelines through sink instead of returning a
// timeline:// reference.
func WithSink(sink Sink) Option {
	return func(m *Module) { m.sink = sink }
}

// WithIDGenerator replaces the uuid generator used for timeline ids.
func WithIDGenerator(fn func() string) Option {
	return func(m *Module) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// Module concatenates segments into a single timeline. It holds no per-run
// state and is safe for concurrent use when its Sink is.
type Module struct {
	sink  Sink
	newID func() string
}

// New constructs the stitching stage.
func New(opts ...Option) *Module {
	m := &Module{newID: uuid.NewString}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) Info() stage.Info {
	return stage.Info{ID: ID, Version: Version}
}

func (m *Module) Validate() stage.Validation {
	return stage.Valid(ID)
}

type pairKey struct{ from, to string }

func (m *Module) Process(ctx context.Context, in Input) stage.Result[Output] {
	info := m.Info()
	if res, ok := stage.CheckInput[Output](info, in); !ok {
		return res
	}
	if err := ctx.Err(); err != nil {
		return stage.Cancelled[Output](info, err)
	}

	byPair := make(map[pairKey]media.Transition, len(in.Transitions))
	var warnings []string
	for _, tr := range in.Transitions {
		key := pairKey{tr.From, tr.To}
		if _, dup := byPair[key]; dup {
			warnings = append(warnings, fmt.Sprintf("duplicate transition %s -> %s ignored", tr.From, tr.To))
			continue
		}
		byPair[key] = tr
	}

	segments := make([]media.Segment, len(in.Segments))
	total := 0.0
	for i, seg := range in.Segments {
		segments[i] = seg.Clone()
		total += seg.Span()
	}

	joins := make([]media.Transition, 0, len(segments)-1)
	for i := 0; i+1 < len(segments); i++ {
		from, to := segments[i], segments[i+1]
		tr, ok := byPair[pairKey{from.ID, to.ID}]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("no transition for %s -> %s; using cut", from.ID, to.ID))
			tr = media.Transition{From: from.ID, To: to.ID, Type: media.TransitionCut}
		}
		if tr.Type.Blends() {
			limit := math.Min(from.Span(), to.Span())
			if tr.Duration > limit {
				warnings = append(warnings, fmt.Sprintf(
					"%s %s -> %s of %.3fs clamped to %.3fs", tr.Type, from.ID, to.ID, tr.Duration, limit))
				tr.Duration = limit
			}
			total -= tr.Duration
		} else {
			tr.Duration = 0
		}
		joins = append(joins, tr)
	}

	if total <= 0 {
		reason := fmt.Sprintf("stitched duration %.3fs is not positive", total)
		return stage.Failure[Output](reason, nil, stage.ForModule(info).WithExtra("duration", fmt.Sprint(total)))
	}

	timeline := media.Timeline{
		ID:       m.newID(),
		Segments: segments,
		Joins:    joins,
		Duration: total,
		Settings: in.Settings,
	}

	reference, err := m.publish(ctx, timeline)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return stage.Cancelled[Output](info, err)
		}
		reason := "publishing the stitched timeline failed"
		return stage.Failure[Output](reason,
			services.Wrap(services.ErrExternalTool, ID, "publish", reason, err),
			stage.ForModule(info).WithExtra("timeline_id", timeline.ID))
	}
	if strings.TrimSpace(reference) == "" {
		return stage.Failure[Output]("sink returned an empty artifact reference", nil,
			stage.ForModule(info).WithExtra("timeline_id", timeline.ID))
	}

	return stage.Partial(Output{
		Reference:  reference,
		Duration:   total,
		Resolution: in.Settings.Resolution,
		Timeline:   timeline,
	}, warnings...)
}

func (m *Module) publish(ctx context.Context, timeline media.Timeline) (string, error) {
	if m.sink == nil {
		return ReferenceScheme + timeline.ID + "." + string(timeline.Settings.Format), nil
	}
	return m.sink.Publish(ctx, timeline)
}

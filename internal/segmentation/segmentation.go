package segmentation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"reelsmith/internal/media"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
)

const (
	// ID identifies the segmentation stage in logs and diagnostics.
	ID      = "segmentation"
	Version = "1"

	// epsilon is the shortest span emitted; shorter remainders are folded
	// into the previous segment.
	epsilon = 1e-6

	// MaxSegments bounds how many segments one source may be split into.
	MaxSegments = 100_000
)

// Input asks for a source to be split into fixed-length segments.
type Input struct {
	SourceReference string
	SegmentDuration float64
}

// ValidationErrors lists every problem with the input.
func (in Input) ValidationErrors() []string {
	var problems []string
	if strings.TrimSpace(in.SourceReference) == "" {
		problems = append(problems, "source_reference: must not be empty")
	}
	switch {
	case math.IsNaN(in.SegmentDuration) || math.IsInf(in.SegmentDuration, 0) || in.SegmentDuration <= 0:
		problems = append(problems, fmt.Sprintf("segment_duration: must be positive, got %v", in.SegmentDuration))
	case in.SegmentDuration < epsilon:
		problems = append(problems, fmt.Sprintf("segment_duration: must be at least %v, got %v", epsilon, in.SegmentDuration))
	}
	return problems
}

// CountProblem reports why splitting duration into step-long segments
// would exceed MaxSegments. It returns "" when the split is acceptable.
func CountProblem(duration, step float64) string {
	if !(step > 0) || !(duration/step <= MaxSegments) {
		return fmt.Sprintf("segment_duration: %v over %v seconds exceeds %d segments", step, duration, MaxSegments)
	}
	return ""
}

// Output is the ordered segment sequence covering the whole source.
type Output struct {
	Segments       []media.Segment
	SourceDuration float64
}

// Prober resolves the playable duration of a source reference in seconds.
type Prober interface {
	Probe(ctx context.Context, source string) (float64, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, source string) (float64, error)

func (f ProberFunc) Probe(ctx context.Context, source string) (float64, error) {
	return f(ctx, source)
}

// Option configures a Module.
type Option func(*Module)

// WithIDGenerator replaces the uuid generator; tests use it for stable ids.
func WithIDGenerator(fn func() string) Option {
	return func(m *Module) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// Module splits a source into consecutive segments. It holds no per-run
// state and is safe for concurrent use when its Prober is.
type Module struct {
	prober Prober
	newID  func() string
}

// New constructs the segmentation stage.
func New(prober Prober, opts ...Option) *Module {
	m := &Module{prober: prober, newID: uuid.NewString}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) Info() stage.Info {
	return stage.Info{ID: ID, Version: Version}
}

func (m *Module) Validate() stage.Validation {
	if m.prober == nil {
		return stage.Invalid(ID, "no source prober configured")
	}
	return stage.Valid(ID)
}

func (m *Module) Process(ctx context.Context, in Input) stage.Result[Output] {
	info := m.Info()
	if res, ok := stage.CheckInput[Output](info, in); !ok {
		return res
	}
	if m.prober == nil {
		reason := "no source prober configured"
		return stage.Failure[Output](reason,
			services.Wrap(services.ErrConfiguration, ID, "probe", reason, nil),
			stage.ForModule(info))
	}
	if err := ctx.Err(); err != nil {
		return stage.Cancelled[Output](info, err)
	}

	duration, err := m.prober.Probe(ctx, in.SourceReference)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctxErr == nil {
				ctxErr = err
			}
			return stage.Cancelled[Output](info, ctxErr)
		}
		reason := "could not determine source duration"
		return stage.Failure[Output](reason,
			services.Wrap(services.ErrExternalTool, ID, "probe", reason, err),
			stage.ForModule(info).WithField("source_reference"))
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		reason := fmt.Sprintf("source duration %v is not positive", duration)
		return stage.Failure[Output](reason, nil,
			stage.ForModule(info).WithField("source_reference").WithExtra("duration", formatSeconds(duration)))
	}

	if problem := CountProblem(duration, in.SegmentDuration); problem != "" {
		return stage.Failure[Output](problem,
			services.Wrap(services.ErrValidation, ID, "partition", problem, nil),
			stage.ForModule(info).WithField("segment_duration").WithExtra("duration", formatSeconds(duration)))
	}

	segments := Partition(in.SourceReference, duration, in.SegmentDuration, m.newID)
	if len(segments) == 0 {
		return stage.Failure[Output]("segmentation produced no segments", nil,
			stage.ForModule(info).WithExtra("duration", formatSeconds(duration)))
	}
	return stage.Success(Output{Segments: segments, SourceDuration: duration})
}

// Partition splits [0, duration) into consecutive spans of length step. The
// final span may be shorter but is never shorter than epsilon. A split that
// would exceed MaxSegments yields nil.
func Partition(source string, duration, step float64, newID func() string) []media.Segment {
	if !(duration > 0) || CountProblem(duration, step) != "" {
		return nil
	}
	if newID == nil {
		newID = uuid.NewString
	}
	count := int(math.Ceil(duration / step))
	segments := make([]media.Segment, 0, count)
	for i := 0; ; i++ {
		start := float64(i) * step
		if start >= duration-epsilon {
			break
		}
		end := math.Min(start+step, duration)
		if duration-end < epsilon {
			end = duration
		}
		segments = append(segments, media.Segment{
			ID:      newID(),
			Start:   start,
			End:     end,
			Content: fragment(source, start, end),
		})
	}
	return segments
}

// fragment builds a media-fragment style content reference.
func fragment(source string, start, end float64) string {
	return source + "#t=" + formatSeconds(start) + "," + formatSeconds(end)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

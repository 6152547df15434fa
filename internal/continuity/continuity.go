package continuity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"reelsmith/internal/logging"
	"reelsmith/internal/media"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
)

const (
	// ID identifies the continuity stage in logs and diagnostics.
	ID      = "continuity"
	Version = "1"

	// TagPrefix marks a segment adjusted for a violated rule, e.g. "smooth:color".
	TagPrefix = "smooth:"

	DefaultTransitionDuration = 0.5
	DefaultMaxCorrection      = 0.5
)

// DefaultPolicy maps each violated rule type to the transition used to hide it.
func DefaultPolicy() map[media.RuleType]media.TransitionType {
	return map[media.RuleType]media.TransitionType{
		media.RuleColor:       media.TransitionDissolve,
		media.RuleLighting:    media.TransitionDissolve,
		media.RuleMotion:      media.TransitionSlide,
		media.RuleComposition: media.TransitionFade,
	}
}

// Input is an ordered segment sequence and the rules it must satisfy.
type Input struct {
	Segments []media.Segment
	Rules    media.RuleSet
}

// ValidationErrors lists every problem with the input.
func (in Input) ValidationErrors() []string {
	if len(in.Segments) == 0 {
		return []string{"segments: at least one segment is required"}
	}
	var problems []string
	for _, p := range media.ValidateSequence(in.Segments) {
		problems = append(problems, "segments: "+p)
	}
	return problems
}

// Metadata summarizes the checks performed.
type Metadata struct {
	PairsEvaluated  int                    `json:"pairs_evaluated"`
	PairsUnmeasured int                    `json:"pairs_unmeasured"`
	Violations      map[media.RuleType]int `json:"violations"`
}

// Output carries the adjusted segments, one transition per adjacent pair,
// and the check summary. Segments has the same length and order as the input.
type Output struct {
	Segments    []media.Segment
	Transitions []media.Transition
	Metadata    Metadata
}

// Meter extracts visual features from a segment.
type Meter interface {
	Measure(ctx context.Context, segment media.Segment) (media.Features, error)
}

// MeterFunc adapts a function to the Meter interface.
type MeterFunc func(ctx context.Context, segment media.Segment) (media.Features, error)

func (f MeterFunc) Measure(ctx context.Context, segment media.Segment) (media.Features, error) {
	return f(ctx, segment)
}

// Option configures a Module.
type Option func(*Module)

// WithPolicy overrides entries of the rule-to-transition mapping.
func WithPolicy(policy map[media.RuleType]media.TransitionType) Option {
	return func(m *Module) {
		for rt, tt := range policy {
			m.policy[rt] = tt
		}
	}
}

// WithTransitionDuration sets the duration given to blended transitions.
func WithTransitionDuration(seconds float64) Option {
	return func(m *Module) { m.transitionDuration = seconds }
}

// WithMaxCorrection sets how far past its threshold a delta may be before
// smoothing is reported as partial.
func WithMaxCorrection(value float64) Option {
	return func(m *Module) { m.maxCorrection = value }
}

// WithLogger sets the logger used for per-pair decision logs.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Module) { m.logger = logger }
}

// Module enforces continuity between adjacent segments. It holds no
// per-run state and is safe for concurrent use when its Meter is.
type Module struct {
	meter              Meter
	policy             map[media.RuleType]media.TransitionType
	transitionDuration float64
	maxCorrection      float64
	logger             *slog.Logger
}

// New constructs the continuity stage.
func New(meter Meter, opts ...Option) *Module {
	m := &Module{
		meter:              meter,
		policy:             DefaultPolicy(),
		transitionDuration: DefaultTransitionDuration,
		maxCorrection:      DefaultMaxCorrection,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.NewNop()
	}
	return m
}

func (m *Module) Info() stage.Info {
	return stage.Info{ID: ID, Version: Version}
}

func (m *Module) Validate() stage.Validation {
	var problems []string
	if m.meter == nil {
		problems = append(problems, "no feature meter configured")
	}
	if math.IsNaN(m.transitionDuration) || m.transitionDuration <= 0 {
		problems = append(problems, fmt.Sprintf("transition duration must be positive, got %v", m.transitionDuration))
	}
	if math.IsNaN(m.maxCorrection) || m.maxCorrection < 0 {
		problems = append(problems, fmt.Sprintf("max correction must be >= 0, got %v", m.maxCorrection))
	}
	for _, rt := range media.AllRuleTypes() {
		tt, ok := m.policy[rt]
		if !ok {
			problems = append(problems, fmt.Sprintf("no transition configured for rule %s", rt))
			continue
		}
		if _, known := media.ParseTransitionType(string(tt)); !known || !tt.Blends() {
			problems = append(problems, fmt.Sprintf("rule %s maps to %q; expected fade, dissolve, or slide", rt, tt))
		}
	}
	return stage.Invalid(ID, problems...)
}

func (m *Module) Process(ctx context.Context, in Input) stage.Result[Output] {
	info := m.Info()
	if res, ok := stage.CheckInput[Output](info, in); !ok {
		return res
	}
	if v := m.Validate(); !v.Valid() {
		return stage.Failure[Output](v.String(),
			services.Wrap(services.ErrConfiguration, ID, "validate", v.String(), nil),
			stage.ForModule(info))
	}

	features, measured, warnings, err := m.measureAll(ctx, in.Segments)
	if err != nil {
		return stage.Cancelled[Output](info, err)
	}

	segments := make([]media.Segment, len(in.Segments))
	for i, seg := range in.Segments {
		segments[i] = seg.Clone()
	}
	meta := Metadata{Violations: make(map[media.RuleType]int)}
	transitions := make([]media.Transition, 0, len(segments)-1)
	rules := in.Rules.Rules()

	for i := 0; i+1 < len(segments); i++ {
		from, to := segments[i], segments[i+1]
		meta.PairsEvaluated++
		if !measured[i] || !measured[i+1] {
			meta.PairsUnmeasured++
			warnings = append(warnings, fmt.Sprintf("pair %d (%s -> %s) could not be measured; using cut", i, from.ID, to.ID))
			transitions = append(transitions, media.Transition{From: from.ID, To: to.ID, Type: media.TransitionCut})
			continue
		}

		delta := media.Delta(features[i], features[i+1])
		var (
			worst       media.RuleType
			worstExcess float64
		)
		for _, rule := range rules {
			excess := delta.Value(rule.Type) - rule.Threshold
			if excess <= 0 {
				continue
			}
			meta.Violations[rule.Type]++
			tag := TagPrefix + string(rule.Type)
			segments[i] = segments[i].WithTag(tag)
			segments[i+1] = segments[i+1].WithTag(tag)
			if excess > m.maxCorrection {
				warnings = append(warnings, fmt.Sprintf(
					"pair %d (%s -> %s): %s delta %.3f exceeds threshold %.3f beyond correctable range",
					i, from.ID, to.ID, rule.Type, delta.Value(rule.Type), rule.Threshold))
			}
			if worst == "" || excess > worstExcess || (excess == worstExcess && rule.Type.Less(worst)) {
				worst, worstExcess = rule.Type, excess
			}
		}

		transition := media.Transition{From: from.ID, To: to.ID, Type: media.TransitionCut}
		reason := "within thresholds"
		if worst != "" {
			transition.Type = m.policy[worst]
			transition.Duration = math.Min(m.transitionDuration, math.Min(from.Span(), to.Span())/2)
			reason = fmt.Sprintf("%s exceeded by %.3f", worst, worstExcess)
		}
		transitions = append(transitions, transition)
		m.logger.Debug("transition selected", logging.Args(append(
			logging.DecisionAttrs("transition", string(transition.Type), reason),
			logging.Int("pair", i),
		)...)...)
	}

	return stage.Partial(Output{Segments: segments, Transitions: transitions, Metadata: meta}, warnings...)
}

// measureAll measures every segment once. A segment that cannot be measured
// is reported through measured[i] == false and a warning; only context
// cancellation aborts the run.
func (m *Module) measureAll(ctx context.Context, segments []media.Segment) ([]media.Features, []bool, []string, error) {
	features := make([]media.Features, len(segments))
	measured := make([]bool, len(segments))
	var warnings []string
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, err
		}
		f, err := m.meter.Measure(ctx, seg)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, nil, nil, err
			}
			warnings = append(warnings, fmt.Sprintf("segment %s: measurement failed: %v", seg.ID, err))
			continue
		}
		features[i] = f
		measured[i] = true
	}
	return features, measured, warnings, nil
}

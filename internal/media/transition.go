package media

import (
	"fmt"
	"math"
	"strings"
)

// TransitionType describes how the join between two segments is rendered.
type TransitionType string

const (
	TransitionCut      TransitionType = "cut"
	TransitionFade     TransitionType = "fade"
	TransitionDissolve TransitionType = "dissolve"
	TransitionSlide    TransitionType = "slide"
)

var allTransitionTypes = []TransitionType{TransitionCut, TransitionFade, TransitionDissolve, TransitionSlide}

// ParseTransitionType converts a string into a known TransitionType.
func ParseTransitionType(value string) (TransitionType, bool) {
	normalized := TransitionType(strings.ToLower(strings.TrimSpace(value)))
	for _, tt := range allTransitionTypes {
		if tt == normalized {
			return tt, true
		}
	}
	return "", false
}

// Blends reports whether the transition overlaps the adjacent segments.
func (t TransitionType) Blends() bool {
	return t != TransitionCut
}

// Transition is a directed edge between two segments of the adjusted sequence.
type Transition struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Type     TransitionType `json:"type"`
	Duration float64        `json:"duration"`
}

// ValidationErrors lists structural problems that do not depend on the
// surrounding segment sequence.
func (t Transition) ValidationErrors() []string {
	var problems []string
	if strings.TrimSpace(t.From) == "" || strings.TrimSpace(t.To) == "" {
		problems = append(problems, "transition endpoints are required")
	}
	if _, ok := ParseTransitionType(string(t.Type)); !ok {
		problems = append(problems, fmt.Sprintf("transition %s->%s has unknown type %q", t.From, t.To, t.Type))
	}
	if math.IsNaN(t.Duration) || t.Duration < 0 {
		problems = append(problems, fmt.Sprintf("transition %s->%s has negative duration", t.From, t.To))
	} else if t.Type.Blends() && t.Duration <= 0 {
		problems = append(problems, fmt.Sprintf("transition %s->%s of type %s requires a positive duration", t.From, t.To, t.Type))
	}
	return problems
}

// ValidateTransitions checks every transition and verifies both endpoints are
// present in segments.
func ValidateTransitions(transitions []Transition, segments []Segment) []string {
	present := make(map[string]struct{}, len(segments))
	for _, seg := range segments {
		present[seg.ID] = struct{}{}
	}
	var problems []string
	for i, tr := range transitions {
		for _, p := range tr.ValidationErrors() {
			problems = append(problems, fmt.Sprintf("transitions[%d]: %s", i, p))
		}
		if _, ok := present[tr.From]; !ok && tr.From != "" {
			problems = append(problems, fmt.Sprintf("transitions[%d]: unknown source segment %s", i, tr.From))
		}
		if _, ok := present[tr.To]; !ok && tr.To != "" {
			problems = append(problems, fmt.Sprintf("transitions[%d]: unknown target segment %s", i, tr.To))
		}
	}
	return problems
}

package media

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Segment is the minimal unit of media content: a half-open time range
// [Start, End) in seconds plus an opaque content reference.
type Segment struct {
	ID      string   `json:"id"`
	Start   float64  `json:"start"`
	End     float64  `json:"end"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// Span returns the segment length in seconds.
func (s Segment) Span() float64 {
	return s.End - s.Start
}

// ValidationErrors lists every structural problem with the segment.
func (s Segment) ValidationErrors() []string {
	var problems []string
	if strings.TrimSpace(s.ID) == "" {
		problems = append(problems, "segment id is required")
	}
	if math.IsNaN(s.Start) || math.IsNaN(s.End) || math.IsInf(s.Start, 0) || math.IsInf(s.End, 0) {
		problems = append(problems, fmt.Sprintf("segment %s has a non-finite time range", s.ID))
		return problems
	}
	if s.Start < 0 {
		problems = append(problems, fmt.Sprintf("segment %s starts before zero (%g)", s.ID, s.Start))
	}
	if s.Start >= s.End {
		problems = append(problems, fmt.Sprintf("segment %s has empty or inverted range [%g, %g)", s.ID, s.Start, s.End))
	}
	return problems
}

// HasTag reports whether the segment carries the given tag.
func (s Segment) HasTag(tag string) bool {
	return slices.Contains(s.Tags, tag)
}

// WithTag returns a copy of the segment carrying tag. Existing tags are kept
// and duplicates are not added.
func (s Segment) WithTag(tag string) Segment {
	if tag == "" || s.HasTag(tag) {
		return s
	}
	out := s
	out.Tags = append(slices.Clone(s.Tags), tag)
	return out
}

// Clone returns a deep copy so callers can adjust a segment without aliasing
// the tag slice of the original.
func (s Segment) Clone() Segment {
	out := s
	out.Tags = slices.Clone(s.Tags)
	return out
}

// ValidateSequence checks every segment and rejects duplicate ids. Overlapping
// or gapped ranges are allowed.
func ValidateSequence(segments []Segment) []string {
	var problems []string
	seen := make(map[string]struct{}, len(segments))
	for i, seg := range segments {
		for _, p := range seg.ValidationErrors() {
			problems = append(problems, fmt.Sprintf("segments[%d]: %s", i, p))
		}
		if seg.ID == "" {
			continue
		}
		if _, dup := seen[seg.ID]; dup {
			problems = append(problems, fmt.Sprintf("segments[%d]: duplicate segment id %s", i, seg.ID))
		}
		seen[seg.ID] = struct{}{}
	}
	return problems
}

// TotalSpan sums the spans of all segments.
func TotalSpan(segments []Segment) float64 {
	var total float64
	for _, seg := range segments {
		total += seg.Span()
	}
	return total
}

package projectstate

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Status represents the lifecycle of a prompt.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

type statusTransition struct {
	from Status
	to   Status
}

// Terminal states have no outgoing transitions; a retry is a fresh prompt.
var allowedTransitions = map[statusTransition]struct{}{
	{from: StatusPending, to: StatusProcessing}:   {},
	{from: StatusProcessing, to: StatusCompleted}: {},
	{from: StatusProcessing, to: StatusFailed}:    {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range allStatuses {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is defined from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a prompt may move from s to next. Re-applying
// the current status is always allowed and only refreshes UpdatedAt.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	_, ok := allowedTransitions[statusTransition{from: s, to: next}]
	return ok
}

// GenerationVersion tags the backend configuration that produced (or will
// produce) a prompt's media.
type GenerationVersion string

const (
	GenerationV1 GenerationVersion = "v1"
	GenerationV2 GenerationVersion = "v2"

	DefaultGeneration = GenerationV2
)

// ParseGeneration converts a string into a known GenerationVersion.
func ParseGeneration(value string) (GenerationVersion, bool) {
	switch GenerationVersion(strings.ToLower(strings.TrimSpace(value))) {
	case GenerationV1:
		return GenerationV1, true
	case GenerationV2:
		return GenerationV2, true
	default:
		return "", false
	}
}

// Prompt is one persisted prompt/scene record of a project.
type Prompt struct {
	ID                string            `json:"id"`
	Index             int               `json:"index"`
	Text              string            `json:"prompt_text"`
	Status            Status            `json:"status"`
	GenerationVersion GenerationVersion `json:"generation_version"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// IsProcessing reports whether the prompt is currently being generated.
func (p Prompt) IsProcessing() bool {
	return p.Status == StatusProcessing
}

// document is the on-disk envelope. Field order is fixed by declaration.
type document struct {
	FormatVersion int      `json:"format_version"`
	ProjectID     string   `json:"project_id"`
	Prompts       []Prompt `json:"prompts"`
}

const formatVersion = 1

// validatePrompts checks the records a save would persist.
func validatePrompts(prompts []Prompt) error {
	seen := make(map[string]struct{}, len(prompts))
	for i, p := range prompts {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("%w: prompt %d has an empty id", ErrInvalidPrompt, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate prompt id %q", ErrInvalidPrompt, id)
		}
		seen[id] = struct{}{}
		if !utf8.ValidString(p.Text) {
			return fmt.Errorf("%w: prompt %q text is not valid UTF-8", ErrInvalidPrompt, id)
		}
		if p.Index < 0 {
			return fmt.Errorf("%w: prompt %q has negative index %d", ErrInvalidPrompt, id, p.Index)
		}
		if !p.Status.Valid() {
			return fmt.Errorf("%w: prompt %q has unknown status %q", ErrInvalidPrompt, id, p.Status)
		}
		if p.GenerationVersion != GenerationV1 && p.GenerationVersion != GenerationV2 {
			return fmt.Errorf("%w: prompt %q has unknown generation version %q", ErrInvalidPrompt, id, p.GenerationVersion)
		}
	}
	return nil
}

// normalizeTimes stores timestamps in UTC so the file round-trips exactly.
func normalizeTimes(prompts []Prompt) []Prompt {
	out := make([]Prompt, len(prompts))
	for i, p := range prompts {
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		out[i] = p
	}
	return out
}

package projectstate

import (
	"time"

	"github.com/google/uuid"
)

// MigrateLegacy converts a bare ordered list of prompt texts into records
// with fresh ids, sequential indices, pending status and a shared creation
// time. An empty version selects DefaultGeneration. It performs no I/O.
func MigrateLegacy(texts []string, version GenerationVersion) []Prompt {
	return migrate(texts, version, time.Now(), uuid.NewString)
}

func migrate(texts []string, version GenerationVersion, now time.Time, newID func() string) []Prompt {
	if version == "" {
		version = DefaultGeneration
	}
	created := now.UTC()
	prompts := make([]Prompt, len(texts))
	for i, text := range texts {
		prompts[i] = Prompt{
			ID:                newID(),
			Index:             i,
			Text:              text,
			Status:            StatusPending,
			GenerationVersion: version,
			CreatedAt:         created,
			UpdatedAt:         created,
		}
	}
	return prompts
}

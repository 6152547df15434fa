package script

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	// Scheme prefixes inline script references.
	Scheme = "script:"

	// WordsPerSecond is the narration pace used to size scenes.
	WordsPerSecond = 2.5
	// MinSceneDuration is the floor applied to every scene.
	MinSceneDuration = 2.0
)

var (
	// ErrNotScript reports a reference that is not an inline script.
	ErrNotScript = errors.New("not a script reference")
	// ErrEmptyScript reports a script without any scene text.
	ErrEmptyScript = errors.New("script has no scenes")
)

// Scene is one paragraph (or line) of a script placed on the source clock.
type Scene struct {
	Index    int
	Text     string
	Words    int
	Start    float64
	End      float64
	Duration float64
}

// Reference encodes text as an inline source reference.
func Reference(text string) string {
	return Scheme + base64.RawURLEncoding.EncodeToString([]byte(norm.NFC.String(text)))
}

// IsReference reports whether source names an inline script.
func IsReference(source string) bool {
	return strings.HasPrefix(strings.TrimSpace(source), Scheme)
}

// Decode returns the script text behind a reference. Any media fragment
// ("#t=...") is ignored.
func Decode(reference string) (string, error) {
	ref := strings.TrimSpace(reference)
	if idx := strings.IndexByte(ref, '#'); idx >= 0 {
		ref = ref[:idx]
	}
	payload, ok := strings.CutPrefix(ref, Scheme)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotScript, truncate(reference, 32))
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode script reference: %w", err)
	}
	return string(raw), nil
}

// Parse splits text into scenes. Paragraphs separated by blank lines are
// scenes; text without blank lines is split per line.
func Parse(text string) []Scene {
	normalized := strings.ReplaceAll(norm.NFC.String(text), "\r\n", "\n")
	var chunks []string
	if strings.Contains(normalized, "\n\n") {
		chunks = strings.Split(normalized, "\n\n")
	} else {
		chunks = strings.Split(normalized, "\n")
	}

	var scenes []Scene
	clock := 0.0
	for _, chunk := range chunks {
		body := strings.Join(strings.Fields(chunk), " ")
		if body == "" {
			continue
		}
		words := countWords(body)
		duration := math.Max(MinSceneDuration, float64(words)/WordsPerSecond)
		scenes = append(scenes, Scene{
			Index:    len(scenes),
			Text:     body,
			Words:    words,
			Start:    clock,
			End:      clock + duration,
			Duration: duration,
		})
		clock += duration
	}
	return scenes
}

// Duration is the total length of the scenes.
func Duration(scenes []Scene) float64 {
	if len(scenes) == 0 {
		return 0
	}
	return scenes[len(scenes)-1].End
}

// SceneAt returns the scene playing at t, clamping t into the script.
func SceneAt(scenes []Scene, t float64) (Scene, bool) {
	if len(scenes) == 0 {
		return Scene{}, false
	}
	for _, scene := range scenes {
		if t < scene.End {
			return scene, true
		}
	}
	return scenes[len(scenes)-1], true
}

func countWords(text string) int {
	return len(strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '\'' && r != '-')
	}))
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}

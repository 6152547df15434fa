package script

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"reelsmith/internal/media"
)

// Prober resolves the duration of inline script references.
type Prober struct{}

// Probe returns the total scene duration of the referenced script.
func (Prober) Probe(ctx context.Context, source string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	text, err := Decode(source)
	if err != nil {
		return 0, err
	}
	scenes := Parse(text)
	if len(scenes) == 0 {
		return 0, ErrEmptyScript
	}
	return Duration(scenes), nil
}

// Meter derives visual features for a segment from the vocabulary of the
// scene playing at the segment's midpoint.
type Meter struct{}

// Measure implements the continuity feature meter.
func (Meter) Measure(ctx context.Context, segment media.Segment) (media.Features, error) {
	if err := ctx.Err(); err != nil {
		return media.Features{}, err
	}
	source, start, end, err := splitFragment(segment.Content)
	if err != nil {
		return media.Features{}, fmt.Errorf("segment %s: %w", segment.ID, err)
	}
	text, err := Decode(source)
	if err != nil {
		return media.Features{}, fmt.Errorf("segment %s: %w", segment.ID, err)
	}
	scene, ok := SceneAt(Parse(text), (start+end)/2)
	if !ok {
		return media.Features{}, fmt.Errorf("segment %s: %w", segment.ID, ErrEmptyScript)
	}
	return Features(scene.Text), nil
}

// splitFragment separates "<source>#t=<start>,<end>". Without a fragment the
// whole source is covered.
func splitFragment(content string) (string, float64, float64, error) {
	source, fragment, found := strings.Cut(content, "#t=")
	if !found {
		return content, 0, 0, nil
	}
	startText, endText, ok := strings.Cut(fragment, ",")
	if !ok {
		return "", 0, 0, fmt.Errorf("malformed media fragment %q", fragment)
	}
	start, err := strconv.ParseFloat(startText, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed fragment start: %w", err)
	}
	end, err := strconv.ParseFloat(endText, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed fragment end: %w", err)
	}
	return source, start, end, nil
}

var (
	warmWords   = wordSet("red", "orange", "gold", "golden", "amber", "sunset", "sunrise", "fire", "flame", "warm", "desert", "autumn")
	coolWords   = wordSet("blue", "teal", "ice", "icy", "snow", "ocean", "sea", "rain", "cold", "winter", "moonlit", "steel")
	brightWords = wordSet("day", "noon", "sun", "sunny", "bright", "light", "morning", "neon", "glowing", "dazzling")
	darkWords   = wordSet("night", "dark", "shadow", "shadows", "dim", "midnight", "candle", "candlelit", "dusk", "gloomy")
	fastWords   = wordSet("run", "runs", "running", "chase", "chases", "race", "races", "racing", "fly", "flies", "flying", "explode", "explodes", "explosion", "crash", "crashes", "jump", "jumps", "fast", "rush", "rushes", "storm", "fight")
	stillWords  = wordSet("still", "quiet", "calm", "sits", "sitting", "waits", "waiting", "sleeps", "silent", "pause", "stands")
	closeWords  = wordSet("face", "eyes", "hands", "hand", "close", "closeup", "close-up", "detail", "portrait", "whisper")
	wideWords   = wordSet("landscape", "wide", "aerial", "panorama", "city", "skyline", "crowd", "horizon", "valley", "mountains", "field")
)

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Features scores scene text on the four continuity axes. Each axis is a
// balance between two opposing vocabularies and sits at 0.5 when neither
// appears.
func Features(text string) media.Features {
	folded := cases.Fold().String(text)
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !(r == '-' || r == '\'' || ('a' <= r && r <= 'z') || r > 0x7f)
	})
	var warm, cool, bright, dark, fast, still, near, wide int
	for _, w := range words {
		if _, ok := warmWords[w]; ok {
			warm++
		}
		if _, ok := coolWords[w]; ok {
			cool++
		}
		if _, ok := brightWords[w]; ok {
			bright++
		}
		if _, ok := darkWords[w]; ok {
			dark++
		}
		if _, ok := fastWords[w]; ok {
			fast++
		}
		if _, ok := stillWords[w]; ok {
			still++
		}
		if _, ok := closeWords[w]; ok {
			near++
		}
		if _, ok := wideWords[w]; ok {
			wide++
		}
	}
	return media.Features{
		Color:       balance(warm, cool),
		Lighting:    balance(bright, dark),
		Motion:      balance(fast, still),
		Composition: balance(wide, near),
	}
}

func balance(high, low int) float64 {
	if high+low == 0 {
		return 0.5
	}
	return float64(high) / float64(high+low)
}

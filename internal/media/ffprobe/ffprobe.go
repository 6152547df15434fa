package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os/exec"
	"strconv"
	"strings"

	"reelsmith/internal/media"
)

// ErrNoVideo reports a source without a video stream.
var ErrNoVideo = errors.New("source has no video stream")

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	return Parse(output)
}

// Parse decodes ffprobe JSON output.
func Parse(data []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// VideoStream returns the first video stream.
func (r Result) VideoStream() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// Resolution returns the frame size of the first video stream.
func (r Result) Resolution() media.Resolution {
	stream, ok := r.VideoStream()
	if !ok {
		return media.Resolution{}
	}
	return media.Resolution{Width: stream.Width, Height: stream.Height}
}

// DurationSeconds returns the container duration, falling back to the video
// stream's. It is 0 when unavailable and NaN when unparsable.
func (r Result) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d != 0 {
		return d
	}
	if stream, ok := r.VideoStream(); ok {
		return parseFloat(stream.Duration)
	}
	return 0
}

// Prober resolves the duration of local media files. Sources may be plain
// paths or file:// URLs and may carry a #t= media fragment.
type Prober struct {
	Binary string
}

// Probe implements the segmentation source prober.
func (p Prober) Probe(ctx context.Context, source string) (float64, error) {
	path, err := LocalPath(source)
	if err != nil {
		return 0, err
	}
	result, err := Inspect(ctx, p.Binary, path)
	if err != nil {
		return 0, err
	}
	if _, ok := result.VideoStream(); !ok {
		return 0, fmt.Errorf("%s: %w", path, ErrNoVideo)
	}
	duration := result.DurationSeconds()
	if math.IsNaN(duration) || duration <= 0 {
		return 0, fmt.Errorf("%s: unusable duration %q", path, result.Format.Duration)
	}
	return duration, nil
}

// LocalPath strips a media fragment and file:// scheme from source.
func LocalPath(source string) (string, error) {
	source, _, _ = strings.Cut(strings.TrimSpace(source), "#")
	if !strings.Contains(source, "://") {
		if source == "" {
			return "", errors.New("empty media path")
		}
		return source, nil
	}
	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("parse media url: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported media scheme %q", u.Scheme)
	}
	if u.Path == "" {
		return "", errors.New("empty media path")
	}
	return u.Path, nil
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" || cleaned == "N/A" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}

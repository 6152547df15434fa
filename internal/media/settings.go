package media

import (
	"fmt"
	"math"
	"strings"
)

// Format is the output container.
type Format string

const (
	FormatMP4 Format = "mp4"
	FormatMOV Format = "mov"
	FormatAVI Format = "avi"
)

// ParseFormat converts a string into a known Format.
func ParseFormat(value string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case FormatMP4:
		return FormatMP4, true
	case FormatMOV:
		return FormatMOV, true
	case FormatAVI:
		return FormatAVI, true
	default:
		return "", false
	}
}

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// OutputSettings controls the rendered artifact.
type OutputSettings struct {
	Resolution Resolution `json:"resolution"`
	FrameRate  float64    `json:"frame_rate"`
	Bitrate    int        `json:"bitrate_kbps"`
	Format     Format     `json:"format"`
}

// DefaultOutputSettings returns 1080p30 MP4 settings.
func DefaultOutputSettings() OutputSettings {
	return OutputSettings{
		Resolution: Resolution{Width: 1920, Height: 1080},
		FrameRate:  30,
		Bitrate:    8000,
		Format:     FormatMP4,
	}
}

// ValidationErrors lists every problem with the settings.
func (s OutputSettings) ValidationErrors() []string {
	var problems []string
	if s.Resolution.Width <= 0 || s.Resolution.Height <= 0 {
		problems = append(problems, fmt.Sprintf("resolution %s must be positive in both dimensions", s.Resolution))
	}
	if math.IsNaN(s.FrameRate) || s.FrameRate <= 0 {
		problems = append(problems, "frame rate must be positive")
	}
	if s.Bitrate <= 0 {
		problems = append(problems, "bitrate must be positive")
	}
	if _, ok := ParseFormat(string(s.Format)); !ok {
		problems = append(problems, fmt.Sprintf("unsupported format %q", s.Format))
	}
	return problems
}

package render

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"reelsmith/internal/media"
)

// xfadeNames maps blending transitions onto ffmpeg xfade transition names.
var xfadeNames = map[media.TransitionType]string{
	media.TransitionFade:     "fade",
	media.TransitionDissolve: "dissolve",
	media.TransitionSlide:    "slideleft",
}

var videoCodecs = map[media.Format]string{
	media.FormatMP4: "libx264",
	media.FormatMOV: "libx264",
	media.FormatAVI: "mpeg4",
}

// Plan compiles timeline into the ffmpeg argument list that would render it
// to outputPath. Each segment is trimmed from its source, scaled to the
// output resolution and joined to its predecessor by concat (cuts) or xfade
// (blends). Nothing is executed.
func Plan(timeline media.Timeline, outputPath string) ([]string, error) {
	if len(timeline.Segments) == 0 {
		return nil, errors.New("timeline has no segments")
	}
	if len(timeline.Joins) != len(timeline.Segments)-1 {
		return nil, fmt.Errorf("timeline has %d joins for %d segments", len(timeline.Joins), len(timeline.Segments))
	}
	if problems := timeline.Settings.ValidationErrors(); len(problems) > 0 {
		return nil, fmt.Errorf("output settings: %s", strings.Join(problems, "; "))
	}
	settings := timeline.Settings

	acc := segmentStream(timeline.Segments[0], settings)
	elapsed := timeline.Segments[0].Span()
	for i, join := range timeline.Joins {
		next := segmentStream(timeline.Segments[i+1], settings)
		span := timeline.Segments[i+1].Span()
		name, blends := xfadeNames[join.Type]
		if !blends || join.Duration <= 0 {
			acc = ffmpeg.Concat([]*ffmpeg.Stream{acc, next})
			elapsed += span
			continue
		}
		acc = ffmpeg.Filter([]*ffmpeg.Stream{acc, next}, "xfade", ffmpeg.Args{}, ffmpeg.KwArgs{
			"transition": name,
			"duration":   seconds(join.Duration),
			"offset":     seconds(elapsed - join.Duration),
		})
		elapsed += span - join.Duration
	}

	out := ffmpeg.Output([]*ffmpeg.Stream{acc}, outputPath, ffmpeg.KwArgs{
		"c:v": videoCodecs[settings.Format],
		"b:v": strconv.Itoa(settings.Bitrate) + "k",
		"r":   seconds(settings.FrameRate),
		"an":  "",
	}).OverWriteOutput()
	return out.GetArgs(), nil
}

func segmentStream(seg media.Segment, settings media.OutputSettings) *ffmpeg.Stream {
	source, _, _ := strings.Cut(seg.Content, "#")
	if source == "" {
		source = seg.ID
	}
	return ffmpeg.Input(source, ffmpeg.KwArgs{
		"ss": seconds(seg.Start),
		"t":  seconds(seg.Span()),
	}).Filter("scale", ffmpeg.Args{fmt.Sprintf("%d:%d", settings.Resolution.Width, settings.Resolution.Height)}).
		Filter("fps", ffmpeg.Args{seconds(settings.FrameRate)})
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

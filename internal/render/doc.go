// Package render publishes stitched timelines.
//
// FileSink writes one JSON manifest per timeline holding the timeline, its
// output settings, and the ffmpeg argument list that would render it. The
// argument list is compiled with ffmpeg-go but never executed; encoding is
// left to whatever consumes the manifest.
package render

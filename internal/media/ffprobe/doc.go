// Package ffprobe wraps ffprobe JSON output and resolves the duration of
// local media files so they can be segmented like inline scripts.
//
// Inspect runs the binary; Parse decodes captured output; Prober adapts both
// to the segmentation stage.
package ffprobe

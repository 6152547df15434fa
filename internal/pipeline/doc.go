// Package pipeline sequences the segmentation, continuity and stitching
// stages into one run that turns a prompt into an artifact reference.
//
// Each run gets its own id for log correlation. Warnings from Partial stage
// results accumulate on the Outcome; the first Failure ends the run and is
// reported with the failing stage's reason and diagnostics.
package pipeline

// Package stageexec runs a single pipeline module with the shared stage
// lifecycle: cancellation check, structured start/complete/failure events,
// and panic containment.
package stageexec

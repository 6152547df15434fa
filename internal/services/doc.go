// Package services defines shared utilities consumed by the pipeline stages,
// the project state store, and their callers.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, project IDs, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that let callers classify
//     failures (contract violation vs transient) without string matching.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability) stays uniform across the pipeline.
package services

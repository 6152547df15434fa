// Package logging assembles structured slog loggers and formatting helpers used
// across reelsmith.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with run IDs, project IDs, stages, and correlation IDs. Per-stage
// level overrides from configuration are applied with ForStage. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging

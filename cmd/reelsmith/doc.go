// Package main hosts the reelsmith CLI.
//
// Commands load the TOML configuration once per invocation, build a
// structured logger from it, and hand off to the internal packages: run
// drives the pipeline engine, prompts edits per-project prompt state through
// the projects service, outbox inspects the sync database, and doctor
// reports preflight checks alongside each stage's self-check.
package main

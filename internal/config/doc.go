// Package config loads, normalizes, and validates reelsmith configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// REELSMITH_STATE_DIR. The Config type centralizes every knob the pipeline,
// project state store, and CLI need, and converts its raw sections into the
// typed rule sets and output settings the stages consume.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

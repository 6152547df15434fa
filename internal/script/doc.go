// Package script turns free-text prompts into pipeline sources.
//
// A prompt is carried through the pipeline as an inline "script:" reference.
// Prober sizes the script from its scene word counts and Meter scores each
// segment's scene on the continuity feature axes from its vocabulary. Both
// are pure and safe for concurrent use.
package script

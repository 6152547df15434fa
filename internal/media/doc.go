// Package media defines the value types that flow between pipeline stages:
// segments, continuity rules, transitions, and output settings.
//
// Everything here is plain data with validation helpers. Stages own the
// behaviour; this package only encodes the invariants every stage relies on
// (non-empty half-open ranges, one rule per type, positive durations for
// blending transitions, positive output dimensions).
package media

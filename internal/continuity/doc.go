// Package continuity implements the second pipeline stage. It measures the
// visual features of each segment, compares adjacent pairs against a rule
// set, tags segments that needed smoothing, and chooses one transition per
// pair.
package continuity

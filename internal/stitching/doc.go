// Package stitching implements the final pipeline stage: it joins the
// adjusted segments with their transitions into one timeline, computes the
// output duration, and publishes the result through an optional Sink.
package stitching

// Package segmentation implements the first pipeline stage: it resolves a
// source's duration through a Prober and partitions it into consecutive
// fixed-length segments.
package segmentation

// Package coord provides the exclusive regions that serialize access to
// project state files across goroutines and processes.
package coord

package preflight

import (
	"reelsmith/internal/config"
)

const (
	minStateFreeBytes  = 64 << 20
	minOutputFreeBytes = 512 << 20
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string

	// Warning marks a passing result that still deserves attention, such
	// as a missing optional binary.
	Warning bool
}

// RunAll executes all preflight checks for the given config. Directory
// checks that fail skip the dependent free-space check.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	state := CheckDirectoryAccess("State directory", cfg.Paths.StateDir)
	results = append(results, state)
	if state.Passed {
		results = append(results, CheckFreeSpace("State free space", cfg.Paths.StateDir, minStateFreeBytes))
	}

	output := CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir)
	results = append(results, output)
	if output.Passed {
		results = append(results, CheckFreeSpace("Output free space", cfg.Paths.OutputDir, minOutputFreeBytes))
	}

	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckParentWritable("Sync outbox", cfg.Paths.OutboxPath))
	results = append(results, CheckBinary("FFmpeg", "ffmpeg", true))
	results = append(results, CheckBinary("FFprobe", "ffprobe", true))

	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

package main

import (
	"testing"

	"reelsmith/internal/testsupport"
)

func TestDoctorReportsStages(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())

	// Free-space checks depend on the host, so only the report is asserted.
	out, _, _ := runCLI(t, []string{"doctor"}, env.configPath)
	requireContains(t, out, "== Preflight ==")
	requireContains(t, out, "State directory:")
	requireContains(t, out, "FFmpeg:")
	requireContains(t, out, "== Stages ==")
	for _, id := range []string{"segmentation", "continuity", "stitching"} {
		requireContains(t, out, id+":")
	}
	requireContains(t, out, env.configPath)
}

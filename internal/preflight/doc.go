// Package preflight verifies that the directories, disk space, and optional
// tools reelsmith relies on are usable before work starts. The CLI doctor
// command renders its results.
package preflight

// Package stage defines the contract shared by pipeline modules.
//
// A Module consumes a typed input and produces a Result that is either a
// Success, a Partial (usable value plus warnings), or a Failure (reason,
// classified cause, and Diagnostics). Input and output types are distinct per
// stage, so wiring the wrong stages together fails to compile.
package stage

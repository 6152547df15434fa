package projectstate

import "errors"

var (
	// ErrNotDirectory reports that a project's directory path exists but is
	// not a directory.
	ErrNotDirectory = errors.New("project path is not a directory")
	// ErrInvalidProject reports a project id that is not a single safe path
	// element.
	ErrInvalidProject = errors.New("invalid project id")
	// ErrCorruptState reports a state file that could not be decoded.
	ErrCorruptState = errors.New("corrupt project state")
	// ErrInvalidPrompt reports a prompt record that cannot be persisted.
	ErrInvalidPrompt = errors.New("invalid prompt")
	// ErrInvalidTransition reports a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNoChange may be returned by an Update callback to skip the write.
	ErrNoChange = errors.New("no change")
)

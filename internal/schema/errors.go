package schema

import "errors"

// Error categories shared by every store and the synchronizer.
//
// Callers classify failures with errors.Is:
//
//	if errors.Is(err, schema.ErrRemoteUnreachable) {
//	    // back off and retry later
//	}
var (
	// ErrStorage is returned when local persistence is unavailable or an
	// I/O error occurred.
	ErrStorage = errors.New("storage failure")

	// ErrRemoteUnreachable is returned when the remote store could not be
	// reached or did not answer in time.
	ErrRemoteUnreachable = errors.New("remote unreachable")

	// ErrNotFound is returned when an operation references a task id that
	// does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrValidation is returned for malformed input such as an empty title.
	ErrValidation = errors.New("validation failure")
)

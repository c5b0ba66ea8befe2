package deploy

import "errors"

// Rotation failure taxonomy. No failure is retried or recovered
// internally; each one aborts the run and surfaces to the CLI.
var (
	// ErrNoImageFound means the image repository holds no tagged images.
	ErrNoImageFound = errors.New("no tagged image found")
	// ErrSpecificationFetch means the current task definition could not
	// be read.
	ErrSpecificationFetch = errors.New("task definition fetch failed")
	// ErrRegistrationRejected means the control plane refused the
	// candidate task definition. The previously running revision stays
	// live.
	ErrRegistrationRejected = errors.New("task definition registration rejected")
	// ErrRepointFailed means the service update failed after a successful
	// registration, leaving a registered-but-unused revision behind.
	ErrRepointFailed = errors.New("service update failed")
)

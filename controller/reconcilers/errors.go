package reconcilers

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by backends when the addressed resource does not exist.
var ErrNotFound = errors.New("resource not found")

// ErrUpgradeNotObserved is returned when the upgrade verifier gives up.
var ErrUpgradeNotObserved = errors.New("upgrade not observed on status conditions")

// Process exit codes.
const (
	ExitOK          = 0
	ExitJobFailed   = 1
	ExitInitFailed  = 2
	ExitOutputWrite = 3
)

// JobError carries the error a job reported about itself.
type JobError struct {
	RawStatus string
	Message   string
}

func (e *JobError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job reported an error (status %q)", e.RawStatus)
	}
	return e.Message
}

// InitError reports a failure before any job was submitted.
type InitError struct {
	Err error
}

func (e *InitError) Error() string { return "initialization failed: " + e.Err.Error() }
func (e *InitError) Unwrap() error { return e.Err }

// JobFailedError reports that the job ran and did not succeed.
type JobFailedError struct {
	Handle Handle
	Err    error
}

func (e *JobFailedError) Error() string {
	if e.Handle.Key.Name == "" {
		return "job failed: " + e.Err.Error()
	}
	return fmt.Sprintf("job %s failed: %v", e.Handle, e.Err)
}
func (e *JobFailedError) Unwrap() error { return e.Err }

// OutputWriteError reports that the job succeeded but an output could not be written.
type OutputWriteError struct {
	Output string
	Err    error
}

func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("write output %q: %v", e.Output, e.Err)
}
func (e *OutputWriteError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by the reporter to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var initErr *InitError
	if errors.As(err, &initErr) {
		return ExitInitFailed
	}
	var outErr *OutputWriteError
	if errors.As(err, &outErr) {
		return ExitOutputWrite
	}
	return ExitJobFailed
}

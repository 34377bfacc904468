package scheduler

import "errors"

var (
	// ErrNoScheduleFound means the file carries no marker line; it is not scheduled.
	ErrNoScheduleFound = errors.New("no schedule found")
	// ErrMalformedSchedule means a marker line exists but its fields do not parse.
	ErrMalformedSchedule = errors.New("malformed schedule")
	// ErrWatchDirectoryUnreadable is logged when a watched directory cannot be listed.
	ErrWatchDirectoryUnreadable = errors.New("watch directory unreadable")
	// ErrJobExecutionFailed wraps a non-zero exit or a failed start.
	ErrJobExecutionFailed = errors.New("job execution failed")
	// ErrJobTimedOut means the job exceeded its timeout and was terminated.
	ErrJobTimedOut = errors.New("job timed out")

	ErrRegistryFull   = errors.New("job registry full")
	ErrAlreadyRunning = errors.New("job already running")
)

package scheduler

import "time"

// Fingerprint is the cheap change signature of a file.
type Fingerprint struct {
	ModTime time.Time
	Size    int64
}

func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.Size == o.Size && f.ModTime.Equal(o.ModTime)
}

// FileEntry is one scheduled file in the Table.
type FileEntry struct {
	Path        string
	Fingerprint Fingerprint
	// Raw is the expression text of the last successfully parsed marker line.
	Raw     string
	Spec    *ScheduleSpec
	Enabled bool
	// LastError holds the most recent parse failure while the last-known-good
	// schedule is kept. Empty once the file parses again.
	LastError    string
	DiscoveredAt time.Time
	UpdatedAt    time.Time
}

// DueSet is the path-ordered list of entries matching one tick.
type DueSet []FileEntry

func (d DueSet) Paths() []string {
	paths := make([]string, len(d))
	for i, e := range d {
		paths[i] = e.Path
	}
	return paths
}

type Outcome string

const (
	OutcomeSucceeded   Outcome = "succeeded"
	OutcomeFailed      Outcome = "failed"
	OutcomeTimedOut    Outcome = "timed_out"
	OutcomeStartFailed Outcome = "start_failed"
	OutcomeSkipped     Outcome = "skipped"
)

// ExecutionRecord describes one run (or skipped run) of a FileEntry.
type ExecutionRecord struct {
	ID        string        `json:"id"`
	Path      string        `json:"path"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	ExitCode  int           `json:"exit_code"`
	Outcome   Outcome       `json:"outcome"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
}

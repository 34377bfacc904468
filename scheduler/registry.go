package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunningJob is a handle on a launched job.
type RunningJob struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	StartedAt time.Time `json:"started_at"`
}

// registry tracks in-flight jobs. It is bounded so a pile-up of slow jobs
// cannot grow without limit.
type registry struct {
	max          int
	allowOverlap bool

	mu     sync.Mutex
	jobs   map[string]RunningJob
	byPath map[string]int
}

func newRegistry(max int, allowOverlap bool) *registry {
	return &registry{
		max:          max,
		allowOverlap: allowOverlap,
		jobs:         make(map[string]RunningJob),
		byPath:       make(map[string]int),
	}
}

func (r *registry) acquire(path string, now time.Time) (RunningJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.jobs) >= r.max {
		return RunningJob{}, fmt.Errorf("%w: %d jobs running", ErrRegistryFull, len(r.jobs))
	}
	if !r.allowOverlap && r.byPath[path] > 0 {
		return RunningJob{}, ErrAlreadyRunning
	}
	job := RunningJob{ID: uuid.NewString(), Path: path, StartedAt: now}
	r.jobs[job.ID] = job
	r.byPath[path]++
	return job, nil
}

func (r *registry) release(job RunningJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return
	}
	delete(r.jobs, job.ID)
	if r.byPath[job.Path]--; r.byPath[job.Path] <= 0 {
		delete(r.byPath, job.Path)
	}
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func (r *registry) snapshot() []RunningJob {
	r.mu.Lock()
	out := make([]RunningJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].Path < out[j].Path
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

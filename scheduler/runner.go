package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultJobTimeout  = time.Hour
	DefaultKillGrace   = 10 * time.Second
	DefaultMaxJobs     = 64
	DefaultOutputLimit = 64 * 1024
)

type RunnerOptions struct {
	// Timeout bounds a single run; zero disables it.
	Timeout      time.Duration
	KillGrace    time.Duration
	MaxJobs      int
	AllowOverlap bool
	OutputLimit  int
	// Env is appended to the minimal inherited environment (KEY=VALUE).
	Env []string
}

// Runner executes due files as independent processes. Dispatch returns
// immediately; every job runs in its own goroutine and is detached from the
// dispatching context's cancellation.
type Runner struct {
	opts     RunnerOptions
	history  HistoryStore
	registry *registry
	logger   *zap.SugaredLogger
	wg       sync.WaitGroup
}

func NewRunner(opts RunnerOptions, history HistoryStore, logger *zap.SugaredLogger) *Runner {
	if opts.KillGrace <= 0 {
		opts.KillGrace = DefaultKillGrace
	}
	if opts.OutputLimit <= 0 {
		opts.OutputLimit = DefaultOutputLimit
	}
	if history == nil {
		history = NewMemoryHistory(DefaultHistoryCapacity)
	}
	return &Runner{
		opts:     opts,
		history:  history,
		registry: newRegistry(opts.MaxJobs, opts.AllowOverlap),
		logger:   logger,
	}
}

func (r *Runner) Dispatch(ctx context.Context, due DueSet) {
	for _, e := range due {
		job, err := r.registry.acquire(e.Path, time.Now())
		if err != nil {
			r.logger.Warnw("job skipped", "path", e.Path, "outcome", OutcomeSkipped, "error", err)
			r.record(ctx, ExecutionRecord{
				ID:        uuid.NewString(),
				Path:      e.Path,
				StartedAt: time.Now(),
				ExitCode:  -1,
				Outcome:   OutcomeSkipped,
				Error:     err.Error(),
			})
			continue
		}
		r.logger.Infow("job dispatched", "path", e.Path, "job_id", job.ID, "schedule", e.Raw)
		r.wg.Add(1)
		go r.execute(context.WithoutCancel(ctx), job)
	}
}

func (r *Runner) execute(ctx context.Context, job RunningJob) {
	defer r.wg.Done()
	defer r.registry.release(job)
	rec := r.Run(ctx, job.ID, job.Path)
	r.logResult(rec)
	r.record(ctx, rec)
}

// Run executes path synchronously and describes the outcome.
func (r *Runner) Run(ctx context.Context, id, path string) ExecutionRecord {
	rec := ExecutionRecord{ID: id, Path: path, StartedAt: time.Now()}
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	out := &limitedBuffer{limit: r.opts.OutputLimit}
	cmd := exec.CommandContext(ctx, path)
	cmd.Dir = filepath.Dir(path)
	cmd.Env = r.environ(path)
	cmd.Stdout = out
	cmd.Stderr = out
	stop := configureProcess(cmd, r.opts.KillGrace)
	err := cmd.Run()
	stop()

	rec.Duration = time.Since(rec.StartedAt)
	rec.Output = out.String()

	var exitErr *exec.ExitError
	switch {
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		rec.Outcome = OutcomeTimedOut
		rec.ExitCode = -1
		rec.Error = fmt.Errorf("%w after %s", ErrJobTimedOut, r.opts.Timeout).Error()
	case err == nil:
		rec.Outcome = OutcomeSucceeded
	case errors.As(err, &exitErr):
		rec.Outcome = OutcomeFailed
		rec.ExitCode = exitErr.ExitCode()
		rec.Error = fmt.Errorf("%w: %v", ErrJobExecutionFailed, err).Error()
	default:
		rec.Outcome = OutcomeStartFailed
		rec.ExitCode = -1
		rec.Error = fmt.Errorf("%w: %v", ErrJobExecutionFailed, err).Error()
	}
	return rec
}

// Running reports the number of jobs still in flight.
func (r *Runner) Running() int {
	return r.registry.len()
}

func (r *Runner) Jobs() []RunningJob {
	return r.registry.snapshot()
}

// Wait blocks until every dispatched job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) History() HistoryStore {
	return r.history
}

func (r *Runner) record(ctx context.Context, rec ExecutionRecord) {
	if err := r.history.Record(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Warnf("record execution of %s failed: %v", rec.Path, err)
	}
}

func (r *Runner) logResult(rec ExecutionRecord) {
	fields := []interface{}{
		"path", rec.Path,
		"job_id", rec.ID,
		"outcome", rec.Outcome,
		"exit_code", rec.ExitCode,
		"duration", rec.Duration.String(),
	}
	if rec.Output != "" {
		fields = append(fields, "output", rec.Output)
	}
	if rec.Outcome == OutcomeSucceeded {
		r.logger.Infow("job finished", fields...)
		return
	}
	r.logger.Warnw("job finished", append(fields, "error", rec.Error)...)
}

var inheritedEnv = []string{"HOME", "LOGNAME", "USER", "SHELL", "LANG", "TZ"}

const defaultPath = "/usr/local/bin:/usr/bin:/bin"

func (r *Runner) environ(path string) []string {
	env := make([]string, 0, len(inheritedEnv)+len(r.opts.Env)+2)
	p := os.Getenv("PATH")
	if p == "" {
		p = defaultPath
	}
	env = append(env, "PATH="+p)
	for _, k := range inheritedEnv {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	env = append(env, r.opts.Env...)
	return append(env, "CRONTUB_JOB="+path)
}

// limitedBuffer keeps the first limit bytes written and drops the rest.
type limitedBuffer struct {
	mu        sync.Mutex
	limit     int
	buf       []byte
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - len(b.buf)
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return string(b.buf) + "...[truncated]"
	}
	return string(b.buf)
}

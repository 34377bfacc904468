//go:build unix

package scheduler

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu  sync.Mutex
	due []DueSet
}

func (r *recordingDispatcher) Dispatch(_ context.Context, due DueSet) {
	r.mu.Lock()
	r.due = append(r.due, due)
	r.mu.Unlock()
}

func newTestDaemon(t *testing.T, dir string, runner Dispatcher, policy MalformedPolicy) *Daemon {
	t.Helper()
	d, err := NewDaemon(Options{
		Dirs:     []string{dir},
		Watcher:  WatcherOptions{RequireExec: true},
		Policy:   policy,
		Location: time.UTC,
	}, runner, nopLogger())
	require.NoError(t, err)
	return d
}

func touch(t *testing.T, path string, at time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, at, at))
}

func TestDaemonRunsEveryMinuteJob(t *testing.T) {
	dir := t.TempDir()
	job := writeScript(t, dir, "job.sh", "#!/bin/sh\n#cron * * * * *\nexit 0\n")

	history := NewMemoryHistory(10)
	runner := NewRunner(RunnerOptions{Timeout: 10 * time.Second}, history, nopLogger())
	d := newTestDaemon(t, dir, runner, PolicyKeep)

	due := d.Tick(context.Background(), date(2024, time.July, 17, 13, 42))
	assert.Equal(t, []string{job}, due.Paths())
	runner.Wait()

	recs, err := history.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, job, recs[0].Path)
	assert.Equal(t, OutcomeSucceeded, recs[0].Outcome)
	assert.Equal(t, 0, recs[0].ExitCode)
}

func TestDaemonNewYearJobOnlyDueAtMidnightJanuaryFirst(t *testing.T) {
	dir := t.TempDir()
	job := writeScript(t, dir, "job.sh", "#!/bin/sh\n#cron 0 0 1 1 *\nexit 0\n")
	rec := &recordingDispatcher{}
	d := newTestDaemon(t, dir, rec, PolicyKeep)
	ctx := context.Background()

	assert.Equal(t, []string{job}, d.Tick(ctx, date(2024, time.January, 1, 0, 0)).Paths())
	for _, tick := range []time.Time{
		date(2024, time.January, 1, 0, 1),
		date(2024, time.January, 1, 1, 0),
		date(2024, time.January, 2, 0, 0),
		date(2024, time.February, 1, 0, 0),
	} {
		assert.Empty(t, d.Tick(ctx, tick), "tick %s", tick)
	}
	assert.Len(t, rec.due, 1)
}

func TestDaemonRemovedFileIsNeverDueAgain(t *testing.T) {
	dir := t.TempDir()
	job := writeScript(t, dir, "job.sh", "#!/bin/sh\n#cron * * * * *\n")
	d := newTestDaemon(t, dir, &recordingDispatcher{}, PolicyKeep)
	ctx := context.Background()

	assert.Len(t, d.Tick(ctx, date(2024, time.May, 1, 10, 0)), 1)
	require.NoError(t, os.Remove(job))

	assert.Empty(t, d.Tick(ctx, date(2024, time.May, 1, 10, 1)))
	assert.Equal(t, 0, d.Table().Len())
	assert.Empty(t, d.Tick(ctx, date(2024, time.May, 1, 10, 2)))
}

func TestDaemonPicksUpScheduleEdits(t *testing.T) {
	dir := t.TempDir()
	job := writeScript(t, dir, "job.sh", "#!/bin/sh\n#cron 0 0 1 1 *\n")
	d := newTestDaemon(t, dir, &recordingDispatcher{}, PolicyKeep)
	ctx := context.Background()

	assert.Empty(t, d.Tick(ctx, date(2024, time.May, 1, 10, 0)))

	require.NoError(t, os.WriteFile(job, []byte("#!/bin/sh\n#cron */5 * * * *\n"), 0o755))
	touch(t, job, time.Now().Add(time.Hour))
	assert.Equal(t, []string{job}, d.Tick(ctx, date(2024, time.May, 1, 10, 5)).Paths())

	e, ok := d.Table().Get(job)
	require.True(t, ok)
	assert.Equal(t, "*/5 * * * *", e.Raw)
}

func TestDaemonMalformedEditKeepsLastKnownGood(t *testing.T) {
	dir := t.TempDir()
	job := writeScript(t, dir, "job.sh", "#!/bin/sh\n#cron * * * * *\n")
	d := newTestDaemon(t, dir, &recordingDispatcher{}, PolicyKeep)
	ctx := context.Background()
	d.Reconcile()

	require.NoError(t, os.WriteFile(job, []byte("#!/bin/sh\n#cron * * * 13 *\n"), 0o755))
	touch(t, job, time.Now().Add(time.Hour))

	assert.Equal(t, []string{job}, d.Tick(ctx, date(2024, time.May, 1, 10, 0)).Paths())
	e, _ := d.Table().Get(job)
	assert.NotEmpty(t, e.LastError)
}

func TestDaemonMalformedEditDisables(t *testing.T) {
	dir := t.TempDir()
	job := writeScript(t, dir, "job.sh", "#!/bin/sh\n#cron * * * * *\n")
	d := newTestDaemon(t, dir, &recordingDispatcher{}, PolicyDisable)
	ctx := context.Background()
	d.Reconcile()

	require.NoError(t, os.WriteFile(job, []byte("#!/bin/sh\n#cron * * * 13 *\n"), 0o755))
	touch(t, job, time.Now().Add(time.Hour))

	assert.Empty(t, d.Tick(ctx, date(2024, time.May, 1, 10, 0)))
	e, ok := d.Table().Get(job)
	require.True(t, ok)
	assert.False(t, e.Enabled)
}

func TestDaemonMalformedNewFileIsExcluded(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "bad.sh", "#!/bin/sh\n#cron 0 25 * * *\n")
	writeScript(t, dir, "plain.sh", "#!/bin/sh\necho no schedule\n")
	d := newTestDaemon(t, dir, &recordingDispatcher{}, PolicyKeep)

	d.Reconcile()
	assert.Equal(t, 0, d.Table().Len())
}

func TestDaemonSurvivesPanickingStage(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "job.sh", "#!/bin/sh\n#cron * * * * *\n")

	calls := 0
	logger, logs := observedLogger()
	d, err := NewDaemon(Options{Dirs: []string{dir}, Location: time.UTC}, DispatcherFunc(func(context.Context, DueSet) {
		calls++
		if calls == 1 {
			panic("dispatcher exploded")
		}
	}), logger)
	require.NoError(t, err)
	ctx := context.Background()

	assert.NotPanics(t, func() { d.Tick(ctx, date(2024, time.May, 1, 10, 0)) })
	assert.Equal(t, 1, logs.FilterMessage("stage panicked").Len())
	assert.Equal(t, StateIdle, d.Scheduler().State())

	assert.Len(t, d.Tick(ctx, date(2024, time.May, 1, 10, 1)), 1)
	assert.Equal(t, 2, calls)
}

func TestDaemonRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "job.sh", "#!/bin/sh\n#cron * * * * *\n")

	fired := make(chan DueSet, 16)
	d, err := NewDaemon(Options{
		Dirs:     []string{dir},
		Interval: 50 * time.Millisecond,
		Notify:   true,
	}, DispatcherFunc(func(_ context.Context, due DueSet) {
		select {
		case fired <- due:
		default:
		}
	}), nopLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case due := <-fired:
		assert.Len(t, due, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("no tick dispatched")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewDaemonValidation(t *testing.T) {
	_, err := NewDaemon(Options{Dirs: []string{t.TempDir()}}, nil, nopLogger())
	assert.Error(t, err)

	_, err = NewDaemon(Options{}, &recordingDispatcher{}, nopLogger())
	assert.Error(t, err)
}

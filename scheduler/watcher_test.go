package scheduler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paths(states []FileState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = s.Path
	}
	return out
}

func TestWatcherFirstScanThenIdempotent(t *testing.T) {
	dir := t.TempDir()
	b := writeScript(t, dir, "b.sh", "#cron * * * * *\n")
	a := writeScript(t, dir, "a.sh", "#cron * * * * *\n")

	w, err := NewWatcher([]string{dir}, WatcherOptions{RequireExec: true}, nopLogger())
	require.NoError(t, err)

	first := w.Scan()
	assert.Equal(t, []string{a, b}, paths(first.Added))
	assert.Empty(t, first.Changed)
	assert.Empty(t, first.Removed)

	second := w.Scan()
	assert.True(t, second.Empty())
	assert.Empty(t, second.Errors)
}

func TestWatcherDetectsChangesAndRemovals(t *testing.T) {
	dir := t.TempDir()
	a := writeScript(t, dir, "a.sh", "#cron * * * * *\n")
	b := writeScript(t, dir, "b.sh", "#cron * * * * *\n")

	w, err := NewWatcher([]string{dir}, WatcherOptions{RequireExec: true}, nopLogger())
	require.NoError(t, err)
	w.Scan()

	require.NoError(t, os.WriteFile(a, []byte("#cron 0 0 1 1 *\n"), 0o755))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(a, later, later))
	require.NoError(t, os.Remove(b))
	c := writeScript(t, dir, "c.sh", "#cron * * * * *\n")

	delta := w.Scan()
	assert.Equal(t, []string{c}, paths(delta.Added))
	assert.Equal(t, []string{a}, paths(delta.Changed))
	assert.Equal(t, []string{b}, delta.Removed)
}

func TestWatcherIgnoresEditWithSameFingerprint(t *testing.T) {
	dir := t.TempDir()
	a := writeScript(t, dir, "a.sh", "#cron 1 * * * *\n")
	info, err := os.Stat(a)
	require.NoError(t, err)

	w, err := NewWatcher([]string{dir}, WatcherOptions{}, nopLogger())
	require.NoError(t, err)
	w.Scan()

	// Same size, mtime restored: mtime+size fingerprinting cannot see it.
	require.NoError(t, os.WriteFile(a, []byte("#cron 2 * * * *\n"), 0o755))
	require.NoError(t, os.Chtimes(a, info.ModTime(), info.ModTime()))

	assert.True(t, w.Scan().Empty())
}

func TestWatcherInclusionRules(t *testing.T) {
	dir := t.TempDir()
	exe := writeScript(t, dir, "job.sh", "#cron * * * * *\n")
	writeScript(t, dir, ".hidden.sh", "#cron * * * * *\n")
	plain := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(plain, []byte("#cron * * * * *\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.sh"), 0o755))

	w, err := NewWatcher([]string{dir}, WatcherOptions{RequireExec: true}, nopLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{exe}, paths(w.Scan().Added))

	w, err = NewWatcher([]string{dir}, WatcherOptions{}, nopLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{exe, plain}, paths(w.Scan().Added))

	w, err = NewWatcher([]string{dir}, WatcherOptions{Pattern: "*.txt"}, nopLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{plain}, paths(w.Scan().Added))
}

func TestWatcherRecursive(t *testing.T) {
	dir := t.TempDir()
	top := writeScript(t, dir, "top.sh", "#cron * * * * *\n")
	nested := writeScript(t, dir, filepath.Join("daily", "nested.sh"), "#cron * * * * *\n")
	writeScript(t, dir, filepath.Join(".git", "hook.sh"), "#cron * * * * *\n")

	flat, err := NewWatcher([]string{dir}, WatcherOptions{}, nopLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{top}, paths(flat.Scan().Added))

	deep, err := NewWatcher([]string{dir}, WatcherOptions{Recursive: true}, nopLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{nested, top}, paths(deep.Scan().Added))
}

func TestWatcherUnreadableDirectory(t *testing.T) {
	good := t.TempDir()
	gone := filepath.Join(t.TempDir(), "jobs")
	job := writeScript(t, gone, "job.sh", "#cron * * * * *\n")
	keep := writeScript(t, good, "keep.sh", "#cron * * * * *\n")

	logger, logs := observedLogger()
	w, err := NewWatcher([]string{gone, good}, WatcherOptions{}, logger)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{job, keep}, paths(w.Scan().Added))

	require.NoError(t, os.RemoveAll(gone))
	delta := w.Scan()
	require.Len(t, delta.Errors, 1)
	assert.True(t, errors.Is(delta.Errors[0], ErrWatchDirectoryUnreadable))
	assert.Equal(t, []string{job}, delta.Removed)
	assert.Empty(t, delta.Added)
	assert.Equal(t, 1, logs.FilterMessage("watch directory unreadable").Len())
}

func TestWatcherForget(t *testing.T) {
	dir := t.TempDir()
	a := writeScript(t, dir, "a.sh", "#cron * * * * *\n")
	w, err := NewWatcher([]string{dir}, WatcherOptions{}, nopLogger())
	require.NoError(t, err)
	w.Scan()

	w.Forget(a)
	assert.Equal(t, []string{a}, paths(w.Scan().Added))
}

func TestNewWatcherValidation(t *testing.T) {
	_, err := NewWatcher(nil, WatcherOptions{}, nopLogger())
	assert.Error(t, err)

	_, err = NewWatcher([]string{t.TempDir()}, WatcherOptions{Pattern: "["}, nopLogger())
	assert.Error(t, err)
}

package scheduler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type WatcherOptions struct {
	// Recursive descends into subdirectories. Hidden directories are skipped.
	Recursive bool
	// Pattern is a filepath.Match glob applied to the base name; empty matches all.
	Pattern string
	// RequireExec only accepts files with at least one execute bit set.
	RequireExec bool
}

type FileState struct {
	Path        string
	Fingerprint Fingerprint
}

// Delta is the difference between two consecutive scans. The three lists are
// disjoint and sorted by path.
type Delta struct {
	Added   []FileState
	Changed []FileState
	Removed []string
	// Errors holds the directories that could not be read during the scan.
	Errors []error
}

func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// Watcher discovers candidate files under a set of root directories and
// reports what changed since the previous Scan.
type Watcher struct {
	dirs   []string
	opts   WatcherOptions
	logger *zap.SugaredLogger

	mu    sync.Mutex
	known map[string]Fingerprint
}

func NewWatcher(dirs []string, opts WatcherOptions, logger *zap.SugaredLogger) (*Watcher, error) {
	if len(dirs) == 0 {
		return nil, errors.New("no watch directories configured")
	}
	if opts.Pattern != "" {
		if _, err := filepath.Match(opts.Pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", opts.Pattern, err)
		}
	}
	abs := make([]string, 0, len(dirs))
	for _, d := range dirs {
		p, err := filepath.Abs(d)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", d, err)
		}
		abs = append(abs, p)
	}
	return &Watcher{
		dirs:   abs,
		opts:   opts,
		logger: logger,
		known:  make(map[string]Fingerprint),
	}, nil
}

func (w *Watcher) Dirs() []string {
	return append([]string(nil), w.dirs...)
}

// Scan lists every candidate file and diffs it against the previous scan.
// The first scan reports everything as added.
func (w *Watcher) Scan() Delta {
	w.mu.Lock()
	defer w.mu.Unlock()

	var delta Delta
	current := make(map[string]Fingerprint, len(w.known))
	for _, dir := range w.dirs {
		delta.Errors = append(delta.Errors, w.collect(dir, current)...)
	}

	for path, fp := range current {
		old, ok := w.known[path]
		switch {
		case !ok:
			delta.Added = append(delta.Added, FileState{Path: path, Fingerprint: fp})
		case !old.Equal(fp):
			delta.Changed = append(delta.Changed, FileState{Path: path, Fingerprint: fp})
		}
	}
	for path := range w.known {
		if _, ok := current[path]; !ok {
			delta.Removed = append(delta.Removed, path)
		}
	}
	w.known = current

	sort.Slice(delta.Added, func(i, j int) bool { return delta.Added[i].Path < delta.Added[j].Path })
	sort.Slice(delta.Changed, func(i, j int) bool { return delta.Changed[i].Path < delta.Changed[j].Path })
	sort.Strings(delta.Removed)
	return delta
}

// Forget drops what is known about path so the next Scan reports it as added.
func (w *Watcher) Forget(path string) {
	w.mu.Lock()
	delete(w.known, path)
	w.mu.Unlock()
}

func (w *Watcher) collect(dir string, out map[string]Fingerprint) []error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrWatchDirectoryUnreadable, dir, err)
		w.logger.Warnw("watch directory unreadable", "path", dir, "error", err)
		return []error{err}
	}
	var errs []error
	for _, de := range entries {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		if de.IsDir() {
			if w.opts.Recursive {
				errs = append(errs, w.collect(path, out)...)
			}
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			w.logger.Debugw("skip unreadable file", "path", path, "error", err)
			continue
		}
		if !w.include(name, info) {
			continue
		}
		out[path] = Fingerprint{ModTime: info.ModTime(), Size: info.Size()}
	}
	return errs
}

func (w *Watcher) include(name string, info os.FileInfo) bool {
	if !info.Mode().IsRegular() {
		return false
	}
	if w.opts.RequireExec && info.Mode().Perm()&0o111 == 0 {
		return false
	}
	if w.opts.Pattern != "" {
		ok, _ := filepath.Match(w.opts.Pattern, name)
		return ok
	}
	return true
}

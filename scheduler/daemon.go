package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// headerLimit caps how much of a file is read to look for the marker line.
const headerLimit = 64 * 1024

type Options struct {
	Dirs        []string
	Watcher     WatcherOptions
	Marker      string
	HeaderLines int
	Policy      MalformedPolicy
	// Interval is the tick period; one minute unless testing.
	Interval time.Duration
	Location *time.Location
	// Workers bounds parallel header reads during reconciliation.
	Workers int
	// Notify reconciles early when fsnotify reports a change.
	Notify bool
}

// Daemon runs the tick loop: Watcher, Table, Scheduler and Dispatcher in
// that order. Failures in one stage are logged and never end the loop.
type Daemon struct {
	opts      Options
	watcher   *Watcher
	table     *Table
	scheduler *Scheduler
	notifier  *Notifier
	logger    *zap.SugaredLogger
	now       func() time.Time

	reconcileMu sync.Mutex
}

func NewDaemon(opts Options, runner Dispatcher, logger *zap.SugaredLogger) (*Daemon, error) {
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	w, err := NewWatcher(opts.Dirs, opts.Watcher, logger)
	if err != nil {
		return nil, err
	}
	table := NewTable(opts.Marker, opts.HeaderLines, opts.Policy)
	return &Daemon{
		opts:      opts,
		watcher:   w,
		table:     table,
		scheduler: NewScheduler(table, runner, opts.Interval, opts.Location, logger),
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (d *Daemon) Table() *Table {
	return d.table
}

func (d *Daemon) Scheduler() *Scheduler {
	return d.scheduler
}

// Run blocks until ctx is cancelled. It reconciles once at start, then on
// every tick boundary. An in-flight reconciliation always completes before
// Run returns; launched jobs are not waited for.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Infow("daemon starting",
		"dirs", d.watcher.Dirs(),
		"interval", d.opts.Interval.String(),
		"recursive", d.opts.Watcher.Recursive,
	)
	d.safely("reconcile", d.Reconcile)

	var wake <-chan struct{}
	if d.opts.Notify {
		n, err := NewNotifier(d.watcher.Dirs(), d.opts.Watcher.Recursive, d.logger)
		if err != nil {
			d.logger.Warnw("change notification disabled", "error", err)
		} else {
			d.notifier = n
			wake = n.Wake()
			defer n.Close()
		}
	}

	timer := time.NewTimer(d.scheduler.untilNextTick(d.now()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			d.reconcileMu.Lock()
			d.reconcileMu.Unlock()
			d.logger.Infow("daemon stopped", "jobs", d.table.Len())
			return nil
		case <-wake:
			d.safely("reconcile", d.Reconcile)
		case <-timer.C:
			d.Tick(ctx, d.now())
			timer.Reset(d.scheduler.untilNextTick(d.now()))
		}
	}
}

// Tick reconciles the table with the file system and then evaluates and
// dispatches the tick containing now.
func (d *Daemon) Tick(ctx context.Context, now time.Time) DueSet {
	d.safely("reconcile", d.Reconcile)
	var due DueSet
	d.safely("schedule", func() {
		due = d.scheduler.Tick(ctx, now)
	})
	return due
}

// Reconcile applies one watcher scan to the table.
func (d *Daemon) Reconcile() {
	d.reconcileMu.Lock()
	defer d.reconcileMu.Unlock()

	delta := d.watcher.Scan()
	for _, path := range delta.Removed {
		if d.table.Remove(path) {
			d.logger.Infow("job removed", "path", path)
		}
	}

	changed := make([]FileState, 0, len(delta.Added)+len(delta.Changed))
	changed = append(changed, delta.Added...)
	changed = append(changed, delta.Changed...)
	if len(changed) == 0 {
		return
	}

	contents := make([][]byte, len(changed))
	var g errgroup.Group
	g.SetLimit(d.opts.Workers)
	for i, st := range changed {
		i, st := i, st
		g.Go(func() error {
			b, err := readHeader(st.Path)
			if err != nil {
				d.headerFailed(st.Path, err)
				return nil
			}
			contents[i] = b
			return nil
		})
	}
	_ = g.Wait()

	for i, st := range changed {
		if contents[i] == nil {
			continue
		}
		res, err := d.table.Upsert(st.Path, st.Fingerprint, contents[i])
		d.logUpsert(st.Path, res, err)
	}
}

func (d *Daemon) headerFailed(path string, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		if d.table.Remove(path) {
			d.logger.Infow("job removed", "path", path)
		}
		return
	}
	// Retry on the next scan.
	d.watcher.Forget(path)
	d.logger.Warnw("cannot read file", "path", path, "error", err)
}

func (d *Daemon) logUpsert(path string, res UpsertResult, err error) {
	switch res {
	case Added, Updated:
		e, _ := d.table.Get(path)
		d.logger.Infow("job scheduled", "path", path, "schedule", e.Raw, "result", res.String())
	case Unscheduled:
		d.logger.Infow("job unscheduled", "path", path, "reason", "marker removed")
	case NotScheduled:
		d.logger.Debugw("file has no schedule", "path", path)
	case KeptLastKnownGood:
		e, _ := d.table.Get(path)
		d.logger.Warnw("malformed schedule, keeping last-known-good", "path", path, "schedule", e.Raw, "error", err)
	case Disabled:
		d.logger.Warnw("malformed schedule, job disabled", "path", path, "error", err)
	case Rejected:
		d.logger.Warnw("malformed schedule, file ignored", "path", path, "error", err)
	}
}

func (d *Daemon) safely(stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("stage panicked",
				"stage", stage,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, headerLimit))
}

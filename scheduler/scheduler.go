package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type State int32

const (
	StateIdle State = iota
	StateEvaluating
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateEvaluating:
		return "evaluating"
	case StateDispatching:
		return "dispatching"
	default:
		return "idle"
	}
}

// Dispatcher hands due entries to something that runs them. Dispatch must
// not wait for the jobs to finish.
type Dispatcher interface {
	Dispatch(ctx context.Context, due DueSet)
}

// Evaluate returns the enabled entries whose schedule matches t, in the
// order given (Table.Snapshot orders by path).
func Evaluate(entries []FileEntry, t time.Time) DueSet {
	var due DueSet
	for _, e := range entries {
		if !e.Enabled || e.Spec == nil {
			continue
		}
		if e.Spec.Match(t) {
			due = append(due, e)
		}
	}
	return due
}

// Scheduler turns ticks into dispatched DueSets. Each tick instant is
// evaluated at most once and missed ticks are never replayed.
type Scheduler struct {
	table    *Table
	runner   Dispatcher
	interval time.Duration
	loc      *time.Location
	logger   *zap.SugaredLogger

	state      atomic.Int32
	mu         sync.Mutex
	lastMinute time.Time
}

func NewScheduler(table *Table, runner Dispatcher, interval time.Duration, loc *time.Location, logger *zap.SugaredLogger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		table:    table,
		runner:   runner,
		interval: interval,
		loc:      loc,
		logger:   logger,
	}
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// TickTime maps a wall-clock instant onto its tick boundary in the
// scheduler's location. Whole-minute intervals are aligned to local
// midnight so half-hour zones tick on local minute boundaries.
func (s *Scheduler) TickTime(now time.Time) time.Time {
	now = now.In(s.loc)
	if s.interval < time.Minute || s.interval%time.Minute != 0 {
		return now.Truncate(s.interval)
	}
	t := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, s.loc)
	step := int(s.interval / time.Minute)
	if off := (t.Hour()*60 + t.Minute()) % step; off != 0 {
		t = t.Add(-time.Duration(off) * time.Minute)
	}
	return t
}

// Tick evaluates the table for the tick containing now and dispatches the
// result. Schedules have minute resolution, so a minute that was already
// evaluated yields nil however short the interval.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) DueSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	tick := s.TickTime(now)
	minute := tick.Truncate(time.Minute)
	if !minute.After(s.lastMinute) {
		s.logger.Debugw("tick already evaluated", "tick", tick)
		return nil
	}
	s.lastMinute = minute

	s.state.Store(int32(StateEvaluating))
	defer s.state.Store(int32(StateIdle))
	due := Evaluate(s.table.Snapshot(), tick)
	s.logger.Debugw("tick evaluated", "tick", tick, "due", len(due))
	if len(due) == 0 {
		return nil
	}

	s.state.Store(int32(StateDispatching))
	s.runner.Dispatch(ctx, due)
	return due
}

func (s *Scheduler) untilNextTick(now time.Time) time.Duration {
	return s.TickTime(now).Add(s.interval).Sub(now)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, due DueSet)

func (f DispatcherFunc) Dispatch(ctx context.Context, due DueSet) {
	f(ctx, due)
}

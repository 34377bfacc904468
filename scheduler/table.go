package scheduler

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// MalformedPolicy decides what happens to a scheduled file whose marker line
// stops parsing.
type MalformedPolicy string

const (
	// PolicyKeep keeps running the last-known-good schedule.
	PolicyKeep MalformedPolicy = "keep"
	// PolicyDisable keeps the last-known-good schedule but stops running it
	// until the file parses again.
	PolicyDisable MalformedPolicy = "disable"
)

type UpsertResult int

const (
	Unchanged UpsertResult = iota
	Added
	Updated
	Unscheduled
	NotScheduled
	KeptLastKnownGood
	Disabled
	Rejected
)

func (r UpsertResult) String() string {
	switch r {
	case Added:
		return "added"
	case Updated:
		return "updated"
	case Unscheduled:
		return "unscheduled"
	case NotScheduled:
		return "not_scheduled"
	case KeptLastKnownGood:
		return "kept_last_known_good"
	case Disabled:
		return "disabled"
	case Rejected:
		return "rejected"
	default:
		return "unchanged"
	}
}

// Table maps file paths to their compiled schedules. It is the only owner of
// FileEntry values; callers only ever see copies.
type Table struct {
	marker      string
	headerLines int
	policy      MalformedPolicy
	now         func() time.Time

	mu      sync.RWMutex
	entries map[string]*FileEntry
}

func NewTable(marker string, headerLines int, policy MalformedPolicy) *Table {
	if policy != PolicyDisable {
		policy = PolicyKeep
	}
	return &Table{
		marker:      marker,
		headerLines: headerLines,
		policy:      policy,
		now:         time.Now,
		entries:     make(map[string]*FileEntry),
	}
}

// Upsert re-parses content for path. The returned error is the parse error,
// if any; it is informational since the table has already applied its policy.
func (t *Table) Upsert(path string, fp Fingerprint, content []byte) (UpsertResult, error) {
	spec, raw, err := ExtractSchedule(content, t.marker, t.headerLines)
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()
	prev, exists := t.entries[path]

	switch {
	case err == nil:
		if exists {
			prev.Fingerprint = fp
			prev.Raw = raw
			prev.Spec = spec
			prev.Enabled = true
			prev.LastError = ""
			prev.UpdatedAt = now
			return Updated, nil
		}
		t.entries[path] = &FileEntry{
			Path:         path,
			Fingerprint:  fp,
			Raw:          raw,
			Spec:         spec,
			Enabled:      true,
			DiscoveredAt: now,
			UpdatedAt:    now,
		}
		return Added, nil

	case errors.Is(err, ErrNoScheduleFound):
		if exists {
			delete(t.entries, path)
			return Unscheduled, err
		}
		return NotScheduled, err

	default:
		if !exists {
			return Rejected, err
		}
		prev.Fingerprint = fp
		prev.LastError = err.Error()
		prev.UpdatedAt = now
		if t.policy == PolicyDisable {
			prev.Enabled = false
			return Disabled, err
		}
		return KeptLastKnownGood, err
	}
}

// Remove deletes path and reports whether it was present.
func (t *Table) Remove(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[path]; !ok {
		return false
	}
	delete(t.entries, path)
	return true
}

func (t *Table) Get(path string) (FileEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[path]
	if !ok {
		return FileEntry{}, false
	}
	return *e, true
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Snapshot returns a path-ordered copy of every entry. Specs are immutable
// once compiled, so sharing the pointers is safe.
func (t *Table) Snapshot() []FileEntry {
	t.mu.RLock()
	out := make([]FileEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

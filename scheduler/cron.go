package scheduler

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

const (
	fieldMinute = iota
	fieldHour
	fieldDom
	fieldMonth
	fieldDow
	fieldCount
)

var fieldBounds = [fieldCount]struct {
	name     string
	min, max int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// fieldSet is the accepted value set of one cron field. Bit v is set when
// value v matches.
type fieldSet struct {
	any  bool
	mask uint64
}

func (f fieldSet) has(v int) bool {
	return f.mask&(1<<uint(v)) != 0
}

// ScheduleSpec is a compiled five-field cron expression
// (minute hour day-of-month month day-of-week). Day-of-week 0 is Sunday.
type ScheduleSpec struct {
	fields [fieldCount]fieldSet
}

// ParseSchedule compiles a five-field cron expression. Any problem is
// reported as ErrMalformedSchedule.
func ParseSchedule(expr string) (*ScheduleSpec, error) {
	parts := strings.Fields(expr)
	if len(parts) != fieldCount {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedSchedule, fieldCount, len(parts))
	}
	s := &ScheduleSpec{}
	for i, part := range parts {
		f, err := parseField(part, fieldBounds[i].min, fieldBounds[i].max)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedSchedule, fieldBounds[i].name, err)
		}
		s.fields[i] = f
	}
	return s, nil
}

// Match reports whether t falls on the schedule. When both day fields are
// restricted either may match, otherwise both must.
func (s *ScheduleSpec) Match(t time.Time) bool {
	if !s.fields[fieldMinute].has(t.Minute()) ||
		!s.fields[fieldHour].has(t.Hour()) ||
		!s.fields[fieldMonth].has(int(t.Month())) {
		return false
	}
	return s.matchDay(t)
}

func (s *ScheduleSpec) matchDay(t time.Time) bool {
	dom := s.fields[fieldDom]
	dow := s.fields[fieldDow]
	domOK := dom.has(t.Day())
	dowOK := dow.has(int(t.Weekday()))
	if dom.any || dow.any {
		return domOK && dowOK
	}
	return domOK || dowOK
}

// maxSearch bounds Next; long enough to reach any 29 February.
const maxSearch = 8 * 366 * 24 * time.Hour

// Next returns the first minute strictly after t that matches the schedule,
// in t's location. It returns false when nothing matches within eight years
// (for example "0 0 31 2 *").
func (s *ScheduleSpec) Next(t time.Time) (time.Time, bool) {
	loc := t.Location()
	limit := t.Add(maxSearch)
	t = t.Truncate(time.Minute).Add(time.Minute)
	for t.Before(limit) {
		if !s.fields[fieldMonth].has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !s.matchDay(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !s.fields[fieldHour].has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			continue
		}
		if !s.fields[fieldMinute].has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

// String renders the spec in canonical form: "*" for wildcard fields and a
// sorted comma list otherwise. The result parses back to an equal spec.
func (s *ScheduleSpec) String() string {
	out := make([]string, fieldCount)
	for i, f := range s.fields {
		if f.any {
			out[i] = "*"
			continue
		}
		values := make([]string, 0, bits.OnesCount64(f.mask))
		for v := fieldBounds[i].min; v <= fieldBounds[i].max; v++ {
			if f.has(v) {
				values = append(values, strconv.Itoa(v))
			}
		}
		out[i] = strings.Join(values, ",")
	}
	return strings.Join(out, " ")
}

func parseField(field string, min, max int) (fieldSet, error) {
	if field == "*" {
		return fieldSet{any: true, mask: span(min, max, 1)}, nil
	}
	var f fieldSet
	for _, token := range strings.Split(field, ",") {
		if token == "" {
			return fieldSet{}, fmt.Errorf("empty list element in %q", field)
		}
		mask, err := parseToken(token, min, max)
		if err != nil {
			return fieldSet{}, err
		}
		f.mask |= mask
	}
	if f.mask == 0 {
		return fieldSet{}, fmt.Errorf("no values in %q", field)
	}
	return f, nil
}

func parseToken(token string, min, max int) (uint64, error) {
	base, stepText, hasStep := strings.Cut(token, "/")
	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepText)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("step must be a positive integer in %q", token)
		}
		step = n
	}

	var lo, hi int
	switch {
	case base == "*":
		lo, hi = min, max
	case strings.Contains(base, "-"):
		a, b, _ := strings.Cut(base, "-")
		start, err := atoi(a)
		if err != nil {
			return 0, err
		}
		end, err := atoi(b)
		if err != nil {
			return 0, err
		}
		if start > end {
			return 0, fmt.Errorf("invalid range %d-%d", start, end)
		}
		lo, hi = start, end
	default:
		v, err := atoi(base)
		if err != nil {
			return 0, err
		}
		lo, hi = v, v
		if hasStep {
			hi = max
		}
	}
	if lo < min || hi > max || lo > max {
		return 0, fmt.Errorf("%q out of range %d-%d", token, min, max)
	}
	return span(lo, hi, step), nil
}

func atoi(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || s == "" || s[0] == '+' || s[0] == '-' {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func span(lo, hi, step int) uint64 {
	var mask uint64
	for v := lo; v <= hi; v += step {
		mask |= 1 << uint(v)
	}
	return mask
}

package scheduler

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

const (
	DefaultMarker      = "#cron"
	DefaultHeaderLines = 10
)

// ExtractSchedule looks for the first marker line within the first maxLines
// lines of content and compiles the five fields that follow the marker.
// It returns the compiled spec and the expression text.
func ExtractSchedule(content []byte, marker string, maxLines int) (*ScheduleSpec, string, error) {
	if marker == "" {
		marker = DefaultMarker
	}
	if maxLines <= 0 {
		maxLines = DefaultHeaderLines
	}
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 4096), 64*1024)
	for n := 0; n < maxLines && sc.Scan(); n++ {
		expr, ok := cutMarker(sc.Text(), marker)
		if !ok {
			continue
		}
		spec, err := ParseSchedule(expr)
		if err != nil {
			return nil, expr, fmt.Errorf("line %d: %w", n+1, err)
		}
		return spec, expr, nil
	}
	return nil, "", ErrNoScheduleFound
}

// cutMarker returns the text after marker when line is a marker line. The
// marker must be followed by whitespace or the end of the line, so "#cronjob"
// is not a marker line for "#cron".
func cutMarker(line, marker string) (string, bool) {
	line = strings.TrimSpace(line)
	rest, ok := strings.CutPrefix(line, marker)
	if !ok {
		return "", false
	}
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

package parsing

import (
	"encoding/csv"
	"fmt"
	"strings"
	"time"
)

// timeLayout is the console's timestamp format once sub-seconds are removed.
const timeLayout = "2006-01-02 15:04:05"

// splitRecord splits one console line into its fields. Fields holding the
// delimiter arrive quoted.
func splitRecord(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedRecord, line, err)
	}
	return fields, nil
}

// splitFields is splitRecord plus a lower bound on the field count.
func splitFields(line string, want int) ([]string, error) {
	fields, err := splitRecord(line)
	if err != nil {
		return nil, err
	}
	if len(fields) < want {
		return nil, fmt.Errorf("%w: %q has %d fields, want %d", ErrMalformedRecord, line, len(fields), want)
	}
	return fields, nil
}

func blank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// stripSubSeconds drops a ".123456" suffix from a console timestamp.
func stripSubSeconds(ts string) string {
	ts = strings.TrimSpace(ts)
	if i := strings.IndexByte(ts, '.'); i >= 0 {
		ts = ts[:i]
	}
	return strings.TrimSpace(ts)
}

// parseTimestamp reads a console timestamp in loc. Blank input yields the
// zero time.
func parseTimestamp(ts string, loc *time.Location) (time.Time, error) {
	ts = stripSubSeconds(ts)
	if ts == "" {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(timeLayout, ts, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrMalformedRecord, ts, err)
	}
	return t, nil
}

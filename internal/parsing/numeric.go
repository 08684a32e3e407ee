// Package parsing turns the comma-delimited output of the backup server's
// admin console into the Node/Group model used by reports and mails.
//
// The console prints numbers in the server's locale: "." groups thousands,
// "," separates decimals, sizes carry a unit suffix and durations are clock
// strings whose hour part may exceed 23.
package parsing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var (
	// ErrMalformedNumber is returned when a value cannot be read as a count,
	// size or duration.
	ErrMalformedNumber = errors.New("malformed number")
	// ErrMalformedRecord is returned when a record has the wrong shape.
	ErrMalformedRecord = errors.New("malformed record")
)

// metadataDelim starts the "(SESSION: n)" suffix of activity-log messages.
const metadataDelim = "("

// Kind tells which lexical form a parsed value had.
type Kind int

const (
	KindCount Kind = iota
	KindSize
	KindDuration
)

func (k Kind) String() string {
	switch k {
	case KindSize:
		return "size"
	case KindDuration:
		return "duration"
	default:
		return "count"
	}
}

// Unit is a decimal size unit used both for parsing and as a display hint.
type Unit string

const (
	UnitB  Unit = "B"
	UnitKB Unit = "KB"
	UnitMB Unit = "MB"
	UnitGB Unit = "GB"
	UnitTB Unit = "TB"
)

var unitFactors = map[Unit]float64{
	UnitB:  1,
	UnitKB: 1e3,
	UnitMB: 1e6,
	UnitGB: 1e9,
	UnitTB: 1e12,
}

// Factor returns the number of bytes in one u.
func (u Unit) Factor() (float64, bool) {
	f, ok := unitFactors[u]
	return f, ok
}

// Value is a parsed magnitude. Sizes are in bytes (per second for rates),
// durations in seconds.
type Value struct {
	Kind      Kind
	Magnitude float64
}

// Duration converts a duration value to a time.Duration.
func (v Value) Duration() time.Duration {
	return time.Duration(v.Magnitude) * time.Second
}

// ParseValue reads the text that follows a label in an activity-log message.
//
//	"  11.765.672  (SESSION: 691911)" -> count 11765672
//	"67,87 TB"                        -> size 67.87e12
//	"43.416,17 KB/sec"                -> size 43416170
//	"26:00:00"                        -> duration 93600
func ParseValue(text string) (Value, error) {
	raw := text
	if i := strings.Index(text, metadataDelim); i >= 0 {
		text = text[:i]
	}
	text = strings.Trim(text, " \t\r\n\"")
	text = strings.ReplaceAll(text, ".", "")
	text = strings.ReplaceAll(text, ",", ".")
	if text == "" {
		return Value{}, fmt.Errorf("%w: empty value in %q", ErrMalformedNumber, raw)
	}

	switch {
	case strings.Contains(text, "B"):
		bytes, err := parseSize(text)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q: %v", ErrMalformedNumber, raw, err)
		}
		return Value{Kind: KindSize, Magnitude: bytes}, nil
	case strings.Contains(text, ":"):
		secs, err := ParseElapsed(text)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q: %v", ErrMalformedNumber, raw, err)
		}
		return Value{Kind: KindDuration, Magnitude: float64(secs)}, nil
	default:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q: %v", ErrMalformedNumber, raw, err)
		}
		return Value{Kind: KindCount, Magnitude: float64(n)}, nil
	}
}

// parseSize expects "<number> <unit>" with a dot decimal, optionally
// followed by "/sec".
func parseSize(text string) (float64, error) {
	text = strings.TrimSpace(strings.TrimSuffix(text, "/sec"))
	parts := strings.Fields(text)
	if len(parts) != 2 {
		return 0, fmt.Errorf("want <number> <unit>, got %d tokens", len(parts))
	}
	n, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	factor, ok := Unit(parts[1]).Factor()
	if !ok {
		return 0, fmt.Errorf("unknown unit %q", parts[1])
	}
	return n * factor, nil
}

// ParseElapsed converts "HH:MM:SS" to seconds. Hours are unbounded.
func ParseElapsed(text string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: want HH:MM:SS, got %q", ErrMalformedNumber, text)
	}
	var hms [3]int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: bad clock component %q in %q", ErrMalformedNumber, p, text)
		}
		hms[i] = n
	}
	if hms[1] > 59 || hms[2] > 59 {
		return 0, fmt.Errorf("%w: minutes/seconds out of range in %q", ErrMalformedNumber, text)
	}
	return hms[0]*3600 + hms[1]*60 + hms[2], nil
}

// ── formatting ────────────────────────────────────────────────────────────────

// FormatCount renders n with "." thousands grouping, e.g. 1.234.567.
func FormatCount(n int64) string {
	return humanize.FormatFloat("#.###,", float64(n))
}

// FormatNumber renders f with "." grouping and two "," decimals.
func FormatNumber(f float64) string {
	return humanize.FormatFloat("#.###,##", f)
}

// FormatSize renders a byte count in unit u without the unit suffix.
// An unknown unit falls back to bytes.
func FormatSize(bytes float64, u Unit) string {
	factor, ok := u.Factor()
	if !ok {
		factor = 1
	}
	return FormatNumber(bytes / factor)
}

// FormatElapsed renders d as HH:MM:SS, hours may exceed 23.
func FormatElapsed(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}

package parsing

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// unsupportedProduct marks activity-log lines of the SQL Server data
// protection client, whose messages are not parsed.
const unsupportedProduct = "TDP MSSQL"

// Default display units of an ActivitySummary.
const (
	DefaultBytesUnit = UnitGB
	DefaultRateUnit  = UnitMB
)

// ActivitySummary holds the client backup counters of one node, or the sum
// over a group of nodes.
type ActivitySummary struct {
	NodeName string `json:"node_name,omitempty"`

	Inspected int64 `json:"inspected"`
	BackedUp  int64 `json:"backed_up"`
	Updated   int64 `json:"updated"`
	Expired   int64 `json:"expired"`
	Failed    int64 `json:"failed"`
	Retries   int64 `json:"retries"`

	BytesInspected       float64 `json:"bytes_inspected"`
	BytesInspectedUnit   Unit    `json:"bytes_inspected_unit"`
	BytesTransferred     float64 `json:"bytes_transferred"`
	BytesTransferredUnit Unit    `json:"bytes_transferred_unit"`
	// TransferRate is the aggregate rate in bytes per second.
	TransferRate     float64 `json:"transfer_rate"`
	TransferRateUnit Unit    `json:"transfer_rate_unit"`

	ProcessingTime time.Duration `json:"processing_time"`
}

// NewActivitySummary returns an empty summary with the default display units.
func NewActivitySummary(node string) ActivitySummary {
	return ActivitySummary{
		NodeName:             node,
		BytesInspectedUnit:   DefaultBytesUnit,
		BytesTransferredUnit: DefaultBytesUnit,
		TransferRateUnit:     DefaultRateUnit,
	}
}

// Combine returns the sum of s and o. Counters, sizes and rates are added,
// the processing time is the longer of the two. The node name survives only
// when both sides agree or one of them is unnamed.
func (s ActivitySummary) Combine(o ActivitySummary) ActivitySummary {
	out := ActivitySummary{
		NodeName:             combineName(s.NodeName, o.NodeName),
		Inspected:            s.Inspected + o.Inspected,
		BackedUp:             s.BackedUp + o.BackedUp,
		Updated:              s.Updated + o.Updated,
		Expired:              s.Expired + o.Expired,
		Failed:               s.Failed + o.Failed,
		Retries:              s.Retries + o.Retries,
		BytesInspected:       s.BytesInspected + o.BytesInspected,
		BytesInspectedUnit:   firstUnit(s.BytesInspectedUnit, o.BytesInspectedUnit),
		BytesTransferred:     s.BytesTransferred + o.BytesTransferred,
		BytesTransferredUnit: firstUnit(s.BytesTransferredUnit, o.BytesTransferredUnit),
		TransferRate:         s.TransferRate + o.TransferRate,
		TransferRateUnit:     firstUnit(s.TransferRateUnit, o.TransferRateUnit),
		ProcessingTime:       s.ProcessingTime,
	}
	if o.ProcessingTime > out.ProcessingTime {
		out.ProcessingTime = o.ProcessingTime
	}
	return out
}

// IsZero reports whether no activity has been recorded.
func (s ActivitySummary) IsZero() bool {
	return s.Inspected == 0 && s.BackedUp == 0 && s.Updated == 0 && s.Expired == 0 &&
		s.Failed == 0 && s.Retries == 0 && s.BytesInspected == 0 && s.BytesTransferred == 0 &&
		s.TransferRate == 0 && s.ProcessingTime == 0
}

func combineName(a, b string) string {
	switch {
	case a == b, b == "":
		return a
	case a == "":
		return b
	default:
		return ""
	}
}

func firstUnit(a, b Unit) Unit {
	if a != "" {
		return a
	}
	return b
}

// activityField binds a message label to the summary field it fills.
type activityField struct {
	label string
	kind  Kind
	set   func(s *ActivitySummary, v Value)
}

var activityFields = []activityField{
	{"objects inspected:", KindCount, func(s *ActivitySummary, v Value) { s.Inspected = int64(v.Magnitude) }},
	{"objects backed up:", KindCount, func(s *ActivitySummary, v Value) { s.BackedUp = int64(v.Magnitude) }},
	{"objects updated:", KindCount, func(s *ActivitySummary, v Value) { s.Updated = int64(v.Magnitude) }},
	{"objects expired:", KindCount, func(s *ActivitySummary, v Value) { s.Expired = int64(v.Magnitude) }},
	{"objects failed:", KindCount, func(s *ActivitySummary, v Value) { s.Failed = int64(v.Magnitude) }},
	{"retries:", KindCount, func(s *ActivitySummary, v Value) { s.Retries = int64(v.Magnitude) }},
	{"bytes inspected:", KindSize, func(s *ActivitySummary, v Value) { s.BytesInspected = v.Magnitude }},
	{"bytes transferred:", KindSize, func(s *ActivitySummary, v Value) { s.BytesTransferred = v.Magnitude }},
	{"Aggregate data transfer rate:", KindSize, func(s *ActivitySummary, v Value) { s.TransferRate = v.Magnitude }},
	{"processing time:", KindDuration, func(s *ActivitySummary, v Value) { s.ProcessingTime = v.Duration() }},
}

// ParseActivity reads the client activity-log lines of one node. Later
// occurrences of a label overwrite earlier ones; summing sessions is left
// to Combine.
func ParseActivity(node string, lines []string) (ActivitySummary, error) {
	sum := NewActivitySummary(node)
	if len(lines) == 0 {
		slog.Info("activity log is empty", "node", node)
		return sum, nil
	}

	for _, line := range lines {
		if strings.Contains(line, unsupportedProduct) {
			continue
		}
		for _, f := range activityFields {
			_, rest, ok := strings.Cut(line, f.label)
			if !ok {
				continue
			}
			v, err := ParseValue(rest)
			if err != nil {
				return sum, fmt.Errorf("node %s, %q: %w", node, f.label, err)
			}
			if v.Kind != f.kind {
				return sum, fmt.Errorf("node %s, %q: %w: got %s, want %s", node, f.label, ErrMalformedNumber, v.Kind, f.kind)
			}
			f.set(&sum, v)
		}
	}
	return sum, nil
}

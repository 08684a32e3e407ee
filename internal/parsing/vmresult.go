package parsing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// VM result columns.
const (
	vmJob = iota
	vmName
	vmStart
	vmEnd
	vmSuccess
	vmActivity
	vmActivityType
	vmBytes
	vmEntity
	vmFields
)

// VMResult is one virtual machine backup from the summary table.
//
// A combined result (see Combine) only carries BackedUpBytes and Elapsed.
type VMResult struct {
	JobName       string        `json:"job_name,omitempty"`
	VMName        string        `json:"vm_name,omitempty"`
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	Successful    bool          `json:"successful"`
	Activity      string        `json:"activity,omitempty"`
	ActivityType  string        `json:"activity_type,omitempty"`
	BackedUpBytes int64         `json:"backed_up_bytes"`
	BackedUpUnit  Unit          `json:"backed_up_unit"`
	Entity        string        `json:"entity,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
}

// NewVMResult builds a result from the nine columns
// job, vm, start, end, YES|NO, activity, activity type, bytes, entity.
func NewVMResult(fields []string, loc *time.Location) (VMResult, error) {
	if len(fields) < vmFields {
		return VMResult{}, fmt.Errorf("%w: VM result has %d fields, want %d", ErrMalformedRecord, len(fields), vmFields)
	}
	bytes, err := strconv.ParseInt(strings.TrimSpace(fields[vmBytes]), 10, 64)
	if err != nil {
		return VMResult{}, fmt.Errorf("%w: VM %s byte count %q: %v", ErrMalformedRecord, fields[vmName], fields[vmBytes], err)
	}
	r := VMResult{
		JobName:       strings.TrimSpace(fields[vmJob]),
		VMName:        strings.TrimSpace(fields[vmName]),
		Successful:    strings.TrimSpace(fields[vmSuccess]) == "YES",
		Activity:      strings.TrimSpace(fields[vmActivity]),
		ActivityType:  strings.TrimSpace(fields[vmActivityType]),
		BackedUpBytes: bytes,
		BackedUpUnit:  DefaultBytesUnit,
		Entity:        strings.TrimSpace(fields[vmEntity]),
	}
	if err := r.SetTimes(fields[vmStart], fields[vmEnd], loc); err != nil {
		return VMResult{}, fmt.Errorf("VM %s: %w", r.VMName, err)
	}
	return r, nil
}

// SetTimes parses start and end and recomputes Elapsed. A blank start or
// end leaves Elapsed at zero.
func (r *VMResult) SetTimes(start, end string, loc *time.Location) error {
	s, err := parseTimestamp(start, loc)
	if err != nil {
		return err
	}
	e, err := parseTimestamp(end, loc)
	if err != nil {
		return err
	}
	r.Start, r.End, r.Elapsed = s, e, 0
	if !s.IsZero() && !e.IsZero() {
		r.Elapsed = e.Sub(s)
	}
	return nil
}

// Combine returns a result holding the summed bytes and elapsed time.
func (r VMResult) Combine(o VMResult) VMResult {
	return VMResult{
		BackedUpBytes: r.BackedUpBytes + o.BackedUpBytes,
		BackedUpUnit:  firstUnit(r.BackedUpUnit, o.BackedUpUnit),
		Elapsed:       r.Elapsed + o.Elapsed,
	}
}

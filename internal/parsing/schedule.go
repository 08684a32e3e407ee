package parsing

import (
	"log/slog"
	"strings"
	"time"
)

// Outcome is the status of one scheduled job run.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeSuccessful
	OutcomeMissed
	OutcomeFailed
	OutcomeSevered
	OutcomeFailedNoRestart
	OutcomeRestarted
	OutcomeStarted
	OutcomeInProgress
	OutcomePending
)

var outcomeNames = [...]string{
	OutcomeUnknown:         "Unknown",
	OutcomeSuccessful:      "Successful",
	OutcomeMissed:          "Missed",
	OutcomeFailed:          "Failed",
	OutcomeSevered:         "Severed",
	OutcomeFailedNoRestart: "Failed - no restart",
	OutcomeRestarted:       "Restarted",
	OutcomeStarted:         "Started",
	OutcomeInProgress:      "In Progress",
	OutcomePending:         "Pending",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return outcomeNames[OutcomeUnknown]
	}
	return outcomeNames[o]
}

// MarshalText lets outcomes appear by name in JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// statusTokens maps the console's event status column to an Outcome.
// Anything else, "Uncertain" included, is OutcomeUnknown.
var statusTokens = map[string]Outcome{
	"Completed":           OutcomeSuccessful,
	"Missed":              OutcomeMissed,
	"Failed":              OutcomeFailed,
	"Severed":             OutcomeSevered,
	"Failed - no restart": OutcomeFailedNoRestart,
	"Restarted":           OutcomeRestarted,
	"Started":             OutcomeStarted,
	"In Progress":         OutcomeInProgress,
	"Pending":             OutcomePending,
}

// futureStatus marks runs that are not due yet.
const futureStatus = "Future"

// ParseOutcome maps a status token to an Outcome.
func ParseOutcome(token string) Outcome {
	if o, ok := statusTokens[strings.TrimSpace(token)]; ok {
		return o
	}
	return OutcomeUnknown
}

// Defaults for event columns the console leaves blank.
const (
	DefaultReturnCode  = "None"
	DefaultActualStart = "Not started"
	DefaultCompleted   = " "
)

// DefaultRetention is the number of prior days kept in a job's history.
const DefaultRetention = 15

// staleAfter drops jobs whose last scheduled start is this old.
const staleAfter = 24 * time.Hour

const day = 24 * time.Hour

// Event record columns.
const (
	evGroup = iota
	evJob
	evNode
	evScheduledStart
	evActualStart
	evCompleted
	evStatus
	evReturnCode
	evReason
	eventFields
)

// JobStatus is the current state of a scheduled job plus a per-day history.
type JobStatus struct {
	Name           string    `json:"name"`
	Outcome        Outcome   `json:"outcome"`
	ReturnCode     string    `json:"return_code"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ActualStart    string    `json:"actual_start"`
	Completed      string    `json:"completed"`
	Reason         string    `json:"reason,omitempty"`
	// History[0] is the oldest day of the window, the last slot is
	// yesterday. Days without a record stay OutcomeUnknown.
	History []Outcome `json:"history"`
}

func newJobStatus(name string, retention int) *JobStatus {
	return &JobStatus{
		Name:        name,
		ReturnCode:  DefaultReturnCode,
		ActualStart: DefaultActualStart,
		Completed:   DefaultCompleted,
		History:     make([]Outcome, retention),
	}
}

// ScheduleParser reads QUERY EVENT output for one node.
//
// Day boundaries are rolling: a run is N days old when now minus its
// scheduled start is at least N*24h and less than (N+1)*24h. The same
// rolling definition drives the staleness cutoff.
type ScheduleParser struct {
	Now       time.Time
	Retention int
	Location  *time.Location
	Logger    *slog.Logger
}

func (p ScheduleParser) retention() int {
	if p.Retention <= 0 {
		return DefaultRetention
	}
	return p.Retention
}

func (p ScheduleParser) now() time.Time {
	if p.Now.IsZero() {
		return time.Now()
	}
	return p.Now
}

// Parse returns the jobs seen in lines, keyed by job name. Lines are
// expected oldest first; a later line for the same job wins.
func (p ScheduleParser) Parse(lines []string) (map[string]*JobStatus, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := p.now()
	retention := p.retention()
	jobs := make(map[string]*JobStatus)

	for _, line := range lines {
		if blank(line) {
			continue
		}
		f, err := splitFields(line, eventFields)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(f[evStatus]) == futureStatus {
			continue
		}

		name := strings.TrimSpace(f[evJob])
		job, ok := jobs[name]
		if !ok {
			job = newJobStatus(name, retention)
			jobs[name] = job
		}

		job.Outcome = ParseOutcome(f[evStatus])
		job.ReturnCode = orDefault(f[evReturnCode], DefaultReturnCode)
		job.ActualStart = orDefault(f[evActualStart], DefaultActualStart)
		job.Completed = orDefault(f[evCompleted], DefaultCompleted)
		job.Reason = strings.TrimSpace(f[evReason])
		if strings.TrimSpace(f[evScheduledStart]) != "" {
			start, err := parseTimestamp(f[evScheduledStart], p.Location)
			if err != nil {
				return nil, err
			}
			job.ScheduledStart = start
		}
		if job.ScheduledStart.IsZero() {
			continue
		}

		age := int(now.Sub(job.ScheduledStart) / day)
		if slot := retention - age; age > 0 && age <= retention && slot >= 0 && slot < len(job.History) {
			job.History[slot] = job.Outcome
		}
	}

	for name, job := range jobs {
		if job.ScheduledStart.IsZero() || now.Sub(job.ScheduledStart) >= staleAfter {
			logger.Debug("dropping stale job", "job", name, "scheduled_start", job.ScheduledStart)
			delete(jobs, name)
		}
	}
	return jobs, nil
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

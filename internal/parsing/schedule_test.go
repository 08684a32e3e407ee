package parsing

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var testNow = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) string {
	return testNow.Add(d).Format(timeLayout)
}

func eventLine(job string, start time.Duration, status, rc string) string {
	return fmt.Sprintf("DOMAIN,%s,NODE,%s,2024-08-25 21:10:15,2024-08-25 22:05:53,%s,%s,All operations completed successfully.",
		job, at(start), status, rc)
}

func testParser() ScheduleParser {
	return ScheduleParser{Now: testNow, Retention: DefaultRetention, Location: time.UTC}
}

func TestParseOutcome(t *testing.T) {
	tests := map[string]Outcome{
		"Completed":           OutcomeSuccessful,
		"Missed":              OutcomeMissed,
		"Failed":              OutcomeFailed,
		"Severed":             OutcomeSevered,
		"Failed - no restart": OutcomeFailedNoRestart,
		"Restarted":           OutcomeRestarted,
		"Started":             OutcomeStarted,
		"In Progress":         OutcomeInProgress,
		"Pending":             OutcomePending,
		"Uncertain":           OutcomeUnknown,
		"Incomplete":          OutcomeUnknown,
		"":                    OutcomeUnknown,
	}
	for token, want := range tests {
		if got := ParseOutcome(token); got != want {
			t.Errorf("ParseOutcome(%q) = %s, want %s", token, got, want)
		}
	}
}

func TestScheduleParserHistory(t *testing.T) {
	lines := []string{
		fmt.Sprintf("DOMAIN,SCHEDULE,NODE,%s,,,Uncertain,,", at(-3*day)),
		eventLine("SCHEDULE", -2*day, "Completed", "0"),
		eventLine("SCHEDULE", -1*day-time.Hour, "Missed", "4"),
		eventLine("SCHEDULE", -2*time.Hour, "Completed", "0"),
		fmt.Sprintf("DOMAIN,SCHEDULE,NODE,%s,,,Future,,", at(day)),
	}
	jobs, err := testParser().Parse(lines)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	job, ok := jobs["SCHEDULE"]
	if !ok || len(jobs) != 1 {
		t.Fatalf("jobs = %v, want only SCHEDULE", jobs)
	}
	if job.Outcome != OutcomeSuccessful || job.ReturnCode != "0" {
		t.Errorf("current = %s rc %s", job.Outcome, job.ReturnCode)
	}
	if len(job.History) != DefaultRetention {
		t.Fatalf("history length = %d", len(job.History))
	}
	want := make([]Outcome, DefaultRetention)
	want[DefaultRetention-3] = OutcomeUnknown
	want[DefaultRetention-2] = OutcomeSuccessful
	want[DefaultRetention-1] = OutcomeMissed
	for i := range want {
		if job.History[i] != want[i] {
			t.Errorf("history[%d] = %s, want %s", i, job.History[i], want[i])
		}
	}
}

func TestScheduleParserDefaults(t *testing.T) {
	line := fmt.Sprintf("DOMAIN,JOB,NODE,%s,,,Pending,,", at(-time.Hour))
	jobs, err := testParser().Parse([]string{line})
	if err != nil {
		t.Fatal(err)
	}
	job := jobs["JOB"]
	if job == nil {
		t.Fatal("JOB missing")
	}
	if job.ReturnCode != DefaultReturnCode || job.ActualStart != DefaultActualStart || job.Completed != DefaultCompleted {
		t.Errorf("defaults = %q %q %q", job.ReturnCode, job.ActualStart, job.Completed)
	}
	if job.Outcome != OutcomePending {
		t.Errorf("Outcome = %s", job.Outcome)
	}
}

func TestScheduleParserOnlyFuture(t *testing.T) {
	lines := []string{
		fmt.Sprintf("DOMAIN,A,NODE,%s,,,Future,,", at(time.Hour)),
		fmt.Sprintf("DOMAIN,B,NODE,%s,,,Future,,", at(day)),
	}
	jobs, err := testParser().Parse(lines)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Errorf("jobs = %v, want none", jobs)
	}
}

func TestScheduleParserDropsStaleJobs(t *testing.T) {
	lines := []string{
		eventLine("OLD", -25*time.Hour, "Completed", "0"),
		eventLine("EDGE", -24*time.Hour, "Completed", "0"),
		eventLine("FRESH", -23*time.Hour, "Failed", "12"),
	}
	jobs, err := testParser().Parse(lines)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := jobs["OLD"]; ok {
		t.Error("job 25h old should be dropped")
	}
	if _, ok := jobs["EDGE"]; ok {
		t.Error("job exactly 24h old should be dropped")
	}
	if j, ok := jobs["FRESH"]; !ok || j.Outcome != OutcomeFailed {
		t.Errorf("FRESH = %+v", j)
	}
}

func TestScheduleParserRetentionBounds(t *testing.T) {
	p := ScheduleParser{Now: testNow, Retention: 3, Location: time.UTC}
	lines := []string{
		eventLine("J", -10*day, "Failed", "12"),
		eventLine("J", -3*day, "Missed", "0"),
		eventLine("J", 2*day, "Completed", "0"),
		eventLine("J", -time.Hour, "Completed", "0"),
	}
	jobs, err := p.Parse(lines)
	if err != nil {
		t.Fatal(err)
	}
	h := jobs["J"].History
	want := []Outcome{OutcomeMissed, OutcomeUnknown, OutcomeUnknown}
	if len(h) != len(want) {
		t.Fatalf("history = %v", h)
	}
	for i := range want {
		if h[i] != want[i] {
			t.Errorf("history[%d] = %s, want %s", i, h[i], want[i])
		}
	}
}

func TestScheduleParserEdgeCases(t *testing.T) {
	lines := []string{
		fmt.Sprintf("DOMAIN,SCHEDULE,NODE,%s,2024-07-01 00:00:00,2024-07-01 01:00:00,Completed,0,All operations completed successfully.", at(-30*day)),
		fmt.Sprintf("DOMAIN,SCHEDULE,NODE,%s,,2024-09-30 00:00:00,,Missed,0,Client missed schedule TEST_SCHEDULE.", at(-15*day)),
		fmt.Sprintf("DOMAIN,SCHEDULE,NODE,%s,,2024-09-30 00:00:00,,Completed,0,All operations completed successfully.", at(15*day)),
		fmt.Sprintf("DOMAIN,SCHEDULE,NODE,%s,,2024-09-30 00:00:00,,Future,,", at(30*day)),
		fmt.Sprintf(`DOMAIN,SCHEDULE,NODE,%s,2024-08-25 21:10:15,2024-08-25 22:05:53,Incomplete,3,"The operation completed, but not all tasks finished."`, at(-day)),
	}
	jobs, err := testParser().Parse(lines)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("jobs = %v, want none", jobs)
	}
}

func TestScheduleParserMalformed(t *testing.T) {
	tests := []string{
		"DOMAIN,JOB,NODE,2024-09-01 10:00:00,Completed",
		"DOMAIN,JOB,NODE,yesterday,,,Completed,0,ok",
	}
	for _, line := range tests {
		if _, err := testParser().Parse([]string{line}); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("Parse(%q) err = %v, want ErrMalformedRecord", line, err)
		}
	}
}

package parsing

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func vmLine(vm string, start, end time.Duration, bytes, entity string) string {
	return strings.Join([]string{"VM_SCHED", vm, at(start) + ".000000", at(end) + ".000000", "YES",
		"BACKUP", "Incremental Forever - Full", bytes, entity}, ",")
}

func mustSplit(t *testing.T, line string) []string {
	t.Helper()
	f, err := splitRecord(line)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestNewVMResult(t *testing.T) {
	r, err := NewVMResult(mustSplit(t, vmLine("vm01", -2*time.Hour, -time.Hour, "1048576", "DC_NODE")), time.UTC)
	if err != nil {
		t.Fatalf("NewVMResult: %v", err)
	}
	if r.VMName != "vm01" || r.Entity != "DC_NODE" || !r.Successful {
		t.Errorf("got %+v", r)
	}
	if r.Elapsed != time.Hour {
		t.Errorf("Elapsed = %v, want 1h", r.Elapsed)
	}
	if r.Start.Nanosecond() != 0 {
		t.Errorf("sub-second precision kept: %v", r.Start)
	}
	if r.BackedUpBytes != 1048576 || r.BackedUpUnit != UnitGB {
		t.Errorf("bytes = %d %s", r.BackedUpBytes, r.BackedUpUnit)
	}
}

func TestVMResultZeroElapsed(t *testing.T) {
	r, err := NewVMResult(mustSplit(t, vmLine("vm01", -time.Hour, -time.Hour, "10", "N")), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if r.Elapsed != 0 {
		t.Errorf("Elapsed = %v, want 0", r.Elapsed)
	}

	f := mustSplit(t, vmLine("vm02", 0, 0, "10", "N"))
	f[vmStart] = ""
	r, err = NewVMResult(f, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if r.Elapsed != 0 || !r.Start.IsZero() {
		t.Errorf("blank start: Elapsed = %v, Start = %v", r.Elapsed, r.Start)
	}
}

func TestVMResultSetTimesRecomputes(t *testing.T) {
	r, err := NewVMResult(mustSplit(t, vmLine("vm01", -time.Hour, 0, "10", "N")), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.SetTimes(at(-3*time.Hour), at(-time.Hour), time.UTC); err != nil {
		t.Fatal(err)
	}
	if r.Elapsed != 2*time.Hour {
		t.Errorf("Elapsed = %v, want 2h", r.Elapsed)
	}
}

func TestVMResultCombine(t *testing.T) {
	a, _ := NewVMResult(mustSplit(t, vmLine("a", -2*time.Hour, -time.Hour, "1000", "N")), time.UTC)
	b, _ := NewVMResult(mustSplit(t, vmLine("b", -30*time.Minute, 0, "234", "N")), time.UTC)
	sum := a.Combine(b)
	if sum.BackedUpBytes != 1234 {
		t.Errorf("BackedUpBytes = %d, want 1234", sum.BackedUpBytes)
	}
	if sum.Elapsed != 90*time.Minute {
		t.Errorf("Elapsed = %v, want 90m", sum.Elapsed)
	}
	if sum.VMName != "" || sum.Entity != "" {
		t.Errorf("combined result carries identity fields: %+v", sum)
	}
}

func TestNewVMResultMalformed(t *testing.T) {
	if _, err := NewVMResult(mustSplit(t, vmLine("vm", -time.Hour, 0, "12.5", "N")), time.UTC); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("non-integer bytes: err = %v", err)
	}
	if _, err := NewVMResult([]string{"a", "b"}, time.UTC); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("short record: err = %v", err)
	}
}

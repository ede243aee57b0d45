package clickscheduler

import (
	"testing"
	"time"
)

func TestGenerateScheduleCountAndOrdering(t *testing.T) {
	start := time.Date(2026, 7, 30, 9, 0, 0, 0, time.Local)
	out := GenerateSchedule(start, 100)
	if len(out) != 100 {
		t.Fatalf("expected 100 timestamps, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Before(out[i-1]) {
			t.Fatalf("schedule not sorted at index %d", i)
		}
	}
	for _, ts := range out {
		if ts.Before(start) {
			t.Fatalf("timestamp %v before start %v", ts, start)
		}
	}
}

func TestGenerateScheduleNearEndOfDayBursts(t *testing.T) {
	start := time.Date(2026, 7, 30, 23, 59, 59, 999_000_000, time.Local)
	out := GenerateSchedule(start, 10)
	if len(out) != 10 {
		t.Fatalf("expected 10 timestamps, got %d", len(out))
	}
	window := start.Add(60 * time.Second)
	for _, ts := range out {
		if ts.Before(start) || ts.After(window) {
			t.Fatalf("burst timestamp %v outside [%v, %v]", ts, start, window)
		}
	}
}

func TestGenerateScheduleZeroIsEmpty(t *testing.T) {
	if out := GenerateSchedule(time.Now(), 0); out != nil {
		t.Fatalf("expected nil for n=0, got %v", out)
	}
}

// TestGenerateScheduleSumMatchesNAcrossStartHoursAndCounts sweeps every
// start hour against a range of click counts — including start_hour=0 with
// n=8, 9, and 12, which previously produced sums of 9, 11, and 13
// respectively under a same-slot rounding-residual clamp — and asserts the
// schedule always returns exactly n timestamps.
func TestGenerateScheduleSumMatchesNAcrossStartHoursAndCounts(t *testing.T) {
	for startHour := 0; startHour < 24; startHour++ {
		start := time.Date(2026, 7, 30, startHour, 0, 0, 0, time.Local)
		for n := 1; n <= 50; n++ {
			out := GenerateSchedule(start, n)
			if len(out) != n {
				t.Fatalf("start_hour=%d n=%d: expected %d timestamps, got %d", startHour, n, n, len(out))
			}
		}
	}
}

package market

import (
	"testing"
	"time"
)

func TestSchedulerDefaults(t *testing.T) {
	s := NewScheduler(nil, nil, 0)
	if s.checkEvery != time.Minute {
		t.Fatalf("default check cadence: %v", s.checkEvery)
	}
	if s.log == nil {
		t.Fatal("logger not defaulted")
	}
}

func TestSchedulerDueAndMark(t *testing.T) {
	s := NewScheduler(nil, nil, time.Second)
	now := time.Now().UTC()

	// A tenant never ticked is always due.
	if !s.due("guild", now, time.Hour) {
		t.Fatal("fresh tenant should be due")
	}

	s.mark("guild", now)
	if s.due("guild", now.Add(30*time.Minute), time.Hour) {
		t.Fatal("due before interval elapsed")
	}
	if !s.due("guild", now.Add(time.Hour), time.Hour) {
		t.Fatal("not due at exactly the interval")
	}

	// Tenants track independently.
	if !s.due("other", now, time.Hour) {
		t.Fatal("unmarked tenant affected by another's mark")
	}
}

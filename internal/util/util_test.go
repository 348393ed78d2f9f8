package util

import (
	"strings"
	"testing"
	"time"
)

func TestBatchCode_RoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)
	code := BatchCode(at, "syr-cane")

	if !strings.HasPrefix(code, "20260302-SYR-CANE-") {
		t.Fatalf("unexpected batch code %q", code)
	}

	day, sku, err := ParseBatchCode(code)
	if err != nil {
		t.Fatalf("ParseBatchCode(%q): %v", code, err)
	}
	if sku != "SYR-CANE" {
		t.Errorf("sku = %q, want SYR-CANE", sku)
	}
	if !day.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("day = %v", day)
	}
}

func TestParseBatchCode_Invalid(t *testing.T) {
	for _, code := range []string{"", "SYR", "2026-03-02-SYR-0001", "20260302-SYR-zzzz"} {
		if _, _, err := ParseBatchCode(code); err == nil {
			t.Errorf("ParseBatchCode(%q) should fail", code)
		}
	}
}

func TestOpCode(t *testing.T) {
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		prefix string
		want   string
	}{
		{"", "OP-20260302-"},
		{"OP-MAIN", "OP-MAIN-20260302-"},
	}
	for _, tt := range tests {
		got := OpCode(tt.prefix, at)
		if !strings.HasPrefix(got, tt.want) || len(got) != len(tt.want)+4 {
			t.Errorf("OpCode(%q) = %q, want %sXXXX", tt.prefix, got, tt.want)
		}
	}
}

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}
	c.Advance(10 * time.Minute)
	if got := c.Now(); !got.Equal(start.Add(10 * time.Minute)) {
		t.Errorf("after Advance: %v", got)
	}

	local := time.Date(2026, 3, 3, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	c.Set(local)
	if got := c.Now(); got.Location() != time.UTC || !got.Equal(local) {
		t.Errorf("Set should store UTC, got %v", got)
	}
}

func TestDates(t *testing.T) {
	d, err := ParseDate("2026-03-02")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if FormatDate(d) != "2026-03-02" {
		t.Errorf("FormatDate = %s", FormatDate(d))
	}
	if _, err := ParseDate("02/03/2026"); err == nil {
		t.Error("expected error for non-ISO date")
	}

	from := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 4, 1, 0, 0, 0, time.UTC)
	if got := DaysSince(from, to); got != 3 {
		t.Errorf("DaysSince = %d, want 3", got)
	}
}

func TestIDs(t *testing.T) {
	id := NewID()
	if !IsValidID(id) {
		t.Fatalf("NewID() = %q is not a valid UUID", id)
	}
	if IsValidID("not-a-uuid") {
		t.Error("IsValidID accepted garbage")
	}

	g := NewSequenceGenerator(0)
	a, b := g.NewID(), g.NewID()
	if a == b {
		t.Error("sequence produced duplicate ids")
	}
	if a != DeterministicID(1) || b != DeterministicID(2) {
		t.Errorf("sequence = %s, %s", a, b)
	}
	if !IsValidID(a) {
		t.Errorf("deterministic id %q is not a valid UUID", a)
	}
}

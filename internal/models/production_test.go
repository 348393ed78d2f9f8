package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func draftRun() *ProductionRun {
	return &ProductionRun{
		ID:           "run-1",
		OpCode:       "OP-20260302-0001",
		Type:         RunTypeFill,
		Status:       RunStatusDraft,
		ProductSKU:   "BLEND-X",
		QtyPlanned:   dec("40"),
		LineID:       "L1",
		StartPlanned: t0,
	}
}

func TestNextStatus(t *testing.T) {
	tests := []struct {
		from RunStatus
		ev   RunEvent
		want RunStatus
		ok   bool
	}{
		{RunStatusDraft, EventStart, RunStatusInProgress, true},
		{RunStatusDraft, EventCancel, RunStatusCancelled, true},
		{RunStatusDraft, EventPause, "", false},
		{RunStatusDraft, EventFinish, "", false},
		{RunStatusInProgress, EventPause, RunStatusPaused, true},
		{RunStatusInProgress, EventFinish, RunStatusFinished, true},
		{RunStatusInProgress, EventCancel, "", false},
		{RunStatusInProgress, EventStart, "", false},
		{RunStatusPaused, EventResume, RunStatusInProgress, true},
		{RunStatusPaused, EventFinish, RunStatusFinished, true},
		{RunStatusPaused, EventPause, "", false},
		{RunStatusFinished, EventStart, "", false},
		{RunStatusFinished, EventCancel, "", false},
		{RunStatusCancelled, EventStart, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			got, ok := NextStatus(tt.from, tt.ev)
			if ok != tt.ok || got != tt.want {
				t.Errorf("NextStatus(%s, %s) = %q, %v; want %q, %v", tt.from, tt.ev, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestProductionRun_IllegalEvents(t *testing.T) {
	t.Run("Finish on Draft", func(t *testing.T) {
		run := draftRun()
		err := run.Finish(t0, FinishResult{QtyActual: dec("1"), OutputBatchID: "b"})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		if run.Status != RunStatusDraft {
			t.Errorf("status changed to %s", run.Status)
		}
	})

	t.Run("Pause twice", func(t *testing.T) {
		run := draftRun()
		if err := run.Start(t0, nil, nil); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := run.Pause(t0.Add(time.Minute)); err != nil {
			t.Fatalf("Pause: %v", err)
		}
		err := run.Pause(t0.Add(2 * time.Minute))
		var te *TransitionError
		if !errors.As(err, &te) {
			t.Fatalf("expected TransitionError, got %v", err)
		}
		if te.Status != RunStatusPaused || te.Event != EventPause {
			t.Errorf("unexpected error detail: %+v", te)
		}
	})

	t.Run("Delete only in Draft", func(t *testing.T) {
		run := draftRun()
		if err := run.CheckEvent(EventDelete); err != nil {
			t.Fatalf("delete of Draft rejected: %v", err)
		}
		if err := run.Start(t0, nil, nil); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := run.CheckEvent(EventDelete); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition for delete of InProgress, got %v", err)
		}
	})

	t.Run("Plan only in Draft", func(t *testing.T) {
		run := draftRun()
		if err := run.CheckEvent(EventPlan); err != nil {
			t.Fatalf("plan of Draft rejected: %v", err)
		}
		if err := run.Start(t0, nil, nil); err != nil {
			t.Fatalf("Start: %v", err)
		}
		err := run.CheckEvent(EventPlan)
		var te *TransitionError
		if !errors.As(err, &te) || te.Event != EventPlan {
			t.Fatalf("expected plan TransitionError, got %v", err)
		}
		if run.Status != RunStatusInProgress {
			t.Errorf("status changed to %s", run.Status)
		}
	})

	t.Run("Start with shortages", func(t *testing.T) {
		run := draftRun()
		run.Shortages = []Shortage{{ItemID: "syrup", Requested: dec("50"), Available: dec("10")}}
		err := run.Start(t0, nil, nil)
		if !errors.Is(err, ErrInsufficientStock) {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}
		if run.Status != RunStatusDraft {
			t.Errorf("status changed to %s", run.Status)
		}
	})
}

func TestProductionRun_Lifecycle(t *testing.T) {
	run := draftRun()
	consumed := []ConsumedComponent{
		{ComponentID: "syrup", BatchID: "b1", Quantity: dec("40"), UnitCost: dec("2")},
	}

	if err := run.Start(t0, consumed, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := run.Pause(t0.Add(30 * time.Minute)); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := run.Resume(t0.Add(40 * time.Minute)); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if run.TotalPauseDuration != 10*time.Minute {
		t.Errorf("TotalPauseDuration = %v, want 10m", run.TotalPauseDuration)
	}

	end := t0.Add(70 * time.Minute)
	if err := run.Finish(end, FinishResult{QtyActual: dec("38"), OutputBatchID: "out"}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if run.Status != RunStatusFinished {
		t.Errorf("status = %s, want Finished", run.Status)
	}
	if got := run.Cost.Unit.String(); got != "2.105263" {
		t.Errorf("unit cost = %s, want 2.105263", got)
	}
	if !run.Cost.Total.Equal(dec("80")) {
		t.Errorf("total cost = %s, want 80", run.Cost.Total)
	}
	if !run.YieldPct.Equal(dec("95")) {
		t.Errorf("yield = %s, want 95", run.YieldPct)
	}
	if d := run.EffectiveDuration(end); d != time.Hour {
		t.Errorf("effective duration = %v, want 1h", d)
	}
	if run.ThroughputPerHour == nil || !run.ThroughputPerHour.Equal(dec("38")) {
		t.Errorf("throughput = %v, want 38", run.ThroughputPerHour)
	}

	if err := run.Finish(end, FinishResult{QtyActual: dec("1"), OutputBatchID: "again"}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second finish: expected ErrInvalidTransition, got %v", err)
	}
}

func TestProductionRun_FinishWhilePaused(t *testing.T) {
	run := draftRun()
	if err := run.Start(t0, nil, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := run.Pause(t0.Add(time.Hour)); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	end := t0.Add(3 * time.Hour)
	if err := run.Finish(end, FinishResult{QtyActual: dec("40"), OutputBatchID: "out"}); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if run.LastPausedAt != nil {
		t.Error("LastPausedAt should be cleared")
	}
	if d := run.EffectiveDuration(end); d != time.Hour {
		t.Errorf("effective duration = %v, want 1h", d)
	}
}

func TestComputeCost(t *testing.T) {
	tests := []struct {
		name      string
		consumed  []ConsumedComponent
		qty       string
		wantTotal string
		wantUnit  string
	}{
		{
			name:      "single batch",
			consumed:  []ConsumedComponent{{Quantity: dec("40"), UnitCost: dec("2")}},
			qty:       "38",
			wantTotal: "80",
			wantUnit:  "2.105263",
		},
		{
			name: "two batches",
			consumed: []ConsumedComponent{
				{Quantity: dec("5"), UnitCost: dec("1")},
				{Quantity: dec("2"), UnitCost: dec("2")},
			},
			qty:       "7",
			wantTotal: "9",
			wantUnit:  "1.285714",
		},
		{
			name:      "nothing consumed",
			qty:       "10",
			wantTotal: "0",
			wantUnit:  "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeCost(tt.consumed, dec(tt.qty))
			if !got.Total.Equal(dec(tt.wantTotal)) {
				t.Errorf("total = %s, want %s", got.Total, tt.wantTotal)
			}
			if !got.Unit.Equal(dec(tt.wantUnit)) {
				t.Errorf("unit = %s, want %s", got.Unit, tt.wantUnit)
			}
		})
	}
}

func TestYieldPct(t *testing.T) {
	tests := []struct {
		actual, planned, want string
	}{
		{"38", "40", "95"},
		{"40", "40", "100"},
		{"1", "3", "33.33"},
		{"5", "0", "0"},
	}
	for _, tt := range tests {
		if got := YieldPct(dec(tt.actual), dec(tt.planned)); !got.Equal(dec(tt.want)) {
			t.Errorf("YieldPct(%s, %s) = %s, want %s", tt.actual, tt.planned, got, tt.want)
		}
	}
}

func TestThroughput(t *testing.T) {
	if got := Throughput(dec("10"), 0); got != nil {
		t.Errorf("expected nil throughput for zero duration, got %s", got)
	}
	got := Throughput(dec("30"), 90*time.Minute)
	if got == nil || !got.Equal(dec("20")) {
		t.Errorf("Throughput(30, 90m) = %v, want 20", got)
	}
}

func TestProductionRun_ProductiveHours(t *testing.T) {
	tests := []struct {
		name  string
		run   time.Duration
		pause time.Duration
		want  string
	}{
		{"exact hour", time.Hour, 0, "1"},
		{"pause excluded", 2 * time.Hour, 30 * time.Minute, "1.5"},
		{"third of an hour", 20 * time.Minute, 0, "0.3333"},
		{"one nanosecond over", time.Hour + time.Nanosecond, 0, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := t0
			end := t0.Add(tt.run)
			run := &ProductionRun{StartActual: &start, EndActual: &end, TotalPauseDuration: tt.pause}
			if got := run.ProductiveHours(); !got.Equal(dec(tt.want)) {
				t.Errorf("ProductiveHours() = %s, want %s", got, tt.want)
			}
		})
	}

	if got := draftRun().ProductiveHours(); !got.IsZero() {
		t.Errorf("unfinished run has %s productive hours", got)
	}
}

func TestProductionRun_Validate(t *testing.T) {
	tank := "tank-1"
	tests := []struct {
		name    string
		mutate  func(*ProductionRun)
		wantErr bool
	}{
		{"valid fill", func(r *ProductionRun) {}, false},
		{"blend with tank", func(r *ProductionRun) { r.Type = RunTypeBlend; r.TankID = &tank }, false},
		{"blend without tank", func(r *ProductionRun) { r.Type = RunTypeBlend }, true},
		{"fill with tank", func(r *ProductionRun) { r.TankID = &tank }, true},
		{"zero quantity", func(r *ProductionRun) { r.QtyPlanned = decimal.Zero }, true},
		{"duplicate component", func(r *ProductionRun) {
			r.Components = []ComponentRequirement{
				{ItemID: "a", Quantity: dec("1")},
				{ItemID: "a", Quantity: dec("2")},
			}
		}, true},
		{"unknown type", func(r *ProductionRun) { r.Type = "mix" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := draftRun()
			tt.mutate(run)
			err := run.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("reading counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRecorder_Counts(t *testing.T) {
	r := New()

	r.UnitAttempt("record_sale")
	r.UnitAttempt("record_sale")
	r.UnitConflict("record_sale")
	r.UnitResult("record_sale", ResultOK, 5*time.Millisecond)
	r.RunTransition("start")

	if got := value(t, r.Attempts("record_sale")); got != 2 {
		t.Errorf("attempts = %v, want 2", got)
	}
	if got := value(t, r.Conflicts("record_sale")); got != 1 {
		t.Errorf("conflicts = %v, want 1", got)
	}
	if got := value(t, r.Results("record_sale", ResultOK)); got != 1 {
		t.Errorf("ok results = %v, want 1", got)
	}
	if got := value(t, r.Results("record_sale", ResultConflict)); got != 0 {
		t.Errorf("conflict results = %v, want 0", got)
	}
	if got := value(t, r.Transitions("start")); got != 1 {
		t.Errorf("start transitions = %v, want 1", got)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.UnitAttempt("x")
	r.UnitConflict("x")
	r.UnitResult("x", ResultError, time.Second)
	r.RunTransition("pause")
	if r.Registry() != nil {
		t.Error("nil recorder should have no registry")
	}
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")); err != nil {
		t.Errorf("WriteTextfile on nil recorder: %v", err)
	}
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.RunTransition("finish")
	r.UnitResult("finish_run", ResultOK, time.Millisecond)

	path := filepath.Join(t.TempDir(), "batchworks.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`batchworks_run_transitions_total{event="finish"} 1`,
		`batchworks_uow_results_total{result="ok",unit="finish_run"} 1`,
		"batchworks_uow_duration_seconds_bucket",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}

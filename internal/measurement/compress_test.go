package measurement

import (
	"testing"
	"time"

	"hil-scheduler/internal/config"
	"hil-scheduler/internal/model"
)

func row(t int, pPOI float64) model.MeasurementRow {
	return model.MeasurementRow{
		Timestamp: time.Date(2026, 1, 1, 0, 0, t, 0, time.UTC),
		PPOIKW:    pPOI,
	}
}

func TestShouldKeepFirstRowAlwaysKept(t *testing.T) {
	if !ShouldKeep(nil, row(0, 10), config.DefaultTolerances(), 3600) {
		t.Fatal("first row must always be kept")
	}
}

func TestShouldKeepWithinTolerance(t *testing.T) {
	last := row(0, 10.00)
	tol := config.DefaultTolerances()
	if ShouldKeep(&last, row(1, 10.05), tol, 3600) {
		t.Fatal("10.05 within 0.1 tolerance of 10.00 should be dropped")
	}
}

func TestShouldKeepSequencePreservesSubsequence(t *testing.T) {
	tol := config.DefaultTolerances()
	values := []float64{10.00, 10.05, 10.05, 10.20, 10.20}
	var last *model.MeasurementRow
	var kept []float64
	for i, v := range values {
		r := row(i, v)
		if ShouldKeep(last, r, tol, 3600) {
			kept = append(kept, v)
			rc := r
			last = &rc
		}
	}
	if len(kept) != 2 || kept[0] != 10.00 || kept[1] != 10.20 {
		t.Fatalf("expected kept=[10.00 10.20], got %v", kept)
	}
}

func TestShouldKeepMaxGapForcesKeep(t *testing.T) {
	last := row(0, 10.0)
	tol := config.DefaultTolerances()
	far := model.MeasurementRow{Timestamp: last.Timestamp.Add(2 * time.Hour), PPOIKW: 10.0}
	if !ShouldKeep(&last, far, tol, 3600) {
		t.Fatal("row beyond max_kept_gap_s must be kept even if unchanged")
	}
}

func TestShouldKeepZeroToleranceRequiresExactMatch(t *testing.T) {
	tol := config.DefaultTolerances() // PSetpointKW tolerance is 0.0
	last := model.MeasurementRow{Timestamp: time.Unix(0, 0), PSetpointKW: 100}
	changed := model.MeasurementRow{Timestamp: time.Unix(1, 0), PSetpointKW: 100.01}
	if !ShouldKeep(&last, changed, tol, 3600) {
		t.Fatal("any setpoint change must be kept under zero tolerance")
	}
}

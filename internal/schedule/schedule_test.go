package schedule

import (
	"testing"
	"time"

	"hil-scheduler/internal/model"
)

func ts(mins int) time.Time {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(mins) * time.Minute)
}

func TestAsOfBeforeFirstRow(t *testing.T) {
	f := model.ScheduleFrame{Rows: []model.ScheduleRow{{Timestamp: ts(10), PSetpointKW: 5}}}
	_, _, ok := AsOf(f, ts(5))
	if ok {
		t.Fatal("expected no row before first timestamp")
	}
}

func TestAsOfStepHold(t *testing.T) {
	f := model.ScheduleFrame{Rows: []model.ScheduleRow{
		{Timestamp: ts(0), PSetpointKW: 100, QSetpointKVAr: 10},
		{Timestamp: ts(60), PSetpointKW: 100, QSetpointKVAr: 10},
	}}
	p, q, ok := AsOf(f, ts(15))
	if !ok || p != 100 || q != 10 {
		t.Fatalf("got p=%v q=%v ok=%v", p, q, ok)
	}
}

func TestManualEndMarkerReturnsToAPIBase(t *testing.T) {
	apiBase := model.ScheduleFrame{Rows: []model.ScheduleRow{
		{Timestamp: ts(0), PSetpointKW: 100, QSetpointKVAr: 10},
		{Timestamp: ts(60), PSetpointKW: 100, QSetpointKVAr: 10},
	}}
	manualP := SplitManualSeries([]model.ManualSeriesRow{
		{Timestamp: ts(0), Setpoint: 200},
		{Timestamp: ts(30), Setpoint: 200},
	})
	if manualP.EndAt == nil || !manualP.EndAt.Equal(ts(30)) {
		t.Fatalf("expected end marker at t+30min, got %v", manualP.EndAt)
	}
	manualQ := model.ManualSeries{}

	eff := BuildEffective(apiBase, manualP, manualQ, true, false)

	p, q, ok := AsOf(eff, ts(15))
	if !ok || p != 200 || q != 10 {
		t.Fatalf("at t+15: got p=%v q=%v", p, q)
	}
	p, q, ok = AsOf(eff, ts(30))
	if !ok || p != 100 || q != 10 {
		t.Fatalf("at t+30 (end instant): got p=%v q=%v", p, q)
	}
	p, q, ok = AsOf(eff, ts(45))
	if !ok || p != 100 || q != 10 {
		t.Fatalf("at t+45: got p=%v q=%v", p, q)
	}
}

func TestResolveStaleAPIOnly(t *testing.T) {
	apiBase := model.ScheduleFrame{Rows: []model.ScheduleRow{
		{Timestamp: ts(0), PSetpointKW: 200, QSetpointKVAr: 12},
	}}
	now := ts(0).Add(20 * time.Minute)
	p, q, stale := Resolve(apiBase, model.ManualSeries{}, model.ManualSeries{}, false, false, now, 15*time.Minute)
	if !stale || p != 0 || q != 0 {
		t.Fatalf("expected stale (0,0), got p=%v q=%v stale=%v", p, q, stale)
	}
}

func TestResolveComposedSetpoint(t *testing.T) {
	apiBase := model.ScheduleFrame{Rows: []model.ScheduleRow{
		{Timestamp: ts(-2), PSetpointKW: 200, QSetpointKVAr: 12},
	}}
	manualP := SplitManualSeries([]model.ManualSeriesRow{
		{Timestamp: ts(-1), Setpoint: 123.4},
		{Timestamp: ts(5), Setpoint: 123.4},
	})
	now := ts(0)
	p, q, stale := Resolve(apiBase, manualP, model.ManualSeries{}, true, false, now, 15*time.Minute)
	if stale {
		t.Fatal("should not be stale: manual override enabled")
	}
	if p != 123.4 || q != 12 {
		t.Fatalf("got p=%v q=%v", p, q)
	}
}

func TestEnsureTerminalEndRowAutoCompletes(t *testing.T) {
	rows := []model.ManualSeriesRow{{Timestamp: ts(0), Setpoint: 50}}
	out := EnsureTerminalEndRow(rows)
	if len(out) != 2 {
		t.Fatalf("expected auto-appended end row, got %d rows", len(out))
	}
	if out[1].Setpoint != 50 || !out[1].Timestamp.Equal(ts(1)) {
		t.Fatalf("expected duplicate value at +60s, got %+v", out[1])
	}
}

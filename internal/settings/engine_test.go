package settings

import (
	"encoding/json"
	"log"
	"os"
	"testing"
	"time"

	"hil-scheduler/internal/control"
	"hil-scheduler/internal/dayahead"
	"hil-scheduler/internal/model"
	"hil-scheduler/internal/state"
)

func testEngine() (*Engine, *control.CommandQueue, *state.Store) {
	q := control.NewCommandQueue(16, 200)
	st := state.New(model.TransportLocal)
	api := dayahead.New("http://example.invalid", "ops@example.com", log.New(os.Stderr, "", 0))
	eng := New(q, st, api, time.UTC, time.Second, log.New(os.Stderr, "", 0))
	return eng, q, st
}

func TestHandleActivateSetsActiveAndAppliesSeries(t *testing.T) {
	eng, _, st := testEngine()
	base := time.Now().UTC().Add(time.Hour)
	rows := []any{
		map[string]any{"timestamp": base.Format(time.RFC3339), "setpoint": 10.0},
	}
	cmd := &model.Command{ID: "c1", Kind: "manual.activate", Payload: map[string]any{
		"plant_id": "lib", "signal": "p", "rows": rows,
	}}
	eng.handleActivate(cmd)
	if cmd.State != model.CommandSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", cmd.State, cmd.Message)
	}
	rt := st.ManualSeriesRuntimeSnapshot(model.ManualLIBP)
	if rt.State != state.ManualActive || !rt.Enabled {
		t.Fatalf("expected active+enabled runtime, got %+v", rt)
	}
	if len(rt.Applied.Rows) == 0 || rt.Applied.Rows[0].Timestamp.IsZero() {
		t.Fatalf("expected applied row timestamp parsed from RFC3339 string, got %+v", rt.Applied.Rows)
	}
}

// TestHandleActivateRoundTripsThroughJSON exercises the actual wire format:
// a manual.activate body marshaled to JSON and decoded into map[string]any
// the way gin.ShouldBindJSON would, rather than a hand-built map literal
// with a real time.Time value.
func TestHandleActivateRoundTripsThroughJSON(t *testing.T) {
	eng, _, st := testEngine()
	base := time.Now().UTC().Add(2 * time.Hour)

	type wireRow struct {
		Timestamp string  `json:"timestamp"`
		Setpoint  float64 `json:"setpoint"`
	}
	type wireBody struct {
		Kind    string `json:"kind"`
		Payload struct {
			PlantID string    `json:"plant_id"`
			Signal  string    `json:"signal"`
			Rows    []wireRow `json:"rows"`
		} `json:"payload"`
	}
	var body wireBody
	body.Kind = "manual.activate"
	body.Payload.PlantID = "lib"
	body.Payload.Signal = "p"
	body.Payload.Rows = []wireRow{{Timestamp: base.Format(time.RFC3339), Setpoint: 42.0}}

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	payload, _ := decoded["payload"].(map[string]any)

	cmd := &model.Command{ID: "c2", Kind: "manual.activate", Payload: payload}
	eng.handleActivate(cmd)
	if cmd.State != model.CommandSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", cmd.State, cmd.Message)
	}
	rt := st.ManualSeriesRuntimeSnapshot(model.ManualLIBP)
	if len(rt.Applied.Rows) == 0 {
		t.Fatalf("expected at least one applied row")
	}
	got := rt.Applied.Rows[0].Timestamp
	if got.IsZero() || got.Unix() != base.Truncate(time.Second).Unix() {
		t.Fatalf("expected timestamp %s parsed from JSON wire format, got %s", base, got)
	}
}

func TestHandleUpdateRejectsWhenNotActive(t *testing.T) {
	eng, _, _ := testEngine()
	cmd := &model.Command{ID: "c1", Kind: "manual.update", Payload: map[string]any{
		"plant_id": "lib", "signal": "p", "rows": []any{},
	}}
	eng.handleUpdate(cmd)
	if cmd.State != model.CommandRejected {
		t.Fatalf("expected rejected, got %s", cmd.State)
	}
}

func TestHandleInactivateRetainsAppliedSeries(t *testing.T) {
	eng, _, st := testEngine()
	base := time.Now().UTC().Add(time.Hour)
	rows := []any{map[string]any{"timestamp": base.Format(time.RFC3339), "setpoint": 5.0}}
	activate := &model.Command{ID: "c1", Kind: "manual.activate", Payload: map[string]any{
		"plant_id": "vrfb", "signal": "q", "rows": rows,
	}}
	eng.handleActivate(activate)

	inactivate := &model.Command{ID: "c2", Kind: "manual.inactivate", Payload: map[string]any{
		"plant_id": "vrfb", "signal": "q",
	}}
	eng.handleInactivate(inactivate)
	if inactivate.State != model.CommandSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", inactivate.State, inactivate.Message)
	}
	rt := st.ManualSeriesRuntimeSnapshot(model.ManualVRFBQ)
	if rt.State != state.ManualInactive || rt.Enabled {
		t.Fatalf("expected inactive+disabled runtime, got %+v", rt)
	}
	if len(rt.Applied.Rows) == 0 {
		t.Fatalf("expected applied series rows retained after inactivate")
	}
}

func TestHandleActivatePrunesRowsOutsideWindow(t *testing.T) {
	eng, _, st := testEngine()
	now := time.Now().UTC()
	rows := []any{
		map[string]any{"timestamp": now.AddDate(0, 0, -1).Format(time.RFC3339), "setpoint": 1.0},
		map[string]any{"timestamp": now.Add(time.Hour).Format(time.RFC3339), "setpoint": 2.0},
		map[string]any{"timestamp": now.AddDate(0, 0, 5).Format(time.RFC3339), "setpoint": 3.0},
	}
	cmd := &model.Command{ID: "c1", Kind: "manual.activate", Payload: map[string]any{
		"plant_id": "lib", "signal": "q", "rows": rows,
	}}
	eng.handleActivate(cmd)
	if cmd.State != model.CommandSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", cmd.State, cmd.Message)
	}
	rt := st.ManualSeriesRuntimeSnapshot(model.ManualLIBQ)
	for _, r := range rt.Applied.Rows {
		if r.Setpoint == 1.0 || r.Setpoint == 3.0 {
			t.Fatalf("expected out-of-window row (setpoint=%v) to be pruned, got rows=%+v", r.Setpoint, rt.Applied.Rows)
		}
	}
}

func TestPostingToggle(t *testing.T) {
	eng, _, st := testEngine()
	cmd := &model.Command{ID: "c1", Kind: "posting.enable"}
	eng.handlePostingToggle(cmd, true)
	if !st.PostingEnabledSnapshot() {
		t.Fatalf("expected posting enabled")
	}
}

// Package settings implements the Settings Engine agent: manual P/Q
// override activation, day-ahead API session management, and the
// measurement-posting policy toggle.
package settings

import (
	"context"
	"log"
	"time"

	"hil-scheduler/internal/control"
	"hil-scheduler/internal/dayahead"
	"hil-scheduler/internal/model"
	"hil-scheduler/internal/schedule"
	"hil-scheduler/internal/state"
)

// Engine is the Settings Engine agent. It shares the control package's
// CommandQueue type (same bounded/ring-buffer shape, independent instance).
type Engine struct {
	queue  *control.CommandQueue
	store  *state.Store
	api    *dayahead.Client
	loc    *time.Location
	period time.Duration
	log    *log.Logger
}

// New constructs an Engine. loc is the local timezone used to window
// manual series rows to [today_00:00, today_00:00+2days) on activate/update.
func New(queue *control.CommandQueue, store *state.Store, api *dayahead.Client, loc *time.Location, period time.Duration, logOut *log.Logger) *Engine {
	return &Engine{queue: queue, store: store, api: api, loc: loc, period: period, log: logOut}
}

// Run ticks the settings engine until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()
	e.store.SetSettingsEngineStatus(state.EngineStatus{Alive: true})
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.cycle()
		}
	}
}

func (e *Engine) cycle() {
	st := state.EngineStatus{Alive: true, LastLoopStart: time.Now()}
	cmd := e.queue.Dequeue()
	st.QueueDepth = e.queue.Depth()
	if cmd != nil {
		st.ActiveCommandID = cmd.ID
		e.execute(cmd)
		st.LastFinishedCommand = cmd.ID
	}
	st.FailedRecentCount = e.queue.RecentFailed(20)
	st.LastLoopEnd = time.Now()
	e.store.SetSettingsEngineStatus(st)
}

func (e *Engine) execute(cmd *model.Command) {
	started := time.Now()
	cmd.StartedAt = &started
	cmd.State = model.CommandRunning
	e.queue.Finish(cmd)

	switch cmd.Kind {
	case "manual.activate":
		e.handleActivate(cmd)
	case "manual.update":
		e.handleUpdate(cmd)
	case "manual.inactivate":
		e.handleInactivate(cmd)
	case "api.connect":
		e.handleAPIConnect(cmd)
	case "api.disconnect":
		e.handleAPIDisconnect(cmd)
	case "posting.enable":
		e.handlePostingToggle(cmd, true)
	case "posting.disable":
		e.handlePostingToggle(cmd, false)
	default:
		e.reject(cmd, "unknown_command")
	}

	finished := time.Now()
	cmd.FinishedAt = &finished
	e.queue.Finish(cmd)
}

func (e *Engine) succeed(cmd *model.Command, noop bool) {
	cmd.State = model.CommandSucceeded
	cmd.Noop = noop
}

func (e *Engine) fail(cmd *model.Command, message string) {
	cmd.State = model.CommandFailed
	cmd.Message = message
}

func (e *Engine) reject(cmd *model.Command, message string) {
	cmd.State = model.CommandRejected
	cmd.Message = message
}

// seriesKeyFromPayload resolves (plant_id, signal) payload fields into the
// corresponding model.ManualSeriesKey.
func seriesKeyFromPayload(cmd *model.Command) (model.ManualSeriesKey, bool, error) {
	pidRaw, _ := cmd.Payload["plant_id"].(string)
	signal, _ := cmd.Payload["signal"].(string)
	pid := model.PlantID(pidRaw)
	isP := signal == "p"
	switch {
	case pid == model.PlantLIB && isP:
		return model.ManualLIBP, true, nil
	case pid == model.PlantLIB && signal == "q":
		return model.ManualLIBQ, false, nil
	case pid == model.PlantVRFB && isP:
		return model.ManualVRFBP, true, nil
	case pid == model.PlantVRFB && signal == "q":
		return model.ManualVRFBQ, false, nil
	default:
		return "", false, errInvalidSeries
	}
}

var errInvalidSeries = seriesError("settings: invalid plant_id/signal combination")

type seriesError string

func (e seriesError) Error() string { return string(e) }

// rowsFromPayload decodes operator-authored rows as they actually arrive
// over the HTTP API: cmd.Payload is a map[string]any produced by
// gin.ShouldBindJSON, so a JSON timestamp string decodes to a Go string,
// never a time.Time. Rows with an unparseable timestamp are dropped.
func rowsFromPayload(cmd *model.Command) []model.ManualSeriesRow {
	raw, _ := cmd.Payload["rows"].([]any)
	rows := make([]model.ManualSeriesRow, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		tsStr, ok := m["timestamp"].(string)
		if !ok {
			continue
		}
		ts, err := time.Parse(time.RFC3339, tsStr)
		if err != nil {
			continue
		}
		setpoint, _ := m["setpoint"].(float64)
		rows = append(rows, model.ManualSeriesRow{Timestamp: ts, Setpoint: setpoint})
	}
	return rows
}

func plantForKey(key model.ManualSeriesKey) model.PlantID {
	switch key {
	case model.ManualLIBP, model.ManualLIBQ:
		return model.PlantLIB
	default:
		return model.PlantVRFB
	}
}

// handleActivate normalizes operator-authored rows, replaces the applied
// series, and enables the merge flag (spec §4.7 manual.activate).
func (e *Engine) handleActivate(cmd *model.Command) {
	key, isP, err := seriesKeyFromPayload(cmd)
	if err != nil {
		e.reject(cmd, err.Error())
		return
	}
	if rt := e.store.ManualSeriesRuntimeSnapshot(key); isTransitioning(rt.State) {
		e.reject(cmd, "rejected:already_transitioning")
		return
	}
	e.store.SetManualSeriesRuntime(key, state.ManualSeriesRuntime{State: state.ManualActivating})

	pruned := e.pruneToWindow(rowsFromPayload(cmd))
	normalized := schedule.EnsureTerminalEndRow(pruned)
	ms := schedule.SplitManualSeries(normalized)
	pid := plantForKey(key)
	e.store.SetManualSeries(pid, isP, ms, true)

	e.store.SetManualSeriesRuntime(key, state.ManualSeriesRuntime{State: state.ManualActive, Applied: ms, Enabled: true})
	e.succeed(cmd, false)
}

// handleUpdate replaces an already-active series's rows and keeps the
// series enabled; rejects if the series is not currently active.
func (e *Engine) handleUpdate(cmd *model.Command) {
	key, isP, err := seriesKeyFromPayload(cmd)
	if err != nil {
		e.reject(cmd, err.Error())
		return
	}
	rt := e.store.ManualSeriesRuntimeSnapshot(key)
	if rt.State != state.ManualActive {
		e.reject(cmd, "rejected:not_active")
		return
	}
	e.store.SetManualSeriesRuntime(key, state.ManualSeriesRuntime{State: state.ManualUpdating, Applied: rt.Applied, Enabled: rt.Enabled})

	pruned := e.pruneToWindow(rowsFromPayload(cmd))
	normalized := schedule.EnsureTerminalEndRow(pruned)
	ms := schedule.SplitManualSeries(normalized)
	pid := plantForKey(key)
	e.store.SetManualSeries(pid, isP, ms, true)

	e.store.SetManualSeriesRuntime(key, state.ManualSeriesRuntime{State: state.ManualActive, Applied: ms, Enabled: true})
	e.succeed(cmd, false)
}

// pruneToWindow drops operator-authored rows outside
// [today_00:00_local, today_00:00_local+2days), matching the window a
// day-ahead schedule can ever legitimately cover.
func (e *Engine) pruneToWindow(rows []model.ManualSeriesRow) []model.ManualSeriesRow {
	now := time.Now().In(e.loc)
	windowStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
	windowEnd := windowStart.AddDate(0, 0, 2)
	return schedule.PruneToWindow(rows, windowStart, windowEnd)
}

// handleInactivate disables the merge flag while retaining the applied
// series (so AsOf history stays intact for inspection).
func (e *Engine) handleInactivate(cmd *model.Command) {
	key, isP, err := seriesKeyFromPayload(cmd)
	if err != nil {
		e.reject(cmd, err.Error())
		return
	}
	rt := e.store.ManualSeriesRuntimeSnapshot(key)
	if isTransitioning(rt.State) {
		e.reject(cmd, "rejected:already_transitioning")
		return
	}
	e.store.SetManualSeriesRuntime(key, state.ManualSeriesRuntime{State: state.ManualInactivating, Applied: rt.Applied})

	pid := plantForKey(key)
	e.store.SetManualSeries(pid, isP, rt.Applied, false)

	e.store.SetManualSeriesRuntime(key, state.ManualSeriesRuntime{State: state.ManualInactive, Applied: rt.Applied, Enabled: false})
	e.succeed(cmd, false)
}

func isTransitioning(s state.ManualSeriesRuntimeState) bool {
	switch s {
	case state.ManualActivating, state.ManualInactivating, state.ManualUpdating:
		return true
	default:
		return false
	}
}

func (e *Engine) handleAPIConnect(cmd *model.Command) {
	if pw, ok := cmd.Payload["password"].(string); ok && pw != "" {
		e.store.SetAPIPassword(pw)
		e.api.SetPassword(pw)
	}
	e.store.SetAPIConnection(state.APIConnectionRuntime{State: state.APIConnecting})
	if err := e.api.Login(); err != nil {
		e.store.SetAPIConnection(state.APIConnectionRuntime{State: state.APIDisconnected, Reason: err.Error()})
		e.fail(cmd, "login_failed")
		return
	}
	e.store.SetAPIConnection(state.APIConnectionRuntime{State: state.APIConnected})
	e.succeed(cmd, false)
}

func (e *Engine) handleAPIDisconnect(cmd *model.Command) {
	e.store.SetAPIConnection(state.APIConnectionRuntime{State: state.APIDisconnected, Reason: "operator"})
	e.succeed(cmd, false)
}

func (e *Engine) handlePostingToggle(cmd *model.Command, enabled bool) {
	e.store.SetPostingEnabled(enabled)
	e.succeed(cmd, false)
}

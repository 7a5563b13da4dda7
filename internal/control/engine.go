package control

import (
	"context"
	"fmt"
	"log"
	"time"

	"hil-scheduler/internal/model"
	"hil-scheduler/internal/modbusx"
	"hil-scheduler/internal/state"
)

// EndpointResolver returns the Modbus endpoint for a plant on the
// current transport mode.
type EndpointResolver func(pid model.PlantID, mode model.TransportMode) (model.ModbusEndpoint, error)

// Engine is the Control Engine agent.
type Engine struct {
	queue    *CommandQueue
	store    *state.Store
	resolve  EndpointResolver
	period   time.Duration
	safeStopTimeout time.Duration
	safeStopThresholdKW float64
	log      *log.Logger
}

// New constructs an Engine.
func New(queue *CommandQueue, store *state.Store, resolve EndpointResolver, period time.Duration, logOut *log.Logger) *Engine {
	return &Engine{
		queue:               queue,
		store:               store,
		resolve:             resolve,
		period:              period,
		safeStopTimeout:     30 * time.Second,
		safeStopThresholdKW: 1.0,
		log:                 logOut,
	}
}

// Run ticks the control engine until ctx is cancelled (spec §4.6 cycle).
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()
	e.store.SetControlEngineStatus(state.EngineStatus{Alive: true})
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
	now := time.Now()
	st := state.EngineStatus{Alive: true, LastLoopStart: now}

	e.refreshObserved()
	st.LastObservedRefresh = time.Now()

	cmd := e.queue.Dequeue()
	st.QueueDepth = e.queue.Depth()
	if cmd != nil {
		st.ActiveCommandID = cmd.ID
		e.execute(cmd)
		st.LastFinishedCommand = cmd.ID
		e.refreshObserved()
	}
	st.FailedRecentCount = e.queue.RecentFailed(20)
	st.LastLoopEnd = time.Now()
	e.store.SetControlEngineStatus(st)
}

func (e *Engine) refreshObserved() {
	for _, pid := range model.Plants {
		e.refreshObservedOne(pid)
	}
}

func (e *Engine) refreshObservedOne(pid model.PlantID) {
	obs := e.store.Observed(pid)
	ep, err := e.resolve(pid, e.store.TransportSnapshot())
	if err != nil {
		obs.ReadStatus = model.ReadConnectFailed
		obs.ConsecutiveFailures++
		obs.LastAttempt = time.Now()
		e.store.SetObserved(pid, obs)
		return
	}
	client, err := modbusx.Dial(ep, time.Second)
	obs.LastAttempt = time.Now()
	if err != nil {
		obs.ReadStatus = model.ReadConnectFailed
		obs.ConsecutiveFailures++
		e.store.SetObserved(pid, obs)
		return
	}
	defer client.Close()

	enable, errE := client.ReadPoint(model.PointEnable)
	pBattery, errP := client.ReadPoint(model.PointPBattery)
	qBattery, errQ := client.ReadPoint(model.PointQBattery)
	if errE != nil || errP != nil || errQ != nil {
		obs.ReadStatus = model.ReadError
		obs.ConsecutiveFailures++
		e.store.SetObserved(pid, obs)
		return
	}

	enableInt := int(enable)
	now := time.Now()
	obs.EnableState = &enableInt
	obs.PBatteryKW = &pBattery
	obs.QBatteryKVAr = &qBattery
	obs.LastSuccess = &now
	obs.ReadStatus = model.ReadOK
	obs.ConsecutiveFailures = 0
	obs.Stale = false
	e.store.SetObserved(pid, obs)
}

func (e *Engine) execute(cmd *model.Command) {
	started := time.Now()
	cmd.StartedAt = &started
	cmd.State = model.CommandRunning
	e.queue.Finish(cmd)

	switch cmd.Kind {
	case "plant.start":
		e.handleStart(cmd)
	case "plant.stop":
		e.handleStop(cmd)
	case "plant.dispatch_enable":
		e.handleDispatchGate(cmd, true)
	case "plant.dispatch_disable":
		e.handleDispatchGate(cmd, false)
	case "plant.record_start":
		e.handleRecordToggle(cmd, true)
	case "plant.record_stop":
		e.handleRecordToggle(cmd, false)
	case "fleet.start_all":
		e.handleFleetStartAll(cmd)
	case "fleet.stop_all":
		e.handleFleetStopAll(cmd)
	case "transport.switch":
		e.handleTransportSwitch(cmd)
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

func plantIDFromPayload(cmd *model.Command) (model.PlantID, error) {
	v, ok := cmd.Payload["plant_id"]
	if !ok {
		return "", fmt.Errorf("missing plant_id")
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("plant_id must be a string")
	}
	return model.PlantID(s), nil
}

func (e *Engine) handleStart(cmd *model.Command) {
	pid, err := plantIDFromPayload(cmd)
	if err != nil {
		e.reject(cmd, err.Error())
		return
	}
	t := e.store.Transition(pid)
	if t == model.TransitionStarting || t == model.TransitionRunning {
		e.reject(cmd, "already_running")
		return
	}
	e.store.SetTransition(pid, model.TransitionStarting)

	if e.store.TransportSnapshot() == model.TransportLocal {
		e.requestSOCSeed(pid, cmd)
	}

	if err := e.writeEnable(pid, 1); err != nil {
		e.store.SetTransition(pid, model.TransitionStopped)
		e.fail(cmd, "enable_failed")
		return
	}
	e.store.SetTransition(pid, model.TransitionRunning)
	e.succeed(cmd, false)
}

func (e *Engine) requestSOCSeed(pid model.PlantID, cmd *model.Command) {
	requested := 0.5
	if v, ok := cmd.Payload["soc_pu"]; ok {
		if f, ok := v.(float64); ok {
			requested = f
		}
	}
	e.store.SetSOCSeedRequest(pid, &state.SOCSeedRequest{
		RequestID: cmd.ID,
		SOCPU:     requested,
		Deadline:  time.Now().Add(1500 * time.Millisecond),
	})
	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if res := e.store.SOCSeedResult(pid); res != nil && res.RequestID == cmd.ID {
			e.log.Printf("plant %s: soc seed %s", pid, res.Status)
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func (e *Engine) handleStop(cmd *model.Command) {
	pid, err := plantIDFromPayload(cmd)
	if err != nil {
		e.reject(cmd, err.Error())
		return
	}
	e.store.SetTransition(pid, model.TransitionStopping)
	if err := e.safeStop(pid); err != nil {
		e.store.SetTransition(pid, model.TransitionUnknown)
		e.fail(cmd, "disable_failed")
		return
	}
	e.store.SetTransition(pid, model.TransitionStopped)
	e.succeed(cmd, false)
}

// safeStop zeros setpoints, waits for battery power to settle below
// threshold, then disables the plant (spec glossary "Safe-stop").
func (e *Engine) safeStop(pid model.PlantID) error {
	ep, err := e.resolve(pid, e.store.TransportSnapshot())
	if err != nil {
		return err
	}
	client, err := modbusx.Dial(ep, 2*time.Second)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.WritePoint(model.PointPSetpoint, 0); err != nil {
		return err
	}
	if err := client.WritePoint(model.PointQSetpoint, 0); err != nil {
		return err
	}

	deadline := time.Now().Add(e.safeStopTimeout)
	for time.Now().Before(deadline) {
		p, err := client.ReadPoint(model.PointPBattery)
		if err == nil && absf(p) < e.safeStopThresholdKW {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	return client.WritePoint(model.PointEnable, 0)
}

func (e *Engine) writeEnable(pid model.PlantID, value float64) error {
	ep, err := e.resolve(pid, e.store.TransportSnapshot())
	if err != nil {
		return err
	}
	client, err := modbusx.Dial(ep, 2*time.Second)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.WritePoint(model.PointEnable, value)
}

func (e *Engine) handleDispatchGate(cmd *model.Command, enabled bool) {
	pid, err := plantIDFromPayload(cmd)
	if err != nil {
		e.reject(cmd, err.Error())
		return
	}
	e.store.SetSchedulerRunning(pid, enabled)
	e.succeed(cmd, false)
}

func (e *Engine) handleRecordToggle(cmd *model.Command, start bool) {
	pid, err := plantIDFromPayload(cmd)
	if err != nil {
		e.reject(cmd, err.Error())
		return
	}
	current := e.store.MeasurementsFilename(pid)
	if start {
		path, _ := cmd.Payload["path"].(string)
		if current == path && current != "" {
			e.succeed(cmd, true)
			return
		}
		e.store.SetMeasurementsFilename(pid, path)
	} else {
		if current == "" {
			e.succeed(cmd, true)
			return
		}
		e.store.SetMeasurementsFilename(pid, "")
	}
	e.succeed(cmd, false)
}

func (e *Engine) handleFleetStartAll(cmd *model.Command) {
	for _, pid := range model.Plants {
		path, _ := cmd.Payload[fmt.Sprintf("%s_path", pid)].(string)
		e.store.SetMeasurementsFilename(pid, path)
	}
	failures := map[string]string{}
	for _, pid := range model.Plants {
		sub := &model.Command{ID: cmd.ID, Kind: "plant.start", Payload: map[string]any{"plant_id": string(pid)}}
		e.handleStart(sub)
		if sub.State != model.CommandSucceeded {
			failures[string(pid)] = sub.Message
		}
	}
	if len(failures) > 0 {
		cmd.Result = map[string]any{"failures": failures}
		e.fail(cmd, "fleet_start_partial_failure")
		return
	}
	e.succeed(cmd, false)
}

func (e *Engine) handleFleetStopAll(cmd *model.Command) {
	failures := map[string]string{}
	for _, pid := range model.Plants {
		sub := &model.Command{ID: cmd.ID, Kind: "plant.stop", Payload: map[string]any{"plant_id": string(pid)}}
		e.handleStop(sub)
		if sub.State != model.CommandSucceeded {
			failures[string(pid)] = sub.Message
		}
	}
	for _, pid := range model.Plants {
		e.store.SetMeasurementsFilename(pid, "")
	}
	if len(failures) > 0 {
		cmd.Result = map[string]any{"failures": failures}
		e.fail(cmd, "fleet_stop_partial_failure")
		return
	}
	e.succeed(cmd, false)
}

func (e *Engine) handleTransportSwitch(cmd *model.Command) {
	mode, _ := cmd.Payload["mode"].(string)
	newMode := model.TransportMode(mode)
	if newMode != model.TransportLocal && newMode != model.TransportRemote {
		e.reject(cmd, "invalid_mode")
		return
	}
	if e.store.TransportSnapshot() == newMode {
		e.succeed(cmd, true)
		return
	}
	for _, pid := range model.Plants {
		_ = e.safeStop(pid)
	}
	e.store.SetTransport(newMode)
	e.succeed(cmd, false)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

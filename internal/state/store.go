// Package state holds the single mutex-guarded shared-state container
// that binds all seven agents together. Every cross-agent read is a
// snapshot (copy under lock, release); every write is a small atomic
// mutation (apply under lock, release). No I/O happens while the lock
// is held.
package state

import (
	"sync"
	"time"

	"hil-scheduler/internal/model"
)

// EngineStatus is the published health/activity snapshot of a command
// engine (control or settings).
type EngineStatus struct {
	Alive               bool
	LastLoopStart       time.Time
	LastLoopEnd         time.Time
	LastObservedRefresh time.Time
	LastException       string
	ActiveCommandID     string
	QueueDepth          int
	QueuedCount         int
	RunningCount        int
	FailedRecentCount   int
	LastFinishedCommand string
}

// FetchStatus is the Data Fetcher agent's published day-ahead status.
type FetchStatus struct {
	TodayDate             time.Time
	TomorrowDate          time.Time
	TodayFetched          bool
	TomorrowFetched       bool
	TodayPointsByPlant    map[model.PlantID]int
	TomorrowPointsByPlant map[model.PlantID]int
	LastAttempt           time.Time
	Error                 string
}

// PostStatus is the post worker's published per-plant status.
type PostStatus struct {
	LastAttempt       time.Time
	LastSuccess       time.Time
	LastError         string
	NextRetrySeconds  float64
	ConsecutiveFails  int
	QueueDepth        int
}

// APIConnectionState is the day-ahead API client's session state.
type APIConnectionState string

const (
	APIDisconnected APIConnectionState = "disconnected"
	APIConnecting   APIConnectionState = "connecting"
	APIConnected    APIConnectionState = "connected"
)

// APIConnectionRuntime is the published auth/session state of the
// day-ahead API client.
type APIConnectionRuntime struct {
	State  APIConnectionState
	Reason string
}

// ManualSeriesRuntime is the per-series transition state the settings
// engine publishes.
type ManualSeriesRuntimeState string

const (
	ManualInactive     ManualSeriesRuntimeState = "inactive"
	ManualActivating   ManualSeriesRuntimeState = "activating"
	ManualActive       ManualSeriesRuntimeState = "active"
	ManualInactivating ManualSeriesRuntimeState = "inactivating"
	ManualUpdating     ManualSeriesRuntimeState = "updating"
	ManualError        ManualSeriesRuntimeState = "error"
)

type ManualSeriesRuntime struct {
	State   ManualSeriesRuntimeState
	Applied model.ManualSeries
	Enabled bool
	Error   string
}

// plantState bundles every per-plant field the Store tracks.
type plantState struct {
	APIBase                model.ScheduleFrame
	ManualP                model.ManualSeries
	ManualQ                model.ManualSeries
	ManualPEnabled         bool
	ManualQEnabled         bool
	Observed               model.ObservedState
	Transition             model.TransitionState
	DispatchWrite          model.DispatchWriteStatus
	LastDispatched         *model.ScheduleRow
	SchedulerRunning       bool
	MeasurementsFilename   string
	LastKeptMeasurement    *model.MeasurementRow
	PostStatus             PostStatus
	SOCSeedRequest         *SOCSeedRequest
	SOCSeedResult          *SOCSeedResult
}

// SOCSeedRequest is published by the control engine on plant.start and
// consumed by the emulator.
type SOCSeedRequest struct {
	RequestID string
	SOCPU     float64
	Deadline  time.Time
}

// SOCSeedResult is the emulator's reply to a SOCSeedRequest.
type SOCSeedResult struct {
	RequestID string
	Status    string // applied | skipped | error
	SOCPU     float64
	Message   string
}

// Store is the process-wide shared-state container.
type Store struct {
	mu sync.RWMutex

	TransportMode model.TransportMode

	plants map[model.PlantID]*plantState

	ManualSeriesRuntime map[model.ManualSeriesKey]ManualSeriesRuntime

	ControlEngineStatus  EngineStatus
	SettingsEngineStatus EngineStatus
	FetchStatus          FetchStatus
	APIConnection        APIConnectionRuntime
	APIPassword          string
	PostingEnabled       bool
}

// New constructs a Store with both plants initialized.
func New(initialTransport model.TransportMode) *Store {
	s := &Store{
		TransportMode:       initialTransport,
		plants:              map[model.PlantID]*plantState{},
		ManualSeriesRuntime: map[model.ManualSeriesKey]ManualSeriesRuntime{},
		APIConnection:       APIConnectionRuntime{State: APIDisconnected},
	}
	for _, pid := range model.Plants {
		s.plants[pid] = &plantState{Transition: model.TransitionStopped}
	}
	for _, key := range []model.ManualSeriesKey{model.ManualLIBP, model.ManualLIBQ, model.ManualVRFBP, model.ManualVRFBQ} {
		s.ManualSeriesRuntime[key] = ManualSeriesRuntime{State: ManualInactive}
	}
	return s
}

// Mutate applies fn to the plant state for pid under the write lock.
func (s *Store) Mutate(pid model.PlantID, fn func(*plantState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.plants[pid])
}

// Snapshot returns a shallow copy of the plant state for pid under the
// read lock; callers must not retain pointers into shared slices/maps
// longer than needed without their own copy.
func (s *Store) Snapshot(pid model.PlantID) plantState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.plants[pid]
}

// TransportSnapshot returns the current transport mode.
func (s *Store) TransportSnapshot() model.TransportMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.TransportMode
}

// SetTransport atomically swaps the transport mode.
func (s *Store) SetTransport(mode model.TransportMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TransportMode = mode
}

// Observed returns the current ObservedState for a plant.
func (s *Store) Observed(pid model.PlantID) model.ObservedState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plants[pid].Observed
}

// SetObserved atomically replaces a plant's ObservedState.
func (s *Store) SetObserved(pid model.PlantID, obs model.ObservedState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants[pid].Observed = obs
}

// Transition returns the current TransitionState for a plant.
func (s *Store) Transition(pid model.PlantID) model.TransitionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plants[pid].Transition
}

// SetTransition atomically sets a plant's TransitionState.
func (s *Store) SetTransition(pid model.PlantID, t model.TransitionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants[pid].Transition = t
}

// SetAPIBase atomically replaces a plant's API base schedule frame.
func (s *Store) SetAPIBase(pid model.PlantID, frame model.ScheduleFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants[pid].APIBase = frame
}

// ScheduleSnapshot returns everything the scheduler needs for one tick.
type ScheduleSnapshot struct {
	APIBase          model.ScheduleFrame
	ManualP          model.ManualSeries
	ManualQ          model.ManualSeries
	ManualPEnabled   bool
	ManualQEnabled   bool
	SchedulerRunning bool
	LastDispatched   *model.ScheduleRow
}

// ScheduleSnapshotFor returns a ScheduleSnapshot for one plant.
func (s *Store) ScheduleSnapshotFor(pid model.PlantID) ScheduleSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.plants[pid]
	return ScheduleSnapshot{
		APIBase:          p.APIBase,
		ManualP:          p.ManualP,
		ManualQ:          p.ManualQ,
		ManualPEnabled:   p.ManualPEnabled,
		ManualQEnabled:   p.ManualQEnabled,
		SchedulerRunning: p.SchedulerRunning,
		LastDispatched:   p.LastDispatched,
	}
}

// SetSchedulerRunning toggles the dispatch gate for a plant.
func (s *Store) SetSchedulerRunning(pid model.PlantID, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants[pid].SchedulerRunning = running
}

// SetLastDispatched records the last value successfully written to a plant.
func (s *Store) SetLastDispatched(pid model.PlantID, row model.ScheduleRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants[pid].LastDispatched = &row
}

// SetDispatchWriteStatus publishes the scheduler's latest write outcome.
func (s *Store) SetDispatchWriteStatus(pid model.PlantID, st model.DispatchWriteStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants[pid].DispatchWrite = st
}

// DispatchWriteStatus returns the scheduler's latest published write outcome.
func (s *Store) DispatchWriteStatus(pid model.PlantID) model.DispatchWriteStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plants[pid].DispatchWrite
}

// SetManualSeries atomically replaces a plant's manual P or Q series.
func (s *Store) SetManualSeries(pid model.PlantID, isP bool, series model.ManualSeries, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.plants[pid]
	if isP {
		p.ManualP = series
		p.ManualPEnabled = enabled
	} else {
		p.ManualQ = series
		p.ManualQEnabled = enabled
	}
}

// SetMeasurementsFilename sets or clears (empty string) the recording
// path for a plant.
func (s *Store) SetMeasurementsFilename(pid model.PlantID, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants[pid].MeasurementsFilename = path
}

// MeasurementsFilename returns the current recording path for a plant
// ("" means recording is off).
func (s *Store) MeasurementsFilename(pid model.PlantID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plants[pid].MeasurementsFilename
}

// LastKeptMeasurement returns the last row the compressor kept for a plant.
func (s *Store) LastKeptMeasurement(pid model.PlantID) *model.MeasurementRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plants[pid].LastKeptMeasurement
}

// SetLastKeptMeasurement atomically updates the compressor's reference row.
func (s *Store) SetLastKeptMeasurement(pid model.PlantID, row model.MeasurementRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants[pid].LastKeptMeasurement = &row
}

// SetSOCSeedRequest publishes a pending SoC seed request for the emulator.
func (s *Store) SetSOCSeedRequest(pid model.PlantID, req *SOCSeedRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants[pid].SOCSeedRequest = req
}

// TakeSOCSeedRequest atomically reads and clears a pending seed request.
func (s *Store) TakeSOCSeedRequest(pid model.PlantID) *SOCSeedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.plants[pid]
	req := p.SOCSeedRequest
	p.SOCSeedRequest = nil
	return req
}

// SetSOCSeedResult publishes the emulator's reply to a seed request.
func (s *Store) SetSOCSeedResult(pid model.PlantID, res SOCSeedResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants[pid].SOCSeedResult = &res
}

// SOCSeedResult returns the last published seed-request result, if any.
func (s *Store) SOCSeedResult(pid model.PlantID) *SOCSeedResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plants[pid].SOCSeedResult
}

// SetPostStatus updates the post worker's published per-plant status.
func (s *Store) SetPostStatus(pid model.PlantID, st PostStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants[pid].PostStatus = st
}

// PostStatusFor returns the post worker's published per-plant status.
func (s *Store) PostStatusFor(pid model.PlantID) PostStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plants[pid].PostStatus
}

// SetControlEngineStatus publishes the control engine's status.
func (s *Store) SetControlEngineStatus(st EngineStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ControlEngineStatus = st
}

// SetSettingsEngineStatus publishes the settings engine's status.
func (s *Store) SetSettingsEngineStatus(st EngineStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SettingsEngineStatus = st
}

// SetFetchStatus publishes the data fetcher's status.
func (s *Store) SetFetchStatus(st FetchStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FetchStatus = st
}

// FetchStatusSnapshot returns the data fetcher's published status.
func (s *Store) FetchStatusSnapshot() FetchStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.FetchStatus
}

// SetAPIConnection publishes the API client's connection state.
func (s *Store) SetAPIConnection(rt APIConnectionRuntime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.APIConnection = rt
}

// APIConnectionSnapshot returns the API client's connection state.
func (s *Store) APIConnectionSnapshot() APIConnectionRuntime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.APIConnection
}

// SetAPIPassword stores the operator-supplied API password.
func (s *Store) SetAPIPassword(pw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.APIPassword = pw
}

// APIPasswordSnapshot returns the stored API password ("" if unset).
func (s *Store) APIPasswordSnapshot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.APIPassword
}

// SetPostingEnabled toggles the measurement-posting policy.
func (s *Store) SetPostingEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PostingEnabled = enabled
}

// PostingEnabledSnapshot returns the measurement-posting policy.
func (s *Store) PostingEnabledSnapshot() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.PostingEnabled
}

// SetManualSeriesRuntime publishes a manual series's transition state.
func (s *Store) SetManualSeriesRuntime(key model.ManualSeriesKey, rt ManualSeriesRuntime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ManualSeriesRuntime[key] = rt
}

// ManualSeriesRuntimeSnapshot returns a manual series's transition state.
func (s *Store) ManualSeriesRuntimeSnapshot(key model.ManualSeriesKey) ManualSeriesRuntime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ManualSeriesRuntime[key]
}

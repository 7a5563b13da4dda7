// Package dispatch implements the Scheduler agent: each tick it resolves
// the effective setpoint for every gated plant and writes it to the
// plant over Modbus/TCP, publishing dispatch telemetry.
package dispatch

import (
	"context"
	"log"
	"time"

	"hil-scheduler/internal/model"
	"hil-scheduler/internal/modbusx"
	"hil-scheduler/internal/schedule"
	"hil-scheduler/internal/state"
)

// EndpointResolver returns the Modbus endpoint for a plant on the
// current transport mode.
type EndpointResolver func(pid model.PlantID, mode model.TransportMode) (model.ModbusEndpoint, error)

// Scheduler runs the dispatch loop for every plant.
type Scheduler struct {
	store        *state.Store
	resolve      EndpointResolver
	period       time.Duration
	apiValidity  time.Duration
	writeEpsilon float64
	log          *log.Logger

	lastSkippedPublished map[model.PlantID]bool
}

// New constructs a Scheduler.
func New(store *state.Store, resolve EndpointResolver, period, apiValidity time.Duration, logOut *log.Logger) *Scheduler {
	return &Scheduler{
		store:                 store,
		resolve:               resolve,
		period:                period,
		apiValidity:           apiValidity,
		writeEpsilon:          0.01,
		log:                   logOut,
		lastSkippedPublished:  map[model.PlantID]bool{},
	}
}

// Run ticks the scheduler until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, pid := range model.Plants {
				s.tick(pid)
			}
		}
	}
}

func (s *Scheduler) tick(pid model.PlantID) {
	snap := s.store.ScheduleSnapshotFor(pid)
	if !snap.SchedulerRunning {
		if !s.lastSkippedPublished[pid] {
			s.store.SetDispatchWriteStatus(pid, model.DispatchWriteStatus{
				SendingEnabled: false,
				AttemptedAt:    time.Now(),
				Status:         "skipped",
				Error:          "dispatch_paused",
			})
			s.lastSkippedPublished[pid] = true
		}
		return
	}
	s.lastSkippedPublished[pid] = false

	now := time.Now()
	p, q, stale := schedule.Resolve(snap.APIBase, snap.ManualP, snap.ManualQ, snap.ManualPEnabled, snap.ManualQEnabled, now, s.apiValidity)
	source := "api"
	if snap.ManualPEnabled || snap.ManualQEnabled {
		source = "manual"
	}
	if stale {
		source = "api_stale"
	}

	if snap.LastDispatched != nil &&
		abs(snap.LastDispatched.PSetpointKW-p) <= s.writeEpsilon &&
		abs(snap.LastDispatched.QSetpointKVAr-q) <= s.writeEpsilon {
		return
	}

	mode := s.store.TransportSnapshot()
	ep, err := s.resolve(pid, mode)
	if err != nil {
		s.publishFailure(pid, p, q, source, err.Error())
		return
	}
	client, err := modbusx.Dial(ep, 2*time.Second)
	if err != nil {
		s.publishFailure(pid, p, q, source, err.Error())
		return
	}
	defer client.Close()

	if err := client.WritePoint(model.PointPSetpoint, p); err != nil {
		s.publishFailure(pid, p, q, source, err.Error())
		return
	}
	if err := client.WritePoint(model.PointQSetpoint, q); err != nil {
		s.publishFailure(pid, p, q, source, err.Error())
		return
	}

	s.store.SetLastDispatched(pid, model.ScheduleRow{Timestamp: now, PSetpointKW: p, QSetpointKVAr: q})
	s.store.SetDispatchWriteStatus(pid, model.DispatchWriteStatus{
		SendingEnabled: true,
		AttemptedAt:    now,
		PKW:            p,
		QKVAr:          q,
		Source:         source,
		Status:         "ok",
	})
}

func (s *Scheduler) publishFailure(pid model.PlantID, p, q float64, source, errMsg string) {
	s.log.Printf("plant %s: dispatch write failed: %s", pid, errMsg)
	s.store.SetDispatchWriteStatus(pid, model.DispatchWriteStatus{
		SendingEnabled: true,
		AttemptedAt:    time.Now(),
		PKW:            p,
		QKVAr:          q,
		Source:         source,
		Status:         "failed",
		Error:          errMsg,
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

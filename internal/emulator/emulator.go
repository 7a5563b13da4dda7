// Package emulator simulates a battery plant on the local transport: a
// Modbus/TCP server that accepts setpoint writes, integrates state of
// charge under active/reactive power limiting, and reports a
// point-of-interconnection power model back through the point map.
package emulator

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"hil-scheduler/internal/model"
	"hil-scheduler/internal/modbusx"
	"hil-scheduler/internal/state"
)

// Emulator is one plant's local Modbus/TCP server plus its SoC simulation.
type Emulator struct {
	pid      model.PlantID
	plant    model.PlantModel
	endpoint model.ModbusEndpoint
	file     *modbusx.RegisterFile
	server   *modbusx.Server
	store    *state.Store
	period   time.Duration
	log      *log.Logger

	socKWh             float64
	wasLimitedCharge    bool
	wasLimitedDischarge bool
	lastLimitedPowerKW  float64
}

// New starts a local Modbus/TCP server for one plant and returns its
// Emulator, seeded at initialSOCPU.
func New(pid model.PlantID, plant model.PlantModel, endpoint model.ModbusEndpoint, store *state.Store, period time.Duration, initialSOCPU float64, logOut *log.Logger) (*Emulator, error) {
	file := modbusx.NewRegisterFile()
	server, err := modbusx.NewServer(endpoint.Host, endpoint.Port, file)
	if err != nil {
		return nil, fmt.Errorf("emulator[%s]: start server: %w", pid, err)
	}
	e := &Emulator{
		pid:      pid,
		plant:    plant,
		endpoint: endpoint,
		file:     file,
		server:   server,
		store:    store,
		period:   period,
		log:      logOut,
		socKWh:   initialSOCPU * plant.CapacityKWh,
	}
	e.writePoint(model.PointEnable, 0)
	e.writePoint(model.PointSOC, initialSOCPU)
	return e, nil
}

// Stop shuts the server down.
func (e *Emulator) Stop() error {
	return e.server.Stop()
}

// Run ticks the emulator until ctx is cancelled.
func (e *Emulator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()
	dtH := e.period.Hours()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(dtH)
		}
	}
}

func (e *Emulator) readPoint(name model.PointName) float64 {
	spec := e.endpoint.Points[name]
	return e.file.ReadPoint(e.endpoint, spec)
}

func (e *Emulator) writePoint(name model.PointName, value float64) {
	spec := e.endpoint.Points[name]
	if err := e.file.WritePoint(e.endpoint, spec, value); err != nil {
		e.log.Printf("write %s: %v", name, err)
	}
}

func (e *Emulator) tick(dtH float64) {
	e.applySOCSeedRequest()

	enable := e.readPoint(model.PointEnable)
	pReqKW := e.readPoint(model.PointPSetpoint)
	qReqKVAr := e.readPoint(model.PointQSetpoint)
	if enable == 0 {
		pReqKW = 0
		qReqKVAr = 0
	}

	pActualKW := e.limitActivePower(pReqKW, dtH)
	qActualKW := clamp(qReqKVAr, e.plant.QMinKVAr, e.plant.QMaxKVAr)

	e.socKWh = clamp(e.socKWh-pActualKW*dtH, 0, e.plant.CapacityKWh)
	socPU := 0.0
	if e.plant.CapacityKWh > 0 {
		socPU = e.socKWh / e.plant.CapacityKWh
	}

	pPOIKW, qPOIKVAr, vPOIKV := calculatePOIPower(pActualKW, qActualKW, e.plant.POIVoltageKV, defaultPOIConstants)

	e.writePoint(model.PointPBattery, pActualKW)
	e.writePoint(model.PointQBattery, qActualKW)
	e.writePoint(model.PointSOC, socPU)
	e.writePoint(model.PointPPOI, pPOIKW)
	e.writePoint(model.PointQPOI, qPOIKVAr)
	e.writePoint(model.PointVPOI, vPOIKV)
}

// limitActivePower applies the active-power SoC limiting rule (spec
// §4.1 step 3): positive means discharge, negative means charge.
func (e *Emulator) limitActivePower(pReqKW, dtH float64) float64 {
	pActual, limited := limitActivePowerSOC(e.socKWh, e.plant.CapacityKWh, pReqKW, dtH)
	isCharge := pReqKW < 0
	if limited {
		e.logLimitTransition(isCharge, limited, pActual)
	} else {
		e.wasLimitedCharge = false
		e.wasLimitedDischarge = false
	}
	return pActual
}

func (e *Emulator) logLimitTransition(isCharge, limited bool, pActual float64) {
	wasLimited := e.wasLimitedCharge
	if !isCharge {
		wasLimited = e.wasLimitedDischarge
	}
	changed := !wasLimited || math.Abs(pActual-e.lastLimitedPowerKW) >= 0.01
	if limited && changed {
		kind := "charge"
		if !isCharge {
			kind = "discharge"
		}
		e.log.Printf("plant %s: %s limited by SoC bound, p_actual=%.2f kW", e.pid, kind, pActual)
		e.lastLimitedPowerKW = pActual
	}
	if isCharge {
		e.wasLimitedCharge = limited
	} else {
		e.wasLimitedDischarge = limited
	}
}

func (e *Emulator) applySOCSeedRequest() {
	req := e.store.TakeSOCSeedRequest(e.pid)
	if req == nil {
		return
	}
	enable := e.readPoint(model.PointEnable)
	if enable != 0 {
		e.store.SetSOCSeedResult(e.pid, state.SOCSeedResult{
			RequestID: req.RequestID,
			Status:    "skipped",
			SOCPU:     e.socKWh / e.plant.CapacityKWh,
			Message:   "plant is enabled",
		})
		return
	}
	soc := clamp(req.SOCPU, 0, 1)
	e.socKWh = soc * e.plant.CapacityKWh
	e.writePoint(model.PointSOC, soc)
	e.store.SetSOCSeedResult(e.pid, state.SOCSeedResult{
		RequestID: req.RequestID,
		Status:    "applied",
		SOCPU:     soc,
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

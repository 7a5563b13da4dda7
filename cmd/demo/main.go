// Command demo is a local-transport-only dry run: it starts both plant
// emulators and the dispatch scheduler against an in-memory synthetic
// schedule, runs for a short fixed duration, and prints a measurement
// summary. No day-ahead API, recording, or operator HTTP API involved.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"hil-scheduler/internal/dispatch"
	"hil-scheduler/internal/emulator"
	"hil-scheduler/internal/model"
	"hil-scheduler/internal/modbusx"
	"hil-scheduler/internal/state"
)

func main() {
	duration := flag.Duration("duration", 8*time.Second, "How long to run the demo")
	flag.Parse()

	logger := log.New(os.Stdout, "demo: ", log.LstdFlags)

	plants := map[model.PlantID]model.PlantModel{
		model.PlantLIB:  {CapacityKWh: 2000, PMaxKW: 500, PMinKW: -500, QMaxKVAr: 200, QMinKVAr: -200, POIVoltageKV: 11.0},
		model.PlantVRFB: {CapacityKWh: 4000, PMaxKW: 300, PMinKW: -300, QMaxKVAr: 150, QMinKVAr: -150, POIVoltageKV: 11.0},
	}
	endpoints := map[model.PlantID]model.ModbusEndpoint{
		model.PlantLIB:  syntheticEndpoint(15021),
		model.PlantVRFB: syntheticEndpoint(15022),
	}

	store := state.New(model.TransportLocal)
	ctx, cancel := context.WithTimeout(context.Background(), *duration+2*time.Second)
	defer cancel()

	for _, pid := range model.Plants {
		em, err := emulator.New(pid, plants[pid], endpoints[pid], store, 200*time.Millisecond, 0.5, logger)
		if err != nil {
			logger.Fatalf("plant %s: start emulator: %v", pid, err)
		}
		defer em.Stop()
		go em.Run(ctx)

		now := time.Now()
		store.SetAPIBase(pid, model.ScheduleFrame{Rows: []model.ScheduleRow{
			{Timestamp: now.Add(-time.Minute), PSetpointKW: 100, QSetpointKVAr: 10},
			{Timestamp: now.Add(3 * time.Second), PSetpointKW: -150, QSetpointKVAr: -5},
		}})
		store.SetSchedulerRunning(pid, true)
	}

	resolve := func(pid model.PlantID, mode model.TransportMode) (model.ModbusEndpoint, error) {
		return endpoints[pid], nil
	}
	scheduler := dispatch.New(store, resolve, 200*time.Millisecond, time.Hour, logger)
	go scheduler.Run(ctx)

	<-ctx.Done()

	fmt.Println("\n--- measurement summary ---")
	for _, pid := range model.Plants {
		client, err := modbusx.Dial(endpoints[pid], time.Second)
		if err != nil {
			fmt.Printf("%s: dial failed: %v\n", pid, err)
			continue
		}
		p, _ := client.ReadPoint(model.PointPBattery)
		q, _ := client.ReadPoint(model.PointQBattery)
		soc, _ := client.ReadPoint(model.PointSOC)
		poi, _ := client.ReadPoint(model.PointPPOI)
		fmt.Printf("%s: p_battery=%.2fkW q_battery=%.2fkVAr soc=%.4f p_poi=%.2fkW\n", pid, p, q, soc, poi)
		client.Close()
	}
}

func syntheticEndpoint(port int) model.ModbusEndpoint {
	return model.ModbusEndpoint{
		Host:      "127.0.0.1",
		Port:      port,
		ByteOrder: model.ByteOrderBig,
		WordOrder: model.WordOrderMSWFirst,
		Points: map[model.PointName]model.PointSpec{
			model.PointPSetpoint: {Address: 0, Format: model.FormatFloat32, Access: model.AccessReadWrite, Unit: "kW", EngPerCount: 1},
			model.PointPBattery:  {Address: 2, Format: model.FormatFloat32, Access: model.AccessRead, Unit: "kW", EngPerCount: 1},
			model.PointQSetpoint: {Address: 4, Format: model.FormatFloat32, Access: model.AccessReadWrite, Unit: "kVAr", EngPerCount: 1},
			model.PointQBattery:  {Address: 6, Format: model.FormatFloat32, Access: model.AccessRead, Unit: "kVAr", EngPerCount: 1},
			model.PointEnable:    {Address: 8, Format: model.FormatUint16, Access: model.AccessReadWrite, Unit: "", EngPerCount: 1},
			model.PointSOC:       {Address: 9, Format: model.FormatFloat32, Access: model.AccessRead, Unit: "pu", EngPerCount: 1},
			model.PointPPOI:      {Address: 11, Format: model.FormatFloat32, Access: model.AccessRead, Unit: "kW", EngPerCount: 1},
			model.PointQPOI:      {Address: 13, Format: model.FormatFloat32, Access: model.AccessRead, Unit: "kVAr", EngPerCount: 1},
			model.PointVPOI:      {Address: 15, Format: model.FormatFloat32, Access: model.AccessRead, Unit: "kV", EngPerCount: 1},
		},
	}
}

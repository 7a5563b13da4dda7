// Command hilscheduler runs the full HIL dispatch scheduler: the plant
// emulators (local transport), the dispatch scheduler, the measurement
// sampler/recorder, the day-ahead data fetcher, the measurement post
// worker, the control and settings engines, and the operator HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hil-scheduler/internal/api"
	"hil-scheduler/internal/config"
	"hil-scheduler/internal/control"
	"hil-scheduler/internal/dayahead"
	"hil-scheduler/internal/dispatch"
	"hil-scheduler/internal/emulator"
	"hil-scheduler/internal/measurement"
	"hil-scheduler/internal/model"
	"hil-scheduler/internal/postqueue"
	"hil-scheduler/internal/settings"
	"hil-scheduler/internal/state"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to YAML configuration")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	store := state.New(model.TransportMode(cfg.Startup.TransportMode))

	resolve := func(pid model.PlantID, mode model.TransportMode) (model.ModbusEndpoint, error) {
		pc := cfg.Plants[string(pid)]
		return pc.Endpoint(mode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, pid := range model.Plants {
		pc := cfg.Plants[string(pid)]
		ep, err := pc.Endpoint(model.TransportLocal)
		if err != nil {
			logger.Fatalf("plant %s: local endpoint: %v", pid, err)
		}
		em, err := emulator.New(pid, pc.PlantModel(), ep, store, time.Duration(cfg.Timing.PlantPeriodS*float64(time.Second)), cfg.Startup.InitialSOCPU, logger)
		if err != nil {
			logger.Fatalf("plant %s: start emulator: %v", pid, err)
		}
		defer em.Stop()
		go em.Run(ctx)
	}

	scheduler := dispatch.New(store, dispatch.EndpointResolver(resolve),
		time.Duration(cfg.Timing.SchedulerPeriodS*float64(time.Second)),
		time.Duration(cfg.API.ScheduleValidityWindowMinutes)*time.Minute,
		logger)
	go scheduler.Run(ctx)

	dayaheadClient := dayahead.New(cfg.API.BaseURL, cfg.API.Email, logger)
	fetcher, err := dayahead.NewFetcher(dayaheadClient, store, loc,
		time.Duration(cfg.Timing.DataFetcherPeriodS*float64(time.Second)),
		cfg.API.TomorrowPollStartTime, cfg.API.SchedulePeriodMinutes, logger)
	if err != nil {
		logger.Fatalf("data fetcher: %v", err)
	}
	go fetcher.Run(ctx)

	postQueue := postqueue.New(dayaheadClient, store, cfg.API.PostQueueMaxLen,
		cfg.API.PostRetryInitialS, cfg.API.PostRetryMaxS,
		time.Duration(cfg.Timing.MeasurementPostPeriodS*float64(time.Second)), logger)
	go postQueue.Run(ctx)

	for _, pid := range model.Plants {
		pc := cfg.Plants[string(pid)]
		sampler := measurement.New(pid, pc.Name, pc.PlantModel(), measurement.EndpointResolver(resolve), store,
			cfg.Recording.Tolerances, cfg.Recording.MaxKeptGapS, cfg.Recording.DataDir,
			pc.MeasurementSeries, postQueue,
			time.Duration(cfg.Timing.MeasurementPeriodS*float64(time.Second)), logger)
		go sampler.Run(ctx)
	}

	controlQueue := control.NewCommandQueue(16, 200)
	controlEngine := control.New(controlQueue, store, control.EndpointResolver(resolve),
		time.Duration(cfg.Timing.ControlEngineLoopPeriodS*float64(time.Second)), logger)
	go controlEngine.Run(ctx)

	settingsQueue := control.NewCommandQueue(16, 200)
	settingsEngine := settings.New(settingsQueue, store, dayaheadClient, loc,
		time.Duration(cfg.Timing.SettingsEngineLoopPeriodS*float64(time.Second)), logger)
	go settingsEngine.Run(ctx)

	router := api.NewRouter(store, controlQueue, settingsQueue, cfg.Server.AllowedOrigins)
	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: router}
	go func() {
		logger.Printf("listening on %s", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Println("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	cancel()
}

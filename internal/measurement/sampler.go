package measurement

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"hil-scheduler/internal/config"
	"hil-scheduler/internal/model"
	"hil-scheduler/internal/modbusx"
	"hil-scheduler/internal/state"
)

// EndpointResolver returns the Modbus endpoint for a plant on the
// current transport mode.
type EndpointResolver func(pid model.PlantID, mode model.TransportMode) (model.ModbusEndpoint, error)

// PostEnqueuer enqueues a PostItem for a plant; satisfied by
// internal/postqueue.Queue.
type PostEnqueuer interface {
	Enqueue(pid model.PlantID, item model.PostItem)
}

// Sampler runs the Measurement Sampler/Compressor/Recorder agent for one
// plant.
type Sampler struct {
	pid          model.PlantID
	resolve      EndpointResolver
	store        *state.Store
	tol          config.CompressionTolerances
	maxGapS      float64
	dataDir      string
	plantName    string
	capacityKWh  float64
	poiVoltageKV float64
	seriesCfg    config.MeasurementSeriesConfig
	postQueue    PostEnqueuer
	period       time.Duration
	log          *log.Logger

	client     *Client
	recorder   Recorder
	recorderOpen bool
	currentDay string
}

// Client is an alias for modbusx.Client, the connection the sampler reads
// points through.
type Client = modbusx.Client

// New constructs a Sampler for one plant.
func New(pid model.PlantID, plantName string, plant model.PlantModel, resolve EndpointResolver, store *state.Store, tol config.CompressionTolerances, maxGapS float64, dataDir string, seriesCfg config.MeasurementSeriesConfig, postQueue PostEnqueuer, period time.Duration, logOut *log.Logger) *Sampler {
	return &Sampler{
		pid:          pid,
		resolve:      resolve,
		store:        store,
		tol:          tol,
		maxGapS:      maxGapS,
		dataDir:      dataDir,
		plantName:    SanitizePlantName(plantName, string(pid)),
		capacityKWh:  plant.CapacityKWh,
		poiVoltageKV: plant.POIVoltageKV,
		seriesCfg:    seriesCfg,
		postQueue:    postQueue,
		period:       period,
		log:          logOut,
	}
}

// Run ticks the sampler until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.recorder.WriteEndSentinel(time.Now())
			s.recorder.Close()
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sampler) tick() {
	mode := s.store.TransportSnapshot()
	ep, err := s.resolve(s.pid, mode)
	if err != nil {
		s.log.Printf("plant %s: resolve endpoint: %v", s.pid, err)
		return
	}
	if s.client == nil || endpointKey(s.client.Endpoint()) != endpointKey(ep) {
		if s.client != nil {
			s.client.Close()
		}
		client, err := modbusx.Dial(ep, 2*time.Second)
		if err != nil {
			s.log.Printf("plant %s: dial: %v", s.pid, err)
			return
		}
		s.client = client
	}

	row, err := s.sample(time.Now())
	if err != nil {
		s.log.Printf("plant %s: sample: %v", s.pid, err)
		s.client.Close()
		s.client = nil
		return
	}

	s.recordAndPost(row)
}

func (s *Sampler) sample(now time.Time) (model.MeasurementRow, error) {
	row := model.MeasurementRow{Timestamp: now}
	read := func(name model.PointName) (float64, error) { return s.client.ReadPoint(name) }
	var err error
	if row.PSetpointKW, err = read(model.PointPSetpoint); err != nil {
		return row, err
	}
	if row.BatteryActivePowerKW, err = read(model.PointPBattery); err != nil {
		return row, err
	}
	if row.QSetpointKVAr, err = read(model.PointQSetpoint); err != nil {
		return row, err
	}
	if row.BatteryReactivePowerKVAr, err = read(model.PointQBattery); err != nil {
		return row, err
	}
	if row.SOCPU, err = read(model.PointSOC); err != nil {
		return row, err
	}
	if row.PPOIKW, err = read(model.PointPPOI); err != nil {
		return row, err
	}
	if row.QPOIKVAr, err = read(model.PointQPOI); err != nil {
		return row, err
	}
	if row.VPOIKV, err = read(model.PointVPOI); err != nil {
		return row, err
	}
	return row, nil
}

func (s *Sampler) recordAndPost(row model.MeasurementRow) {
	path := s.store.MeasurementsFilename(s.pid)
	day := row.Timestamp.Format("20060102")

	rolled := path != "" && s.currentDay != "" && s.currentDay != day
	last := s.store.LastKeptMeasurement(s.pid)

	switch {
	case path != "" && (rolled || ShouldKeep(last, row, s.tol, s.maxGapS)):
		if rolled {
			s.recorder.WriteEndSentinel(row.Timestamp)
			s.recorder.Close()
			s.recorderOpen = false
		}
		target := DailyPath(s.dataDir, s.plantName, row.Timestamp)
		if err := s.recorder.Open(target); err != nil {
			s.log.Printf("plant %s: open recorder: %v", s.pid, err)
		} else if err := s.recorder.WriteRow(row); err != nil {
			s.log.Printf("plant %s: write row: %v", s.pid, err)
		} else {
			s.recorderOpen = true
			s.store.SetLastKeptMeasurement(s.pid, row)
		}
		s.currentDay = day
	case path == "" && s.recorderOpen:
		s.recorder.WriteEndSentinel(row.Timestamp)
		s.recorder.Close()
		s.recorderOpen = false
	}

	s.enqueuePostItems(row)
}

// enqueuePostItems converts observed POI/SoC values into PostItems using
// the unit conversions grounded on
// original_source/measurement_posting.py build_post_items: soc in kWh,
// p in W, q in VAr, v in V.
func (s *Sampler) enqueuePostItems(row model.MeasurementRow) {
	if s.postQueue == nil || !s.store.PostingEnabledSnapshot() {
		return
	}
	if s.store.APIConnectionSnapshot().State != state.APIConnected {
		return
	}
	ts := row.Timestamp.UTC().Format(time.RFC3339)
	items := []model.PostItem{
		{Metric: model.MetricSOC, SeriesID: s.seriesCfg.SOC, Value: row.SOCPU * s.capacityKWh, TimestampUTCISO: ts},
		{Metric: model.MetricP, SeriesID: s.seriesCfg.P, Value: row.PPOIKW * 1000.0, TimestampUTCISO: ts},
		{Metric: model.MetricQ, SeriesID: s.seriesCfg.Q, Value: row.QPOIKVAr * 1000.0, TimestampUTCISO: ts},
	}
	if s.poiVoltageKV > 0 {
		items = append(items, model.PostItem{
			Metric:          model.MetricV,
			SeriesID:        s.seriesCfg.V,
			Value:           row.VPOIKV / s.poiVoltageKV * (s.poiVoltageKV * 1000.0),
			TimestampUTCISO: ts,
		})
	}
	for _, item := range items {
		if isFinite(item.Value) {
			s.postQueue.Enqueue(s.pid, item)
		}
	}
}

func endpointKey(ep model.ModbusEndpoint) string {
	return fmt.Sprintf("%s:%d", ep.Host, ep.Port)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Package config loads and validates the process-wide YAML configuration:
// timing periods, per-plant Modbus/point maps, recording tolerances, the
// day-ahead API, and startup defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"hil-scheduler/internal/model"
)

// PointConfig is the YAML shape of one Modbus point.
type PointConfig struct {
	Address     uint16  `yaml:"address"`
	Format      string  `yaml:"format"`
	Access      string  `yaml:"access"`
	Unit        string  `yaml:"unit"`
	EngPerCount float64 `yaml:"eng_per_count"`
}

// EndpointConfig is the YAML shape of one plant/transport Modbus endpoint.
type EndpointConfig struct {
	Host      string                 `yaml:"host"`
	Port      int                    `yaml:"port"`
	ByteOrder string                 `yaml:"byte_order"`
	WordOrder string                 `yaml:"word_order"`
	Points    map[string]PointConfig `yaml:"points"`
}

// ModbusConfig bundles the local and remote endpoints for one plant.
type ModbusConfig struct {
	Local  EndpointConfig `yaml:"local"`
	Remote EndpointConfig `yaml:"remote"`
}

// MeasurementSeriesConfig maps each posted metric to an upstream series ID.
type MeasurementSeriesConfig struct {
	SOC int `yaml:"soc"`
	P   int `yaml:"p"`
	Q   int `yaml:"q"`
	V   int `yaml:"v"`
}

// PlantConfig is the YAML shape of one plant's full configuration.
type PlantConfig struct {
	Name              string                  `yaml:"name"`
	Model             PlantModelConfig        `yaml:"model"`
	Modbus            ModbusConfig            `yaml:"modbus"`
	MeasurementSeries MeasurementSeriesConfig `yaml:"measurement_series"`
}

// PlantModelConfig is the YAML shape of PlantModel.
type PlantModelConfig struct {
	CapacityKWh  float64 `yaml:"capacity_kwh"`
	PMaxKW       float64 `yaml:"p_max_kw"`
	PMinKW       float64 `yaml:"p_min_kw"`
	QMaxKVAr     float64 `yaml:"q_max_kvar"`
	QMinKVAr     float64 `yaml:"q_min_kvar"`
	POIVoltageKV float64 `yaml:"poi_voltage_kv"`
}

// TimingConfig holds the period (seconds) of every agent's loop.
type TimingConfig struct {
	SchedulerPeriodS        float64 `yaml:"scheduler_period_s"`
	PlantPeriodS            float64 `yaml:"plant_period_s"`
	MeasurementPeriodS      float64 `yaml:"measurement_period_s"`
	DataFetcherPeriodS      float64 `yaml:"data_fetcher_period_s"`
	ControlEngineLoopPeriodS  float64 `yaml:"control_engine_loop_period_s"`
	SettingsEngineLoopPeriodS float64 `yaml:"settings_engine_loop_period_s"`
	MeasurementPostPeriodS  float64 `yaml:"measurement_post_period_s"`
}

// CompressionTolerances are the per-column keep thresholds for the
// measurement compressor.
type CompressionTolerances struct {
	PSetpointKW              float64 `yaml:"p_setpoint_kw"`
	BatteryActivePowerKW     float64 `yaml:"battery_active_power_kw"`
	QSetpointKVAr            float64 `yaml:"q_setpoint_kvar"`
	BatteryReactivePowerKVAr float64 `yaml:"battery_reactive_power_kvar"`
	SOCPU                    float64 `yaml:"soc_pu"`
	PPOIKW                   float64 `yaml:"p_poi_kw"`
	QPOIKVAr                 float64 `yaml:"q_poi_kvar"`
	VPOIKV                   float64 `yaml:"v_poi_kV"`
}

// RecordingConfig controls measurement recording and compression.
type RecordingConfig struct {
	CompressionEnabled bool                   `yaml:"compression_enabled"`
	MaxKeptGapS        float64                `yaml:"max_kept_gap_s"`
	Tolerances         CompressionTolerances  `yaml:"tolerances"`
	DataDir            string                 `yaml:"data_dir"`
}

// APIConfig is the day-ahead REST API configuration.
type APIConfig struct {
	BaseURL                string  `yaml:"base_url"`
	Email                  string  `yaml:"email"`
	TomorrowPollStartTime  string  `yaml:"tomorrow_poll_start_time"`
	SchedulePeriodMinutes  int     `yaml:"schedule_period_minutes"`
	PostMeasurementsInAPI  bool    `yaml:"post_measurements_in_api_mode"`
	PostQueueMaxLen        int     `yaml:"measurement_post_queue_maxlen"`
	PostRetryInitialS      float64 `yaml:"measurement_post_retry_initial_s"`
	PostRetryMaxS          float64 `yaml:"measurement_post_retry_max_s"`
	ScheduleValidityWindowMinutes int `yaml:"schedule_validity_window_minutes"`
}

// StartupConfig carries process-start defaults.
type StartupConfig struct {
	TransportMode string  `yaml:"transport_mode"`
	InitialSOCPU  float64 `yaml:"initial_soc_pu"`
}

// ServerConfig configures the embedded HTTP API.
type ServerConfig struct {
	ListenAddr    string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Config is the full process configuration.
type Config struct {
	Timezone  string                 `yaml:"timezone"`
	Timing    TimingConfig           `yaml:"timing"`
	Schedule  ScheduleConfig         `yaml:"schedule"`
	API       APIConfig              `yaml:"api"`
	Recording RecordingConfig        `yaml:"recording"`
	Plants    map[string]PlantConfig `yaml:"plants"`
	// PlantOverrides holds partial per-plant model overrides (e.g. a site
	// commissioning a battery with a different capacity than the fleet
	// default) keyed by plant id. Non-zero fields overlay onto the
	// matching entry in Plants during LoadUnchecked.
	PlantOverrides map[string]PlantModelConfig `yaml:"plant_overrides"`
	Startup        StartupConfig               `yaml:"startup"`
	Server         ServerConfig                `yaml:"server"`
}

// ScheduleConfig carries the schedule-frame defaults.
type ScheduleConfig struct {
	DurationH         float64 `yaml:"duration_h"`
	DefaultResolutionMin int  `yaml:"default_resolution_min"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := LoadUnchecked(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnchecked parses YAML bytes into a Config and fills in defaults,
// without running Validate.
func LoadUnchecked(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	for pid, override := range cfg.PlantOverrides {
		pc, ok := cfg.Plants[pid]
		if !ok {
			continue
		}
		pc.Model = MergePlant(pc.Model, override)
		cfg.Plants[pid] = pc
	}
	return cfg, nil
}

// Default returns a Config populated with every ambient-stack default
// (timing periods, compression tolerances, startup) but no plants.
func Default() *Config {
	return &Config{
		Timezone: "Europe/Madrid",
		Timing: TimingConfig{
			SchedulerPeriodS:          1.0,
			PlantPeriodS:              1.0,
			MeasurementPeriodS:        5.0,
			DataFetcherPeriodS:        120.0,
			ControlEngineLoopPeriodS:  1.0,
			SettingsEngineLoopPeriodS: 0.2,
			MeasurementPostPeriodS:    60.0,
		},
		Schedule: ScheduleConfig{
			DurationH:            24,
			DefaultResolutionMin: 15,
		},
		API: APIConfig{
			TomorrowPollStartTime:         "14:00",
			SchedulePeriodMinutes:         15,
			PostQueueMaxLen:               2000,
			PostRetryInitialS:             2,
			PostRetryMaxS:                 60,
			ScheduleValidityWindowMinutes: 15,
		},
		Recording: RecordingConfig{
			CompressionEnabled: true,
			MaxKeptGapS:        3600,
			Tolerances:         DefaultTolerances(),
			DataDir:            "data",
		},
		Startup: StartupConfig{
			TransportMode: "local",
			InitialSOCPU:  0.5,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// DefaultTolerances returns the compression tolerances observed in the
// source system. p_setpoint_kw and q_setpoint_kvar default to zero
// (exact-match keep rule) — see DESIGN.md open question (a).
func DefaultTolerances() CompressionTolerances {
	return CompressionTolerances{
		PSetpointKW:              0.0,
		BatteryActivePowerKW:     0.1,
		QSetpointKVAr:            0.0,
		BatteryReactivePowerKVAr: 0.1,
		SOCPU:                    0.0001,
		PPOIKW:                   0.1,
		QPOIKVAr:                 0.1,
		VPOIKV:                   0.001,
	}
}

// Validate checks the configuration is complete enough to start the
// process. A failure here is a ConfigInvalid condition (spec §7): the
// process must refuse to start.
func (c *Config) Validate() error {
	if c.Timezone == "" {
		return fmt.Errorf("config: timezone must not be empty")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	for _, pid := range []string{string(model.PlantLIB), string(model.PlantVRFB)} {
		pc, ok := c.Plants[pid]
		if !ok {
			return fmt.Errorf("config: missing plant %q", pid)
		}
		if err := pc.validate(pid); err != nil {
			return err
		}
	}
	if c.Startup.TransportMode != string(model.TransportLocal) && c.Startup.TransportMode != string(model.TransportRemote) {
		return fmt.Errorf("config: startup.transport_mode must be local or remote")
	}
	if c.Startup.InitialSOCPU < 0 || c.Startup.InitialSOCPU > 1 {
		return fmt.Errorf("config: startup.initial_soc_pu must be in [0,1]")
	}
	return nil
}

func (pc PlantConfig) validate(pid string) error {
	if pc.Model.CapacityKWh <= 0 {
		return fmt.Errorf("config: plants.%s.model.capacity_kwh must be > 0", pid)
	}
	for _, ec := range []struct {
		name string
		ep   EndpointConfig
	}{{"local", pc.Modbus.Local}, {"remote", pc.Modbus.Remote}} {
		for _, name := range model.RequiredPoints {
			if _, ok := ec.ep.Points[string(name)]; !ok {
				return fmt.Errorf("config: plants.%s.modbus.%s missing point %q", pid, ec.name, name)
			}
		}
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// PlantModel converts a PlantConfig's model section into model.PlantModel.
func (pc PlantConfig) PlantModel() model.PlantModel {
	return model.PlantModel{
		CapacityKWh:  pc.Model.CapacityKWh,
		PMaxKW:       pc.Model.PMaxKW,
		PMinKW:       pc.Model.PMinKW,
		QMaxKVAr:     pc.Model.QMaxKVAr,
		QMinKVAr:     pc.Model.QMinKVAr,
		POIVoltageKV: pc.Model.POIVoltageKV,
	}
}

// Endpoint converts the given transport's EndpointConfig into a
// model.ModbusEndpoint. Points are copied as configured; an empty byte
// order defaults to big and an empty word order to msw_first.
func (pc PlantConfig) Endpoint(mode model.TransportMode) (model.ModbusEndpoint, error) {
	ec := pc.Modbus.Local
	if mode == model.TransportRemote {
		ec = pc.Modbus.Remote
	}
	points := make(map[model.PointName]model.PointSpec, len(ec.Points))
	for name, pcfg := range ec.Points {
		format := model.PointFormat(pcfg.Format)
		access := model.PointAccess(pcfg.Access)
		points[model.PointName(name)] = model.PointSpec{
			Address:     pcfg.Address,
			Format:      format,
			Access:      access,
			Unit:        pcfg.Unit,
			EngPerCount: pcfg.EngPerCount,
		}
	}
	byteOrder := model.ByteOrder(ec.ByteOrder)
	if byteOrder == "" {
		byteOrder = model.ByteOrderBig
	}
	wordOrder := model.WordOrder(ec.WordOrder)
	if wordOrder == "" {
		wordOrder = model.WordOrderMSWFirst
	}
	return model.ModbusEndpoint{
		Host:      ec.Host,
		Port:      ec.Port,
		ByteOrder: byteOrder,
		WordOrder: wordOrder,
		Points:    points,
	}, nil
}

// MergePlant overlays non-zero fields of override onto base, matching the
// teacher's overlay-merge idiom for operator-supplied partial configs.
func MergePlant(base, override PlantModelConfig) PlantModelConfig {
	merged := base
	if override.CapacityKWh != 0 {
		merged.CapacityKWh = override.CapacityKWh
	}
	if override.PMaxKW != 0 {
		merged.PMaxKW = override.PMaxKW
	}
	if override.PMinKW != 0 {
		merged.PMinKW = override.PMinKW
	}
	if override.QMaxKVAr != 0 {
		merged.QMaxKVAr = override.QMaxKVAr
	}
	if override.QMinKVAr != 0 {
		merged.QMinKVAr = override.QMinKVAr
	}
	if override.POIVoltageKV != 0 {
		merged.POIVoltageKV = override.POIVoltageKV
	}
	return merged
}

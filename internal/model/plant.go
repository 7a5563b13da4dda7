// Package model holds the plain data types shared across the dispatch
// scheduler's agents: plant identity, Modbus endpoint layout, schedules,
// observed state, and the command/measurement wire types.
package model

import "time"

// PlantID identifies one of the two fixed plants on site.
type PlantID string

const (
	PlantLIB  PlantID = "lib"
	PlantVRFB PlantID = "vrfb"
)

// Plants lists the fixed, deterministically ordered plant set.
var Plants = []PlantID{PlantLIB, PlantVRFB}

// TransportMode selects which Modbus endpoint a plant is dispatched over.
type TransportMode string

const (
	TransportLocal  TransportMode = "local"
	TransportRemote TransportMode = "remote"
)

// PointFormat is the register encoding of a single Modbus point.
type PointFormat string

const (
	FormatInt16   PointFormat = "int16"
	FormatUint16  PointFormat = "uint16"
	FormatInt32   PointFormat = "int32"
	FormatUint32  PointFormat = "uint32"
	FormatFloat32 PointFormat = "float32"
)

// WordCount returns the number of 16-bit holding registers the format spans.
func (f PointFormat) WordCount() int {
	switch f {
	case FormatInt32, FormatUint32, FormatFloat32:
		return 2
	default:
		return 1
	}
}

// PointAccess declares whether a point is readable, writable, or both.
type PointAccess string

const (
	AccessRead      PointAccess = "r"
	AccessWrite     PointAccess = "w"
	AccessReadWrite PointAccess = "rw"
)

// PointName enumerates the nine required points on every plant endpoint.
type PointName string

const (
	PointPSetpoint PointName = "p_setpoint"
	PointPBattery  PointName = "p_battery"
	PointQSetpoint PointName = "q_setpoint"
	PointQBattery  PointName = "q_battery"
	PointEnable    PointName = "enable"
	PointSOC       PointName = "soc"
	PointPPOI      PointName = "p_poi"
	PointQPOI      PointName = "q_poi"
	PointVPOI      PointName = "v_poi"
)

// RequiredPoints lists the nine point names every endpoint must declare.
var RequiredPoints = []PointName{
	PointPSetpoint, PointPBattery, PointQSetpoint, PointQBattery,
	PointEnable, PointSOC, PointPPOI, PointQPOI, PointVPOI,
}

// PointSpec describes how one engineering signal maps onto holding registers.
type PointSpec struct {
	Address     uint16
	Format      PointFormat
	Access      PointAccess
	Unit        string
	EngPerCount float64
}

// ByteOrder is the byte order within a 16-bit register.
type ByteOrder string

const (
	ByteOrderBig    ByteOrder = "big"
	ByteOrderLittle ByteOrder = "little"
)

// WordOrder is the register order for multi-register formats.
type WordOrder string

const (
	WordOrderMSWFirst WordOrder = "msw_first"
	WordOrderLSWFirst WordOrder = "lsw_first"
)

// ModbusEndpoint is the connection and point map for one plant on one transport.
type ModbusEndpoint struct {
	Host      string
	Port      int
	ByteOrder ByteOrder
	WordOrder WordOrder
	Points    map[PointName]PointSpec
}

// PlantModel carries the physical ratings of one plant.
type PlantModel struct {
	CapacityKWh  float64
	PMaxKW       float64
	PMinKW       float64
	QMaxKVAr     float64
	QMinKVAr     float64
	POIVoltageKV float64
}

// ScheduleRow is one timestamped setpoint pair in a ScheduleFrame.
type ScheduleRow struct {
	Timestamp     time.Time
	PSetpointKW   float64
	QSetpointKVAr float64
}

// ScheduleFrame is a piecewise-constant step-hold schedule: the value at
// time t is the row at the greatest index whose Timestamp <= t.
type ScheduleFrame struct {
	Rows []ScheduleRow
}

// ManualSeriesKey identifies one of the four manual override series.
type ManualSeriesKey string

const (
	ManualLIBP  ManualSeriesKey = "lib_p"
	ManualLIBQ  ManualSeriesKey = "lib_q"
	ManualVRFBP ManualSeriesKey = "vrfb_p"
	ManualVRFBQ ManualSeriesKey = "vrfb_q"
)

// ManualSeriesRow is one row of a manual override series.
type ManualSeriesRow struct {
	Timestamp time.Time
	Setpoint  float64
}

// ManualSeries is a single-signal manual override series, with its
// terminal-duplicate-row end marker resolved.
type ManualSeries struct {
	Rows []ManualSeriesRow
	// EndAt is the instant the override stops applying, if the series
	// carries a terminal duplicate-row end marker (see schedule package).
	EndAt *time.Time
}

// ReadStatus classifies the freshness/health of an ObservedState read.
type ReadStatus string

const (
	ReadOK            ReadStatus = "ok"
	ReadConnectFailed ReadStatus = "connect_failed"
	ReadError         ReadStatus = "read_error"
	ReadUnknown       ReadStatus = "unknown"
)

// ObservedError is a structured last-error record.
type ObservedError struct {
	Timestamp time.Time
	Code      string
	Message   string
}

// ObservedState is the cached read-back of a plant's enable bit and
// battery powers, with freshness classification.
type ObservedState struct {
	EnableState         *int
	PBatteryKW          *float64
	QBatteryKVAr        *float64
	LastAttempt         time.Time
	LastSuccess         *time.Time
	ReadStatus          ReadStatus
	LastError           *ObservedError
	ConsecutiveFailures uint32
	Stale               bool
}

// TransitionState is the control engine's view of a plant's lifecycle.
type TransitionState string

const (
	TransitionStopped  TransitionState = "stopped"
	TransitionStarting TransitionState = "starting"
	TransitionRunning  TransitionState = "running"
	TransitionStopping TransitionState = "stopping"
	TransitionUnknown  TransitionState = "unknown"
)

// DispatchWriteStatus reports the outcome of the scheduler's most recent
// write to a plant.
type DispatchWriteStatus struct {
	SendingEnabled bool
	AttemptedAt    time.Time
	PKW            float64
	QKVAr          float64
	Source         string
	Status         string // ok | failed | skipped
	Error          string
}

// MeasurementRow is one sampled (and possibly compressed-kept) measurement.
type MeasurementRow struct {
	Timestamp                time.Time
	PSetpointKW              float64
	BatteryActivePowerKW     float64
	QSetpointKVAr            float64
	BatteryReactivePowerKVAr float64
	SOCPU                    float64
	PPOIKW                   float64
	QPOIKVAr                 float64
	VPOIKV                   float64
}

// PostMetric enumerates the four metrics posted back to the day-ahead API.
type PostMetric string

const (
	MetricSOC PostMetric = "soc"
	MetricP   PostMetric = "p"
	MetricQ   PostMetric = "q"
	MetricV   PostMetric = "v"
)

// PostItem is one queued measurement post.
type PostItem struct {
	Metric          PostMetric
	SeriesID        int
	Value           float64
	TimestampUTCISO string
}

package measurement

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"hil-scheduler/internal/model"
)

var csvHeader = []string{
	"timestamp",
	"p_setpoint_kw",
	"battery_active_power_kw",
	"q_setpoint_kvar",
	"battery_reactive_power_kvar",
	"soc_pu",
	"p_poi_kw",
	"q_poi_kvar",
	"v_poi_kV",
}

// SanitizePlantName normalizes a plant name into a filesystem-safe token:
// lower-case, non-alphanumerics replaced with underscore, trimmed.
func SanitizePlantName(name, fallback string) string {
	lower := strings.ToLower(name)
	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return fallback
	}
	return out
}

// DailyPath returns the path for a plant's recording file on day `at`.
func DailyPath(dataDir, sanitizedPlantName string, at time.Time) string {
	return filepath.Join(dataDir, fmt.Sprintf("%s_%s.csv", at.Format("20060102"), sanitizedPlantName))
}

// Recorder appends kept measurement rows to per-day CSV files, creating
// the header row when a file is new, and writing a terminal end-sentinel
// row (all value columns blank) on stop or rollover.
type Recorder struct {
	currentPath string
	file        *os.File
	writer      *csv.Writer
}

// Open begins (or resumes) writing to path, writing the header if the
// file is new.
func (r *Recorder) Open(path string) error {
	if r.currentPath == path && r.file != nil {
		return nil
	}
	if r.file != nil {
		r.Close()
	}
	isNew := true
	if _, err := os.Stat(path); err == nil {
		isNew = false
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("measurement: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("measurement: open %s: %w", path, err)
	}
	r.file = f
	r.writer = csv.NewWriter(f)
	r.currentPath = path
	if isNew {
		if err := r.writer.Write(csvHeader); err != nil {
			return fmt.Errorf("measurement: write header: %w", err)
		}
		r.writer.Flush()
	}
	return nil
}

// WriteRow appends one kept measurement row.
func (r *Recorder) WriteRow(row model.MeasurementRow) error {
	if r.writer == nil {
		return fmt.Errorf("measurement: recorder not open")
	}
	if err := r.writer.Write(rowToRecord(row)); err != nil {
		return err
	}
	r.writer.Flush()
	return r.writer.Error()
}

// WriteEndSentinel appends a terminal row at `at` with every value column
// blank, preserving the piecewise-constant contract across a file
// boundary (recording stop or daily rollover).
func (r *Recorder) WriteEndSentinel(at time.Time) error {
	if r.writer == nil {
		return nil
	}
	record := []string{fmtTime(at), "", "", "", "", "", "", "", ""}
	if err := r.writer.Write(record); err != nil {
		return err
	}
	r.writer.Flush()
	return r.writer.Error()
}

// Close flushes and closes the underlying file.
func (r *Recorder) Close() error {
	if r.writer != nil {
		r.writer.Flush()
	}
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.writer = nil
	r.currentPath = ""
	return err
}

func rowToRecord(row model.MeasurementRow) []string {
	return []string{
		fmtTime(row.Timestamp),
		fmtFloat(row.PSetpointKW),
		fmtFloat(row.BatteryActivePowerKW),
		fmtFloat(row.QSetpointKVAr),
		fmtFloat(row.BatteryReactivePowerKVAr),
		fmtFloat(row.SOCPU),
		fmtFloat(row.PPOIKW),
		fmtFloat(row.QPOIKVAr),
		fmtFloat(row.VPOIKV),
	}
}

func fmtTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

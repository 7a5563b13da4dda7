// Package measurement samples plant point maps, applies lossless
// piecewise-constant compression, appends kept rows to daily CSV files,
// and enqueues post items for the day-ahead API.
package measurement

import (
	"math"

	"hil-scheduler/internal/config"
	"hil-scheduler/internal/model"
)

// ShouldKeep implements the compression rule (spec §4.3 step 3): a row is
// kept if there is no prior kept row, any value column exceeds its
// tolerance versus the last kept row, or the time gap exceeds the
// configured maximum.
func ShouldKeep(last *model.MeasurementRow, row model.MeasurementRow, tol config.CompressionTolerances, maxGapS float64) bool {
	if last == nil {
		return true
	}
	if row.Timestamp.Sub(last.Timestamp).Seconds() > maxGapS {
		return true
	}
	checks := []struct {
		delta float64
		tol   float64
	}{
		{math.Abs(row.PSetpointKW - last.PSetpointKW), tol.PSetpointKW},
		{math.Abs(row.BatteryActivePowerKW - last.BatteryActivePowerKW), tol.BatteryActivePowerKW},
		{math.Abs(row.QSetpointKVAr - last.QSetpointKVAr), tol.QSetpointKVAr},
		{math.Abs(row.BatteryReactivePowerKVAr - last.BatteryReactivePowerKVAr), tol.BatteryReactivePowerKVAr},
		{math.Abs(row.SOCPU - last.SOCPU), tol.SOCPU},
		{math.Abs(row.PPOIKW - last.PPOIKW), tol.PPOIKW},
		{math.Abs(row.QPOIKVAr - last.QPOIKVAr), tol.QPOIKVAr},
		{math.Abs(row.VPOIKV - last.VPOIKV), tol.VPOIKV},
	}
	for _, c := range checks {
		if c.delta > c.tol {
			return true
		}
	}
	return false
}

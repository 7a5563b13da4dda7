// Package schedule resolves piecewise-constant schedule frames, detects
// the terminal-duplicate-row end marker on manual override series, and
// composes an EffectiveSchedule from an API base frame plus manual P/Q
// overrides.
package schedule

import (
	"sort"
	"time"

	"hil-scheduler/internal/model"
)

// MinManualRowGap is the minimum spacing enforced between manual series rows.
const MinManualRowGap = 60 * time.Second

// AsOf returns the value in effect at `at`, i.e. the row at the greatest
// index whose Timestamp <= at. Returns (0, 0, false) if `at` precedes the
// first row or the frame is empty.
func AsOf(f model.ScheduleFrame, at time.Time) (p, q float64, ok bool) {
	rows := f.Rows
	idx := sort.Search(len(rows), func(i int) bool {
		return rows[i].Timestamp.After(at)
	}) - 1
	if idx < 0 {
		return 0, 0, false
	}
	return rows[idx].PSetpointKW, rows[idx].QSetpointKVAr, true
}

// IsStale reports whether the frame's last row is older than the given
// validity window relative to now (spec §4.2 step 2 / §8 ScheduleStale).
func IsStale(f model.ScheduleFrame, now time.Time, validity time.Duration) bool {
	if len(f.Rows) == 0 {
		return true
	}
	last := f.Rows[len(f.Rows)-1].Timestamp
	return now.Sub(last) > validity
}

// SplitManualSeries detects the terminal-duplicate-row end marker: when
// the last two rows share an equal setpoint value at strictly increasing
// timestamps, the last row's timestamp is the override's end instant.
// Returns the series with EndAt populated (nil if no such marker).
func SplitManualSeries(rows []model.ManualSeriesRow) model.ManualSeries {
	sorted := make([]model.ManualSeriesRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	ms := model.ManualSeries{Rows: sorted}
	n := len(sorted)
	if n < 2 {
		return ms
	}
	last, prev := sorted[n-1], sorted[n-2]
	if last.Timestamp.After(prev.Timestamp) && last.Setpoint == prev.Setpoint {
		end := last.Timestamp
		ms.EndAt = &end
	}
	return ms
}

// EnsureTerminalEndRow appends a duplicate-value row at last_ts+60s if the
// series does not already carry a terminal end marker, matching the
// source's auto-completion rule for operator-authored series.
func EnsureTerminalEndRow(rows []model.ManualSeriesRow) []model.ManualSeriesRow {
	ms := SplitManualSeries(rows)
	if ms.EndAt != nil || len(ms.Rows) == 0 {
		return ms.Rows
	}
	last := ms.Rows[len(ms.Rows)-1]
	return append(ms.Rows, model.ManualSeriesRow{
		Timestamp: last.Timestamp.Add(MinManualRowGap),
		Setpoint:  last.Setpoint,
	})
}

// resolveManual returns the manual override value in effect at `at`, and
// whether the override applies (enabled, defined, and before its end
// instant if any).
func resolveManual(ms model.ManualSeries, enabled bool, at time.Time) (float64, bool) {
	if !enabled || len(ms.Rows) == 0 {
		return 0, false
	}
	if ms.EndAt != nil && !at.Before(*ms.EndAt) {
		return 0, false
	}
	frame := model.ScheduleFrame{}
	for _, r := range ms.Rows {
		frame.Rows = append(frame.Rows, model.ScheduleRow{Timestamp: r.Timestamp, PSetpointKW: r.Setpoint})
	}
	p, _, ok := AsOf(frame, at)
	return p, ok
}

// BuildEffective composes the EffectiveSchedule for one plant: union all
// source timestamps, left-fill (step-hold) the API base, and override
// with the manual P/Q series wherever each is enabled and defined before
// its end instant. Missing values after composition fall back to 0.0.
func BuildEffective(apiBase model.ScheduleFrame, manualP, manualQ model.ManualSeries, manualPEnabled, manualQEnabled bool) model.ScheduleFrame {
	timestamps := map[time.Time]struct{}{}
	for _, r := range apiBase.Rows {
		timestamps[r.Timestamp] = struct{}{}
	}
	for _, r := range manualP.Rows {
		timestamps[r.Timestamp] = struct{}{}
	}
	for _, r := range manualQ.Rows {
		timestamps[r.Timestamp] = struct{}{}
	}
	if manualP.EndAt != nil {
		timestamps[*manualP.EndAt] = struct{}{}
	}
	if manualQ.EndAt != nil {
		timestamps[*manualQ.EndAt] = struct{}{}
	}

	ordered := make([]time.Time, 0, len(timestamps))
	for ts := range timestamps {
		ordered = append(ordered, ts)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	out := model.ScheduleFrame{Rows: make([]model.ScheduleRow, 0, len(ordered))}
	for _, ts := range ordered {
		p, q, _ := AsOf(apiBase, ts)
		if mp, ok := resolveManual(manualP, manualPEnabled, ts); ok {
			p = mp
		}
		if mq, ok := resolveManual(manualQ, manualQEnabled, ts); ok {
			q = mq
		}
		out.Rows = append(out.Rows, model.ScheduleRow{Timestamp: ts, PSetpointKW: p, QSetpointKVAr: q})
	}
	return out
}

// Resolve is the scheduler's per-tick resolution step: build the
// effective schedule and look up the value asof `now`, applying API
// staleness when the only source is the API base (no manual overrides
// enabled).
func Resolve(apiBase model.ScheduleFrame, manualP, manualQ model.ManualSeries, manualPEnabled, manualQEnabled bool, now time.Time, apiValidity time.Duration) (p, q float64, apiStale bool) {
	if !manualPEnabled && !manualQEnabled && IsStale(apiBase, now, apiValidity) {
		return 0, 0, true
	}
	eff := BuildEffective(apiBase, manualP, manualQ, manualPEnabled, manualQEnabled)
	p, q, ok := AsOf(eff, now)
	if !ok {
		return 0, 0, false
	}
	return p, q, false
}

// PruneToWindow drops rows outside [windowStart, windowEnd).
func PruneToWindow(rows []model.ManualSeriesRow, windowStart, windowEnd time.Time) []model.ManualSeriesRow {
	out := make([]model.ManualSeriesRow, 0, len(rows))
	for _, r := range rows {
		if !r.Timestamp.Before(windowStart) && r.Timestamp.Before(windowEnd) {
			out = append(out, r)
		}
	}
	return out
}

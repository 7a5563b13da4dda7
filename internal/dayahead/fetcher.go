package dayahead

import (
	"context"
	"log"
	"time"

	"hil-scheduler/internal/model"
	"hil-scheduler/internal/state"
)

// Fetcher is the Data Fetcher agent: maintains today's and tomorrow's
// schedule for each plant, with a midnight-rollover promotion.
type Fetcher struct {
	client              *Client
	store               *state.Store
	loc                 *time.Location
	period              time.Duration
	tomorrowPollStart   time.Time // time-of-day, only HH:MM significant
	scheduleMinutes     int
	log                 *log.Logger

	tomorrowGateLogged bool
}

// NewFetcher constructs a Fetcher. tomorrowPollHHMM is "HH:MM" 24h local.
func NewFetcher(client *Client, store *state.Store, loc *time.Location, period time.Duration, tomorrowPollHHMM string, scheduleMinutes int, logOut *log.Logger) (*Fetcher, error) {
	t, err := time.ParseInLocation("15:04", tomorrowPollHHMM, loc)
	if err != nil {
		return nil, err
	}
	return &Fetcher{
		client:            client,
		store:             store,
		loc:               loc,
		period:            period,
		tomorrowPollStart: t,
		scheduleMinutes:   scheduleMinutes,
		log:               logOut,
	}, nil
}

// Run ticks the fetcher until ctx is cancelled.
func (f *Fetcher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.tick()
		}
	}
}

func (f *Fetcher) tick() {
	if f.client == nil {
		return
	}
	if f.store.APIConnectionSnapshot().State != state.APIConnected {
		return
	}

	now := time.Now().In(f.loc)
	st := f.store.FetchStatusSnapshot()
	st = f.reconcileDates(st, now)

	switch {
	case !st.TodayFetched:
		f.fetch(&st, now, "today")
	case f.gateOpen(now) && !st.TomorrowFetched:
		f.fetch(&st, now, "tomorrow")
		f.tomorrowGateLogged = false
	default:
		if !f.gateOpen(now) && !st.TomorrowFetched && !f.tomorrowGateLogged {
			f.log.Printf("tomorrow poll gate waiting until %s", f.tomorrowPollStart.Format("15:04"))
			f.tomorrowGateLogged = true
		}
	}

	f.store.SetFetchStatus(st)
}

func (f *Fetcher) gateOpen(now time.Time) bool {
	gate := time.Date(now.Year(), now.Month(), now.Day(), f.tomorrowPollStart.Hour(), f.tomorrowPollStart.Minute(), 0, 0, f.loc)
	return !now.Before(gate)
}

// reconcileDates promotes tomorrow's fetch status into today's when the
// local date has advanced (spec §4.4 step 2 / §8 scenario 4).
func (f *Fetcher) reconcileDates(st state.FetchStatus, now time.Time) state.FetchStatus {
	today := dateOnly(now, f.loc)
	if st.TodayDate.IsZero() {
		st.TodayDate = today
		st.TomorrowDate = today.AddDate(0, 0, 1)
		st.TodayPointsByPlant = map[model.PlantID]int{}
		st.TomorrowPointsByPlant = map[model.PlantID]int{}
		return st
	}
	if today.After(st.TodayDate) {
		st.TodayDate = today
		st.TodayFetched = st.TomorrowFetched
		st.TodayPointsByPlant = st.TomorrowPointsByPlant
		st.TomorrowDate = today.AddDate(0, 0, 1)
		st.TomorrowFetched = false
		st.TomorrowPointsByPlant = map[model.PlantID]int{}
	}
	return st
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func (f *Fetcher) fetch(st *state.FetchStatus, now time.Time, purpose string) {
	var day time.Time
	if purpose == "today" {
		day = st.TodayDate
	} else {
		day = st.TomorrowDate
	}
	start := day
	end := day.AddDate(0, 0, 1)

	st.LastAttempt = now
	schedules, err := f.client.GetDayAheadSchedules(start, end)
	if err != nil {
		st.Error = err.Error()
		f.log.Printf("data fetcher: %s fetch failed: %v", purpose, err)
		return
	}

	points := map[model.PlantID]int{}
	for pid, periods := range schedules {
		points[pid] = len(periods)
		frame := model.ScheduleFrame{}
		for _, p := range periods {
			pkw := p.LIBKW
			if pid == model.PlantVRFB {
				pkw = p.VRFBKW
			}
			frame.Rows = append(frame.Rows, model.ScheduleRow{Timestamp: p.DeliveryPeriod.In(f.loc), PSetpointKW: pkw})
		}
		if purpose == "tomorrow" {
			// Keep the rows already held for earlier days.
			var kept []model.ScheduleRow
			for _, r := range f.store.ScheduleSnapshotFor(pid).APIBase.Rows {
				if r.Timestamp.Before(start) {
					kept = append(kept, r)
				}
			}
			frame.Rows = append(kept, frame.Rows...)
		}
		f.store.SetAPIBase(pid, frame)
	}

	if purpose == "today" {
		st.TodayFetched = true
		st.TodayPointsByPlant = points
	} else {
		st.TomorrowFetched = true
		st.TomorrowPointsByPlant = points
	}
	complete := true
	for _, pid := range model.Plants {
		if points[pid] == 0 {
			complete = false
		}
	}
	if complete {
		st.Error = ""
	} else {
		st.Error = "partial response: missing data for one or more plants"
	}
}

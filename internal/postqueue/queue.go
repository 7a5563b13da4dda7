// Package postqueue implements the Measurement Post Worker: a bounded
// per-plant FIFO of PostItems drained by a worker with exponential
// backoff on failure and drop-oldest on overflow.
package postqueue

import (
	"context"
	"log"
	"sync"
	"time"

	"hil-scheduler/internal/model"
	"hil-scheduler/internal/state"
)

// Poster posts one metric value to the upstream API; satisfied by
// internal/dayahead.Client.
type Poster interface {
	PostMeasurement(seriesID int, value float64, timestampUTCISO string) error
}

// Queue is a bounded per-plant FIFO plus worker loop.
type Queue struct {
	mu         sync.Mutex
	items      map[model.PlantID][]model.PostItem
	maxLen     int
	initialS   float64
	maxS       float64
	attempts   map[model.PlantID]int

	poster Poster
	store  *state.Store
	period time.Duration
	log    *log.Logger
}

// New constructs a Queue.
func New(poster Poster, store *state.Store, maxLen int, initialRetryS, maxRetryS float64, period time.Duration, logOut *log.Logger) *Queue {
	q := &Queue{
		items:    map[model.PlantID][]model.PostItem{},
		maxLen:   maxLen,
		initialS: initialRetryS,
		maxS:     maxRetryS,
		attempts: map[model.PlantID]int{},
		poster:   poster,
		store:    store,
		period:   period,
		log:      logOut,
	}
	for _, pid := range model.Plants {
		q.items[pid] = nil
	}
	return q
}

// Enqueue appends an item to a plant's FIFO, dropping the oldest item if
// the queue is at capacity (spec §4.5 step 5 / §3 PostItem lifecycle).
func (q *Queue) Enqueue(pid model.PlantID, item model.PostItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items[pid]
	if len(items) >= q.maxLen {
		items = items[1:]
	}
	q.items[pid] = append(items, item)
}

func (q *Queue) depth(pid model.PlantID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items[pid])
}

// peekHead returns the oldest item without removing it; the caller removes
// it with popHead only after a successful post, so a failed item stays at
// the head.
func (q *Queue) peekHead(pid model.PlantID) (model.PostItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items[pid]
	if len(items) == 0 {
		return model.PostItem{}, false
	}
	return items[0], true
}

func (q *Queue) popHead(pid model.PlantID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items[pid]
	if len(items) > 0 {
		q.items[pid] = items[1:]
	}
}

// Run ticks the post worker for every plant until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, pid := range model.Plants {
				q.drain(pid)
			}
		}
	}
}

// drain dequeues up to K items for one plant, applying backoff on failure.
func (q *Queue) drain(pid model.PlantID) {
	const maxPerTick = 50
	if q.attempts[pid] > 0 {
		st := q.store.PostStatusFor(pid)
		if time.Since(st.LastAttempt) < time.Duration(st.NextRetrySeconds*float64(time.Second)) {
			return
		}
	}
	for i := 0; i < maxPerTick; i++ {
		item, ok := q.peekHead(pid)
		if !ok {
			break
		}
		err := q.poster.PostMeasurement(item.SeriesID, item.Value, item.TimestampUTCISO)
		now := time.Now()
		if err != nil {
			q.attempts[pid]++
			delay := backoffSeconds(q.initialS, q.maxS, q.attempts[pid])
			q.log.Printf("plant %s: post failed (attempt %d): %v, next retry in %.0fs", pid, q.attempts[pid], err, delay)
			q.store.SetPostStatus(pid, state.PostStatus{
				LastAttempt:      now,
				LastError:        err.Error(),
				NextRetrySeconds: delay,
				ConsecutiveFails: q.attempts[pid],
				QueueDepth:       q.depth(pid),
			})
			return
		}
		q.popHead(pid)
		q.attempts[pid] = 0
		q.store.SetPostStatus(pid, state.PostStatus{
			LastAttempt: now,
			LastSuccess: now,
			QueueDepth:  q.depth(pid),
		})
	}
}

// backoffSeconds computes delay = min(maxS, initialS * 2^(attempts-1))
// for attempts >= 1, matching spec §4.5 step 2 / §8 scenario 6.
func backoffSeconds(initialS, maxS float64, attempts int) float64 {
	if attempts < 1 {
		return initialS
	}
	delay := initialS
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxS {
			return maxS
		}
	}
	return delay
}

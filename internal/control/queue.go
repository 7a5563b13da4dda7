// Package control implements the control command queue and the Control
// Engine agent: plant start/stop, dispatch enable/disable, record
// start/stop, fleet operations, and transport switch.
package control

import (
	"fmt"
	"sync"

	"hil-scheduler/internal/model"
)

// CommandQueue is a bounded, multi-producer/single-consumer queue with a
// ring-buffered history, per spec §3/§5.
type CommandQueue struct {
	mu       sync.Mutex
	capacity int
	pending  []*model.Command
	history  map[string]*model.Command
	order    []string
	maxHist  int
	nextID   int
}

// NewCommandQueue constructs a CommandQueue with the given bounded
// capacity (default 16) and history size (default 200).
func NewCommandQueue(capacity, maxHistory int) *CommandQueue {
	return &CommandQueue{
		capacity: capacity,
		history:  map[string]*model.Command{},
		maxHist:  maxHistory,
	}
}

// Enqueue appends a new command, returning a "queue_full" error (and no
// command) if the queue is at capacity.
func (q *CommandQueue) Enqueue(kind, source string, payload map[string]any) (*model.Command, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) >= q.capacity {
		return nil, fmt.Errorf("control: queue_full")
	}
	q.nextID++
	cmd := &model.Command{
		ID:      fmt.Sprintf("cmd-%06d", q.nextID),
		Kind:    kind,
		Payload: payload,
		Source:  source,
		State:   model.CommandQueued,
	}
	q.pending = append(q.pending, cmd)
	q.record(cmd)
	return cmd, nil
}

// Dequeue pops at most one pending command for the engine to run.
func (q *CommandQueue) Dequeue() *model.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	cmd := q.pending[0]
	q.pending = q.pending[1:]
	return cmd
}

// Finish records a command's terminal state into history.
func (q *CommandQueue) Finish(cmd *model.Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.record(cmd)
}

func (q *CommandQueue) record(cmd *model.Command) {
	if _, exists := q.history[cmd.ID]; !exists {
		q.order = append(q.order, cmd.ID)
		if len(q.order) > q.maxHist {
			drop := q.order[0]
			q.order = q.order[1:]
			delete(q.history, drop)
		}
	}
	q.history[cmd.ID] = cmd
}

// Depth returns the number of pending (not-yet-dequeued) commands.
func (q *CommandQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Status returns a command's current record, if known.
func (q *CommandQueue) Status(id string) (*model.Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cmd, ok := q.history[id]
	return cmd, ok
}

// RecentFailed counts failed commands among the last `window` history entries.
func (q *CommandQueue) RecentFailed(window int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	start := len(q.order) - window
	if start < 0 {
		start = 0
	}
	for _, id := range q.order[start:] {
		if q.history[id].State == model.CommandFailed {
			n++
		}
	}
	return n
}

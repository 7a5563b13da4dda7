package control

import (
	"testing"

	"hil-scheduler/internal/model"
)

func TestEnqueueRejectsAtCapacity(t *testing.T) {
	q := NewCommandQueue(2, 10)
	if _, err := q.Enqueue("plant.start", "operator", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := q.Enqueue("plant.stop", "operator", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := q.Enqueue("plant.stop", "operator", nil); err == nil {
		t.Fatalf("expected queue_full error at capacity")
	}
}

func TestDequeueFIFOOrder(t *testing.T) {
	q := NewCommandQueue(4, 10)
	first, _ := q.Enqueue("plant.start", "operator", nil)
	second, _ := q.Enqueue("plant.stop", "operator", nil)

	got := q.Dequeue()
	if got.ID != first.ID {
		t.Fatalf("expected first command %s, got %s", first.ID, got.ID)
	}
	got = q.Dequeue()
	if got.ID != second.ID {
		t.Fatalf("expected second command %s, got %s", second.ID, got.ID)
	}
	if q.Dequeue() != nil {
		t.Fatalf("expected nil once drained")
	}
}

func TestHistoryRingBufferEvicts(t *testing.T) {
	q := NewCommandQueue(100, 2)
	var ids []string
	for i := 0; i < 3; i++ {
		cmd, _ := q.Enqueue("plant.start", "operator", nil)
		ids = append(ids, cmd.ID)
	}
	if _, ok := q.Status(ids[0]); ok {
		t.Fatalf("expected oldest history entry %s to be evicted", ids[0])
	}
	if _, ok := q.Status(ids[2]); !ok {
		t.Fatalf("expected newest history entry %s to be retained", ids[2])
	}
}

func TestRecentFailedCountsWithinWindow(t *testing.T) {
	q := NewCommandQueue(100, 100)
	for i := 0; i < 3; i++ {
		cmd, _ := q.Enqueue("plant.start", "operator", nil)
		cmd.State = model.CommandFailed
		q.Finish(cmd)
	}
	for i := 0; i < 2; i++ {
		cmd, _ := q.Enqueue("plant.stop", "operator", nil)
		cmd.State = model.CommandSucceeded
		q.Finish(cmd)
	}
	if got := q.RecentFailed(5); got != 3 {
		t.Fatalf("expected 3 failed in window, got %d", got)
	}
	if got := q.RecentFailed(2); got != 0 {
		t.Fatalf("expected 0 failed in last 2 (both succeeded), got %d", got)
	}
}

package postqueue

import (
	"testing"

	"hil-scheduler/internal/model"
	"hil-scheduler/internal/state"
)

func TestBackoffSequence(t *testing.T) {
	want := []float64{2, 4, 8, 16, 32, 60, 60}
	for i, w := range want {
		got := backoffSeconds(2, 60, i+1)
		if got != w {
			t.Errorf("attempt %d: got %v want %v", i+1, got, w)
		}
	}
}

func TestEnqueueDropsOldestAtCapacity(t *testing.T) {
	q := New(nil, state.New(model.TransportLocal), 2, 2, 60, 0, nil)
	q.Enqueue(model.PlantLIB, model.PostItem{Value: 1})
	q.Enqueue(model.PlantLIB, model.PostItem{Value: 2})
	q.Enqueue(model.PlantLIB, model.PostItem{Value: 3})

	if q.depth(model.PlantLIB) != 2 {
		t.Fatalf("expected depth 2 at capacity, got %d", q.depth(model.PlantLIB))
	}
	head, ok := q.peekHead(model.PlantLIB)
	if !ok || head.Value != 2 {
		t.Fatalf("expected oldest (value=1) dropped, head=%+v", head)
	}
}

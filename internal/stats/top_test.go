package stats

import (
	"testing"

	"github.com/verte-zerg/indexpace/internal/model"
)

func TestTopWorkersByCount(t *testing.T) {
	table := model.NewEventTable([]model.Event{
		{WorkerID: "b", RecordedAt: at(9, 0)},
		{WorkerID: "a", RecordedAt: at(9, 1)},
		{WorkerID: "c", RecordedAt: at(9, 2)},
		{WorkerID: "b", RecordedAt: at(9, 3)},
		{WorkerID: "a", RecordedAt: at(9, 4)},
	}, nil, "UTF-8", 0)

	top := TopWorkersByCount(table, 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(top))
	}
	if top[0].WorkerID != "a" || top[1].WorkerID != "b" {
		t.Fatalf("unexpected order: %v", top)
	}
	if top[0].Count != 2 {
		t.Fatalf("expected count 2, got %d", top[0].Count)
	}
	if all := TopWorkersByCount(table, 0); len(all) != 3 {
		t.Fatalf("expected all 3 workers, got %d", len(all))
	}
	if empty := TopWorkersByCount(model.EventTable{}, 5); empty != nil {
		t.Fatalf("expected nil for empty table, got %v", empty)
	}
}

package stats

import (
	"sort"

	"github.com/verte-zerg/indexpace/internal/model"
)

// TopWorkersByCount ranks workers by event count, ties broken by name.
// A non-positive n returns every worker.
func TopWorkersByCount(table model.EventTable, n int) []model.WorkerCount {
	counts := map[string]int{}
	for _, ev := range table.Events() {
		counts[ev.WorkerID]++
	}
	if len(counts) == 0 {
		return nil
	}
	items := make([]model.WorkerCount, 0, len(counts))
	for worker, count := range counts {
		items = append(items, model.WorkerCount{WorkerID: worker, Count: count})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].WorkerID < items[j].WorkerID
		}
		return items[i].Count > items[j].Count
	})
	if n > 0 && n < len(items) {
		items = items[:n]
	}
	return items
}

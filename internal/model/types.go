// Package model defines shared data structures.
package model

import "time"

// Event is one indexing action recorded for a worker.
type Event struct {
	WorkerID   string
	RecordedAt time.Time
	// Row is the 1-based data row the event was read from.
	Row int
}

// EventTable is the validated result of one ingested export.
type EventTable struct {
	events   []Event
	columns  []string
	encoding string
	dropped  int
}

// NewEventTable builds a table. The slices are copied.
func NewEventTable(events []Event, columns []string, encoding string, dropped int) EventTable {
	return EventTable{
		events:   append([]Event(nil), events...),
		columns:  append([]string(nil), columns...),
		encoding: encoding,
		dropped:  dropped,
	}
}

// Events returns a copy of the events in source order.
func (t EventTable) Events() []Event {
	return append([]Event(nil), t.events...)
}

// Len returns the number of events.
func (t EventTable) Len() int {
	return len(t.events)
}

// Columns returns the header names found in the source file.
func (t EventTable) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Encoding returns the detected charset name.
func (t EventTable) Encoding() string {
	return t.encoding
}

// Dropped returns how many data rows were excluded as malformed.
func (t EventTable) Dropped() int {
	return t.dropped
}

// Workers returns distinct worker ids in order of first appearance.
func (t EventTable) Workers() []string {
	seen := make(map[string]struct{}, 16)
	var out []string
	for _, ev := range t.events {
		if _, ok := seen[ev.WorkerID]; ok {
			continue
		}
		seen[ev.WorkerID] = struct{}{}
		out = append(out, ev.WorkerID)
	}
	return out
}

// Pause is a gap longer than the pause threshold.
type Pause struct {
	// At is the timestamp of the event that ended the pause.
	At time.Time
	// Minutes is the gap rounded to one decimal place.
	Minutes float64
}

// MetricsBundle holds the productivity metrics of one worker.
type MetricsBundle struct {
	WorkerID   string
	TotalCount int
	// Events are the worker's events in chronological order.
	Events []Event

	// GapsMinutes[i] is the gap between Events[i] and Events[i+1].
	GapsMinutes []float64
	IsPause     []bool

	ActiveMinutes      float64
	PauseMinutes       float64
	AvgMinutesPerEvent float64
	MedianGapMinutes   float64

	HourlyHistogram [24]int
	Pauses          []Pause

	FirstAt time.Time
	LastAt  time.Time
}

// WorkerCount pairs a worker with its event count.
type WorkerCount struct {
	WorkerID string
	Count    int
}

// Upload describes an ingested export kept in the history store.
type Upload struct {
	ID         string
	Name       string
	Hash       string
	Encoding   string
	Columns    []string
	Events     int
	Dropped    int
	ImportedAt time.Time
}

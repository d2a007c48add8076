package stats

import (
	"math"
	"testing"
	"time"

	"github.com/verte-zerg/indexpace/internal/model"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, time.March, 5, hour, minute, 0, 0, time.UTC)
}

func tableOf(events ...model.Event) model.EventTable {
	return model.NewEventTable(events, []string{"Indexador", "Data Cadastro"}, "UTF-8", 0)
}

func TestComputeScenario(t *testing.T) {
	table := tableOf(
		model.Event{WorkerID: "Ana", RecordedAt: at(11, 0), Row: 3},
		model.Event{WorkerID: "Bruno", RecordedAt: at(9, 10), Row: 4},
		model.Event{WorkerID: "Ana", RecordedAt: at(9, 0), Row: 1},
		model.Event{WorkerID: "Ana", RecordedAt: at(9, 30), Row: 2},
	)
	b := Compute(table, "Ana", DefaultComputeOptions())

	if b.TotalCount != 3 {
		t.Fatalf("expected 3 events, got %d", b.TotalCount)
	}
	if len(b.GapsMinutes) != 2 || b.GapsMinutes[0] != 30 || b.GapsMinutes[1] != 90 {
		t.Fatalf("unexpected gaps: %v", b.GapsMinutes)
	}
	if b.IsPause[0] || !b.IsPause[1] {
		t.Fatalf("unexpected pause flags: %v", b.IsPause)
	}
	if b.ActiveMinutes != 30 {
		t.Fatalf("expected 30 active minutes, got %v", b.ActiveMinutes)
	}
	if b.AvgMinutesPerEvent != 10 {
		t.Fatalf("expected avg 10, got %v", b.AvgMinutesPerEvent)
	}
	if len(b.Pauses) != 1 || !b.Pauses[0].At.Equal(at(11, 0)) || b.Pauses[0].Minutes != 90 {
		t.Fatalf("unexpected pauses: %+v", b.Pauses)
	}
	if b.HourlyHistogram[9] != 2 || b.HourlyHistogram[11] != 1 || b.HourlyHistogram[10] != 0 {
		t.Fatalf("unexpected histogram: %v", b.HourlyHistogram)
	}
	if !b.FirstAt.Equal(at(9, 0)) || !b.LastAt.Equal(at(11, 0)) {
		t.Fatalf("unexpected span: %v - %v", b.FirstAt, b.LastAt)
	}
	if b.MedianGapMinutes != 60 {
		t.Fatalf("expected median gap 60, got %v", b.MedianGapMinutes)
	}
}

func TestComputeEmpty(t *testing.T) {
	for _, table := range []model.EventTable{{}, tableOf(model.Event{WorkerID: "bob", RecordedAt: at(9, 0)})} {
		b := Compute(table, "alice", DefaultComputeOptions())
		if b.TotalCount != 0 || b.ActiveMinutes != 0 || b.AvgMinutesPerEvent != 0 {
			t.Fatalf("expected zero bundle, got %+v", b)
		}
		if len(b.Pauses) != 0 || len(b.GapsMinutes) != 0 {
			t.Fatalf("expected no gaps or pauses, got %+v", b)
		}
	}
}

func TestComputeSingleEvent(t *testing.T) {
	b := Compute(tableOf(model.Event{WorkerID: "Ana", RecordedAt: at(9, 0)}), "Ana", DefaultComputeOptions())
	if b.TotalCount != 1 || len(b.GapsMinutes) != 0 || b.AvgMinutesPerEvent != 0 {
		t.Fatalf("unexpected bundle: %+v", b)
	}
	if b.HourlyHistogram[9] != 1 {
		t.Fatalf("expected the single event in the histogram")
	}
}

func TestComputePauseBoundary(t *testing.T) {
	start := at(8, 0)
	table := tableOf(
		model.Event{WorkerID: "Ana", RecordedAt: start},
		model.Event{WorkerID: "Ana", RecordedAt: start.Add(60 * time.Minute)},
		model.Event{WorkerID: "Ana", RecordedAt: start.Add(120*time.Minute + 6*time.Millisecond)},
	)
	b := Compute(table, "Ana", DefaultComputeOptions())
	if b.GapsMinutes[0] != 60 || b.IsPause[0] {
		t.Fatalf("a gap of exactly 60 minutes is not a pause: %v %v", b.GapsMinutes, b.IsPause)
	}
	if math.Abs(b.GapsMinutes[1]-60.0001) > 1e-9 || !b.IsPause[1] {
		t.Fatalf("a gap of 60.0001 minutes is a pause: %v %v", b.GapsMinutes, b.IsPause)
	}
	if b.ActiveMinutes != 60 {
		t.Fatalf("pause gaps are excluded from active time, got %v", b.ActiveMinutes)
	}
	if b.Pauses[0].Minutes != 60 {
		t.Fatalf("pause listing is rounded to one decimal, got %v", b.Pauses[0].Minutes)
	}
}

func TestComputeInvariants(t *testing.T) {
	base := at(7, 0)
	offsets := []int{0, 400, 15, 15, 95, 30, 31, 260, 10, 61, 240}
	var events []model.Event
	for i, off := range offsets {
		worker := "Ana"
		if i%3 == 0 {
			worker = " Ana"
		}
		events = append(events, model.Event{WorkerID: worker, RecordedAt: base.Add(time.Duration(off) * time.Minute), Row: i + 1})
	}
	table := tableOf(events...)
	b := Compute(table, "Ana", DefaultComputeOptions())

	want := 0
	for _, ev := range events {
		if ev.WorkerID == "Ana" {
			want++
		}
	}
	if b.TotalCount != want {
		t.Fatalf("expected %d events, got %d", want, b.TotalCount)
	}
	if len(b.GapsMinutes) != max(b.TotalCount-1, 0) || len(b.IsPause) != len(b.GapsMinutes) {
		t.Fatalf("unexpected gap lengths: %d %d", len(b.GapsMinutes), len(b.IsPause))
	}
	var sum, pauses float64
	for i, g := range b.GapsMinutes {
		if g < 0 {
			t.Fatalf("negative gap at %d: %v", i, g)
		}
		sum += g
		if b.IsPause[i] {
			pauses += g
		}
	}
	if math.Abs(b.ActiveMinutes+pauses-sum) > 1e-9 || math.Abs(b.PauseMinutes-pauses) > 1e-9 {
		t.Fatalf("active %v + pauses %v != total %v", b.ActiveMinutes, pauses, sum)
	}
}

func TestComputeStableTies(t *testing.T) {
	table := tableOf(
		model.Event{WorkerID: "Ana", RecordedAt: at(10, 0), Row: 1},
		model.Event{WorkerID: "Ana", RecordedAt: at(9, 0), Row: 2},
		model.Event{WorkerID: "Ana", RecordedAt: at(10, 0), Row: 3},
	)
	b := Compute(table, "Ana", DefaultComputeOptions())
	rows := []int{b.Events[0].Row, b.Events[1].Row, b.Events[2].Row}
	if rows[0] != 2 || rows[1] != 1 || rows[2] != 3 {
		t.Fatalf("expected stable order [2 1 3], got %v", rows)
	}
}

func TestComputeDoesNotMutateTable(t *testing.T) {
	table := tableOf(
		model.Event{WorkerID: "Ana", RecordedAt: at(10, 0)},
		model.Event{WorkerID: "Ana", RecordedAt: at(9, 0)},
	)
	_ = Compute(table, "Ana", DefaultComputeOptions())
	if !table.Events()[0].RecordedAt.Equal(at(10, 0)) {
		t.Fatalf("table order changed")
	}
}

func TestComputeAll(t *testing.T) {
	table := tableOf(
		model.Event{WorkerID: "b", RecordedAt: at(9, 0)},
		model.Event{WorkerID: "a", RecordedAt: at(9, 5)},
	)
	all := ComputeAll(table, DefaultComputeOptions())
	if len(all) != 2 || all[0].WorkerID != "b" || all[1].WorkerID != "a" {
		t.Fatalf("unexpected bundles: %+v", all)
	}
}

func TestSummarizeGaps(t *testing.T) {
	if got := SummarizeGaps(nil); got != (GapSummary{}) {
		t.Fatalf("expected zero summary, got %+v", got)
	}
	got := SummarizeGaps([]float64{5, 1, 3})
	if got.Median != 3 || got.Max != 5 {
		t.Fatalf("unexpected summary: %+v", got)
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{2, 4, 6, 8}, 2)
	want := []float64{2, 3, 5, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected moving average: %v", got)
		}
	}
}

func TestSparkline(t *testing.T) {
	if Sparkline(nil) != "" {
		t.Fatalf("expected empty sparkline")
	}
	line := Sparkline([]float64{0, 5, 10})
	if len(line) != 3 || line[0] != ' ' || line[2] != '@' {
		t.Fatalf("unexpected sparkline: %q", line)
	}
}

func TestGapSeries(t *testing.T) {
	b := Compute(tableOf(
		model.Event{WorkerID: "Ana", RecordedAt: at(9, 0)},
		model.Event{WorkerID: "Ana", RecordedAt: at(9, 20)},
	), "Ana", DefaultComputeOptions())
	series := GapSeries(b)
	if len(series) != 2 || series[0] != 0 || series[1] != 20 {
		t.Fatalf("unexpected series: %v", series)
	}
}

// Package stats contains productivity calculations and reporting.
package stats

import (
	"math"
	"sort"
	"strings"
	"time"

	mstats "github.com/montanaflynn/stats"

	"github.com/verte-zerg/indexpace/internal/model"
)

const sparkChars = " .:-=+*#%@"

// DefaultPauseThreshold is the gap above which a worker is considered paused.
const DefaultPauseThreshold = 60 * time.Minute

// ComputeOptions tunes the metrics engine.
type ComputeOptions struct {
	// PauseThreshold classifies gaps strictly greater than it as pauses.
	PauseThreshold time.Duration
}

// DefaultComputeOptions returns the standard engine options.
func DefaultComputeOptions() ComputeOptions {
	return ComputeOptions{PauseThreshold: DefaultPauseThreshold}
}

// GapSummary describes the distribution of gaps between events.
type GapSummary struct {
	Median float64
	P90    float64
	Max    float64
}

// Compute derives the metrics of one worker. Matching on workerID is exact
// and case-sensitive. An unknown worker or an empty table yields a zero bundle.
func Compute(table model.EventTable, workerID string, opts ComputeOptions) model.MetricsBundle {
	events := filterWorker(table.Events(), workerID)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].RecordedAt.Before(events[j].RecordedAt)
	})

	bundle := model.MetricsBundle{
		WorkerID:   workerID,
		TotalCount: len(events),
		Events:     events,
	}
	if len(events) == 0 {
		return bundle
	}
	bundle.FirstAt = events[0].RecordedAt
	bundle.LastAt = events[len(events)-1].RecordedAt

	for _, ev := range events {
		bundle.HourlyHistogram[ev.RecordedAt.Hour()]++
	}
	if len(events) < 2 {
		return bundle
	}

	bundle.GapsMinutes = make([]float64, 0, len(events)-1)
	bundle.IsPause = make([]bool, 0, len(events)-1)
	for i := 1; i < len(events); i++ {
		delta := events[i].RecordedAt.Sub(events[i-1].RecordedAt)
		gap := delta.Minutes()
		pause := delta > opts.PauseThreshold
		bundle.GapsMinutes = append(bundle.GapsMinutes, gap)
		bundle.IsPause = append(bundle.IsPause, pause)
		if pause {
			bundle.PauseMinutes += gap
			bundle.Pauses = append(bundle.Pauses, model.Pause{
				At:      events[i].RecordedAt,
				Minutes: round1(gap),
			})
			continue
		}
		bundle.ActiveMinutes += gap
	}
	bundle.AvgMinutesPerEvent = bundle.ActiveMinutes / float64(bundle.TotalCount)
	bundle.MedianGapMinutes = SummarizeGaps(bundle.GapsMinutes).Median
	return bundle
}

// ComputeAll computes a bundle for every worker in order of first appearance.
func ComputeAll(table model.EventTable, opts ComputeOptions) []model.MetricsBundle {
	workers := table.Workers()
	out := make([]model.MetricsBundle, 0, len(workers))
	for _, w := range workers {
		out = append(out, Compute(table, w, opts))
	}
	return out
}

// SummarizeGaps returns median, 90th percentile and maximum of gaps.
func SummarizeGaps(gaps []float64) GapSummary {
	if len(gaps) == 0 {
		return GapSummary{}
	}
	data := mstats.Float64Data(gaps)
	var summary GapSummary
	if v, err := data.Median(); err == nil {
		summary.Median = v
	}
	if v, err := data.Percentile(90); err == nil {
		summary.P90 = v
	}
	if v, err := data.Max(); err == nil {
		summary.Max = v
	}
	return summary
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := seriesMinMax(values)
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		b.WriteByte(sparkChars[clampInt(idx, 0, len(sparkChars)-1)])
	}
	return b.String()
}

// GapSeries returns one value per event, the first being zero, matching the
// x axis of a gap-over-time chart.
func GapSeries(bundle model.MetricsBundle) []float64 {
	if bundle.TotalCount == 0 {
		return nil
	}
	out := make([]float64, 0, bundle.TotalCount)
	out = append(out, 0)
	return append(out, bundle.GapsMinutes...)
}

func filterWorker(events []model.Event, workerID string) []model.Event {
	out := events[:0]
	for _, ev := range events {
		if ev.WorkerID == workerID {
			out = append(out, ev)
		}
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package stats

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/verte-zerg/indexpace/internal/model"
)

// TimestampLayout is the day-first layout used in reports.
const TimestampLayout = "02/01/2006 15:04:05"

const histogramBarWidth = 40

// ReportOptions controls the plain-text report.
type ReportOptions struct {
	PauseThreshold time.Duration
	// CurveWindow is the moving-average window of the gap chart.
	CurveWindow int
	Width       int
	Height      int
	ShowEvents  bool
	ForceColor  bool
}

// DefaultReportOptions returns report options sized for an 80 column terminal.
func DefaultReportOptions() ReportOptions {
	return ReportOptions{
		PauseThreshold: DefaultPauseThreshold,
		CurveWindow:    5,
		Height:         defaultPlotHeight,
	}
}

// RenderReport writes every report section for one worker.
func RenderReport(w io.Writer, bundle model.MetricsBundle, opts ReportOptions) error {
	if err := RenderSummary(w, bundle); err != nil {
		return err
	}
	if bundle.TotalCount == 0 {
		return nil
	}
	if err := RenderHistogram(w, bundle); err != nil {
		return err
	}
	if err := RenderGapCurve(w, bundle, opts); err != nil {
		return err
	}
	if err := RenderPauseTable(w, bundle); err != nil {
		return err
	}
	if opts.ShowEvents {
		return RenderEventTable(w, bundle)
	}
	return nil
}

// RenderSummary prints the headline metrics.
func RenderSummary(w io.Writer, bundle model.MetricsBundle) error {
	if _, err := fmt.Fprintf(w, "Metrics for %s\n", bundle.WorkerID); err != nil {
		return err
	}
	if bundle.TotalCount == 0 {
		_, err := fmt.Fprintln(w, "No events found.")
		return err
	}
	gaps := SummarizeGaps(bundle.GapsMinutes)
	rows := [][]string{
		{"Total events", fmt.Sprintf("%d", bundle.TotalCount)},
		{"Active time (min)", fmt.Sprintf("%.1f", bundle.ActiveMinutes)},
		{"Avg per event (min)", fmt.Sprintf("%.1f", bundle.AvgMinutesPerEvent)},
		{"Pauses", fmt.Sprintf("%d (%.1f min)", len(bundle.Pauses), bundle.PauseMinutes)},
		{"Median gap (min)", fmt.Sprintf("%.1f", gaps.Median)},
		{"P90 gap (min)", fmt.Sprintf("%.1f", gaps.P90)},
		{"Longest gap (min)", fmt.Sprintf("%.1f", gaps.Max)},
		{"First event", bundle.FirstAt.Format(TimestampLayout)},
		{"Last event", bundle.LastAt.Format(TimestampLayout)},
	}
	return writeTable(w, "", nil, rows, map[int]bool{1: true})
}

// RenderHistogram prints events per hour of day, listing only hours with events.
func RenderHistogram(w io.Writer, bundle model.MetricsBundle) error {
	peak := 0
	for _, n := range bundle.HourlyHistogram {
		peak = max(peak, n)
	}
	if peak == 0 {
		return nil
	}
	rows := make([][]string, 0, 24)
	for hour, n := range bundle.HourlyHistogram {
		if n == 0 {
			continue
		}
		bar := strings.Repeat("█", max(1, n*histogramBarWidth/peak))
		rows = append(rows, []string{fmt.Sprintf("%02dh", hour), fmt.Sprintf("%d", n), bar})
	}
	return writeTable(w, "Events per Hour", []string{"Hour", "Events", ""}, rows, map[int]bool{1: true})
}

// RenderGapCurve plots the minutes between consecutive events and their moving average.
func RenderGapCurve(w io.Writer, bundle model.MetricsBundle, opts ReportOptions) error {
	series := GapSeries(bundle)
	if len(series) < 2 {
		return nil
	}
	width := 0
	if opts.Width > 0 {
		width = PlotWidthFor(opts.Width)
	}
	return PlotSeries(w, "Time between Events (min)", []Series{
		{Name: "Gap", Values: series},
		{Name: fmt.Sprintf("Avg(%d)", max(opts.CurveWindow, 1)), Values: MovingAverage(series, opts.CurveWindow)},
	}, PlotOptions{
		Width:      width,
		Height:     opts.Height,
		Threshold:  opts.PauseThreshold.Minutes(),
		ForceColor: opts.ForceColor,
	})
}

// RenderPauseTable lists the detected pauses.
func RenderPauseTable(w io.Writer, bundle model.MetricsBundle) error {
	if len(bundle.Pauses) == 0 {
		_, err := fmt.Fprintln(w, "No pauses detected.")
		return err
	}
	rows := make([][]string, 0, len(bundle.Pauses))
	for _, p := range bundle.Pauses {
		rows = append(rows, []string{p.At.Format(TimestampLayout), fmt.Sprintf("%.1f", p.Minutes)})
	}
	return writeTable(w, "Pauses Detected", []string{"Resumed at", "Gap (min)"}, rows, map[int]bool{1: true})
}

// RenderEventTable lists every event of the worker with its gap.
func RenderEventTable(w io.Writer, bundle model.MetricsBundle) error {
	return writeTable(w, "All Events", []string{"Row", "Recorded at", "Gap (min)", "Pause"}, EventRows(bundle), map[int]bool{0: true, 2: true})
}

// EventRows formats the events of bundle as table cells.
func EventRows(bundle model.MetricsBundle) [][]string {
	rows := make([][]string, 0, len(bundle.Events))
	for i, ev := range bundle.Events {
		gap, pause := "", ""
		if i > 0 {
			gap = fmt.Sprintf("%.1f", bundle.GapsMinutes[i-1])
			if bundle.IsPause[i-1] {
				pause = "yes"
			}
		}
		rows = append(rows, []string{fmt.Sprintf("%d", ev.Row), ev.RecordedAt.Format(TimestampLayout), gap, pause})
	}
	return rows
}

// RenderWorkerTable lists workers with their event counts.
func RenderWorkerTable(w io.Writer, counts []model.WorkerCount) error {
	if len(counts) == 0 {
		_, err := fmt.Fprintln(w, "No workers found.")
		return err
	}
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.WorkerID, fmt.Sprintf("%d", c.Count)})
	}
	return writeTable(w, "", []string{"Worker", "Events"}, rows, map[int]bool{1: true})
}

// RenderUploadTable lists stored uploads.
func RenderUploadTable(w io.Writer, uploads []model.Upload) error {
	if len(uploads) == 0 {
		_, err := fmt.Fprintln(w, "No uploads stored.")
		return err
	}
	rows := make([][]string, 0, len(uploads))
	for _, u := range uploads {
		rows = append(rows, []string{
			u.ID,
			u.Name,
			u.ImportedAt.Format(TimestampLayout),
			u.Encoding,
			fmt.Sprintf("%d", u.Events),
			fmt.Sprintf("%d", u.Dropped),
		})
	}
	return writeTable(w, "", []string{"ID", "Name", "Imported", "Encoding", "Events", "Dropped"}, rows, map[int]bool{4: true, 5: true})
}

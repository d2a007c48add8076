// Package export writes worker metrics to spreadsheet and CSV files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/verte-zerg/indexpace/internal/model"
	"github.com/verte-zerg/indexpace/internal/stats"
)

// Sheet names of the workbook, in order.
const (
	SheetSummary = "Summary"
	SheetHourly  = "Hourly"
	SheetGaps    = "Gaps"
	SheetPauses  = "Pauses"
)

// WriteXLSX saves the metrics of one worker as a workbook at path.
func WriteXLSX(path string, bundle model.MetricsBundle) error {
	f, err := buildWorkbook(bundle)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			// Best-effort workbook close.
			_ = cerr
		}
	}()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// WriteXLSXTo streams the workbook to w.
func WriteXLSXTo(w io.Writer, bundle model.MetricsBundle) error {
	f, err := buildWorkbook(bundle)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			// Best-effort workbook close.
			_ = cerr
		}
	}()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func buildWorkbook(bundle model.MetricsBundle) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, fmt.Errorf("failed to name summary sheet: %w", err)
	}
	for _, name := range []string{SheetHourly, SheetGaps, SheetPauses} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	gaps := stats.SummarizeGaps(bundle.GapsMinutes)
	summary := [][]any{
		{"Metric", "Value"},
		{"Worker", bundle.WorkerID},
		{"Total events", bundle.TotalCount},
		{"Active time (min)", round1(bundle.ActiveMinutes)},
		{"Pause time (min)", round1(bundle.PauseMinutes)},
		{"Avg per event (min)", round1(bundle.AvgMinutesPerEvent)},
		{"Pauses", len(bundle.Pauses)},
		{"Median gap (min)", round1(gaps.Median)},
		{"P90 gap (min)", round1(gaps.P90)},
		{"Longest gap (min)", round1(gaps.Max)},
	}
	if bundle.TotalCount > 0 {
		summary = append(summary,
			[]any{"First event", bundle.FirstAt.Format(stats.TimestampLayout)},
			[]any{"Last event", bundle.LastAt.Format(stats.TimestampLayout)},
		)
	}
	if err := writeRows(f, SheetSummary, summary); err != nil {
		return nil, err
	}

	hourly := [][]any{{"Hour", "Events"}}
	for hour, n := range bundle.HourlyHistogram {
		hourly = append(hourly, []any{hour, n})
	}
	if err := writeRows(f, SheetHourly, hourly); err != nil {
		return nil, err
	}

	gapRows := [][]any{{"Row", "Recorded at", "Gap (min)", "Pause"}}
	for i, ev := range bundle.Events {
		row := []any{ev.Row, ev.RecordedAt.Format(stats.TimestampLayout), nil, nil}
		if i > 0 {
			row[2] = round1(bundle.GapsMinutes[i-1])
			row[3] = bundle.IsPause[i-1]
		}
		gapRows = append(gapRows, row)
	}
	if err := writeRows(f, SheetGaps, gapRows); err != nil {
		return nil, err
	}

	pauseRows := [][]any{{"Resumed at", "Gap (min)"}}
	for _, p := range bundle.Pauses {
		pauseRows = append(pauseRows, []any{p.At.Format(stats.TimestampLayout), p.Minutes})
	}
	if err := writeRows(f, SheetPauses, pauseRows); err != nil {
		return nil, err
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// WriteCSV writes one ';'-separated line per event with the gap since the
// previous event of the worker.
func WriteCSV(w io.Writer, bundle model.MetricsBundle) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write([]string{"row", "timestamp", "gap_minutes", "pause"}); err != nil {
		return err
	}
	for i, ev := range bundle.Events {
		gap, pause := "", ""
		if i > 0 {
			gap = strconv.FormatFloat(bundle.GapsMinutes[i-1], 'f', 2, 64)
			pause = strconv.FormatBool(bundle.IsPause[i-1])
		}
		record := []string{strconv.Itoa(ev.Row), ev.RecordedAt.Format(stats.TimestampLayout), gap, pause}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

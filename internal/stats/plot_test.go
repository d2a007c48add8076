package stats

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPlotSeries(t *testing.T) {
	var buf bytes.Buffer
	err := PlotSeries(&buf, "Test Plot", []Series{
		{Name: "A", Values: []float64{1, 2, 3, 2, 1}},
		{Name: "B", Values: []float64{1, 1, 2, 3, 4}},
	}, PlotOptions{Width: 12, Height: 4, Threshold: 3.5})
	if err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Test Plot") {
		t.Fatalf("expected title in output")
	}
	if !strings.Contains(out, "Legend:") || !strings.Contains(out, "threshold 3.5") {
		t.Fatalf("expected legend with threshold in output: %s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no color codes for a buffer writer")
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	expectedMin := 1 + 4 + 1
	if len(lines) < expectedMin {
		t.Fatalf("expected at least %d lines of output, got %d", expectedMin, len(lines))
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[1]), "4 ") {
		t.Fatalf("expected the top axis label to be the maximum, got %q", lines[1])
	}
}

func TestPlotSeriesSkipsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := PlotSeries(&buf, "Empty", []Series{{Name: "A"}}, PlotOptions{Width: 10}); err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestPlotWidthFor(t *testing.T) {
	axisWidth := axisLabelWidth + utf8.RuneCountInString(axisSeparator)
	if got := PlotWidthFor(80); got != 80-axisWidth {
		t.Fatalf("expected width %d, got %d", 80-axisWidth, got)
	}
	if got := PlotWidthFor(0); got != minPlotWidth {
		t.Fatalf("expected min width %d, got %d", minPlotWidth, got)
	}
}

func TestResampleSeries(t *testing.T) {
	down := resampleSeries([]float64{1, 3, 5, 7}, 2)
	if down[0] != 2 || down[1] != 6 {
		t.Fatalf("unexpected downsample: %v", down)
	}
	up := resampleSeries([]float64{0, 10}, 3)
	if up[0] != 0 || up[1] != 5 || up[2] != 10 {
		t.Fatalf("unexpected upsample: %v", up)
	}
}

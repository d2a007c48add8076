// Package stats contains productivity calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Series represents a named data series for plotting.
type Series struct {
	Name   string
	Values []float64
}

// PlotOptions controls chart geometry and decoration.
type PlotOptions struct {
	Width  int
	Height int
	// Threshold draws a dotted reference line at that value when > 0.
	Threshold float64
	// Unit is appended to axis labels.
	Unit       string
	ForceColor bool
}

type lineStyle struct {
	name   string
	period int
	on     int
}

const (
	defaultPlotHeight   = 10
	minPlotWidth        = 10
	axisSeparator       = " │ "
	colorReset          = "\x1b[0m"
	thresholdColor      = "\x1b[31m"
	terminalWidthBackup = 80
	axisLabelWidth      = 7
	dotsPerCell         = 4
)

var lineStyles = []lineStyle{
	{name: "solid", period: 1, on: 1},
	{name: "dashed", period: 6, on: 3},
	{name: "dotted", period: 4, on: 1},
}

var seriesColors = []string{"\x1b[36m", "\x1b[33m", "\x1b[35m"}

// Dot bit for a sub-cell position inside a braille character, indexed [x][y].
var brailleBits = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

// PlotSeries renders series on one shared y axis starting at zero.
func PlotSeries(w io.Writer, title string, series []Series, opts PlotOptions) error {
	series = filterSeries(series)
	if len(series) == 0 {
		return nil
	}

	height := opts.Height
	if height <= 0 {
		height = defaultPlotHeight
	}
	width := opts.Width
	if width <= 0 {
		width = autoPlotWidth()
	}
	width = max(width, minPlotWidth)

	top := opts.Threshold
	for _, s := range series {
		_, hi := seriesMinMax(s.Values)
		top = math.Max(top, hi)
	}
	if top <= 0 {
		top = 1
	}

	dotRows := height * dotsPerCell
	layers := make([][][]uint8, 0, len(series)+1)
	for si, s := range series {
		cells := makeCells(height, width)
		style := lineStyles[si%len(lineStyles)]
		prevX, prevY := -1, -1
		for x, v := range resampleSeries(s.Values, width) {
			px, py := x*2, valueToRow(v, top, dotRows)
			if prevX >= 0 {
				drawLine(prevX, prevY, px, py, func(dx, dy int) {
					if style.shouldPlot(dx) {
						setBrailleDot(cells, dx, dy)
					}
				})
			} else {
				setBrailleDot(cells, px, py)
			}
			prevX, prevY = px, py
		}
		layers = append(layers, cells)
	}
	if opts.Threshold > 0 {
		cells := makeCells(height, width)
		row := valueToRow(opts.Threshold, top, dotRows)
		for x := 0; x < width*2; x += 3 {
			setBrailleDot(cells, x, row)
		}
		layers = append(layers, cells)
	}

	useColor := shouldUseColor(w, opts.ForceColor)
	labels := axisLabels(height, top, opts.Unit)

	if title != "" {
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
	}
	for y := 0; y < height; y++ {
		var row strings.Builder
		row.WriteString(padCell(labels[y], axisLabelWidth, true))
		row.WriteString(axisSeparator)
		for x := 0; x < width; x++ {
			mask, layer := composeCell(layers, x, y)
			ch := rune(0x2800 + int(mask))
			if !useColor || layer < 0 {
				row.WriteRune(ch)
				continue
			}
			color := thresholdColor
			if layer < len(series) {
				color = seriesColors[layer%len(seriesColors)]
			}
			row.WriteString(color)
			row.WriteRune(ch)
			row.WriteString(colorReset)
		}
		if _, err := fmt.Fprintln(w, row.String()); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, renderLegend(series, opts, useColor)); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func filterSeries(series []Series) []Series {
	out := make([]Series, 0, len(series))
	for _, s := range series {
		if len(s.Values) == 0 {
			continue
		}
		out = append(out, s)
	}
	return out
}

func autoPlotWidth() int {
	return PlotWidthFor(terminalWidth())
}

// PlotWidthFor computes a plot width that fits within the total available width.
func PlotWidthFor(totalWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	axisWidth := axisLabelWidth + runewidth.StringWidth(axisSeparator)
	return max(totalWidth-axisWidth, minPlotWidth)
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func shouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

// axisLabels puts the maximum at the top, half of it in the middle and zero
// at the bottom.
func axisLabels(height int, top float64, unit string) []string {
	labels := make([]string, height)
	if height <= 0 {
		return labels
	}
	labels[0] = formatAxisValue(top, unit)
	if height > 2 {
		labels[height/2] = formatAxisValue(top/2, unit)
	}
	if height > 1 {
		labels[height-1] = formatAxisValue(0, unit)
	}
	return labels
}

func formatAxisValue(v float64, unit string) string {
	if v >= 100 || v == math.Trunc(v) {
		return fmt.Sprintf("%.0f%s", v, unit)
	}
	return fmt.Sprintf("%.1f%s", v, unit)
}

func makeCells(height, width int) [][]uint8 {
	cells := make([][]uint8, height)
	for y := range cells {
		cells[y] = make([]uint8, width)
	}
	return cells
}

// composeCell merges all layers; the index of the first layer with a dot picks the color.
func composeCell(layers [][][]uint8, x, y int) (uint8, int) {
	var mask uint8
	first := -1
	for i, cells := range layers {
		if y < 0 || y >= len(cells) || x < 0 || x >= len(cells[y]) {
			continue
		}
		if cells[y][x] == 0 {
			continue
		}
		if first == -1 {
			first = i
		}
		mask |= cells[y][x]
	}
	return mask, first
}

func (ls lineStyle) shouldPlot(x int) bool {
	if ls.period <= 1 {
		return true
	}
	if x < 0 {
		x = -x
	}
	return x%ls.period < ls.on
}

// resampleSeries averages buckets when shrinking and interpolates when stretching.
func resampleSeries(values []float64, width int) []float64 {
	if len(values) == 0 || width <= 0 {
		return nil
	}
	out := make([]float64, width)
	switch {
	case len(values) == width:
		copy(out, values)
	case len(values) > width:
		for i := 0; i < width; i++ {
			start := i * len(values) / width
			end := max((i+1)*len(values)/width, start+1)
			end = min(end, len(values))
			var sum float64
			for _, v := range values[start:end] {
				sum += v
			}
			out[i] = sum / float64(end-start)
		}
	case len(values) == 1 || width == 1:
		for i := range out {
			out[i] = values[0]
		}
	default:
		for i := 0; i < width; i++ {
			pos := float64(i) * float64(len(values)-1) / float64(width-1)
			idx := int(math.Floor(pos))
			if idx >= len(values)-1 {
				out[i] = values[len(values)-1]
				continue
			}
			frac := pos - float64(idx)
			out[i] = values[idx]*(1-frac) + values[idx+1]*frac
		}
	}
	return out
}

func seriesMinMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// valueToRow maps v in [0, top] to a dot row, row 0 being the top.
func valueToRow(v, top float64, rows int) int {
	if rows <= 1 || top <= 0 {
		return 0
	}
	pos := math.Max(v, 0) / top
	return clampInt(int(math.Round((1-pos)*float64(rows-1))), 0, rows-1)
}

func renderLegend(series []Series, opts PlotOptions, useColor bool) string {
	parts := make([]string, 0, len(series)+1)
	for i, s := range series {
		label := fmt.Sprintf("⠉ %s (%s)", s.Name, lineStyles[i%len(lineStyles)].name)
		if useColor {
			label = seriesColors[i%len(seriesColors)] + label + colorReset
		}
		parts = append(parts, label)
	}
	if opts.Threshold > 0 {
		label := fmt.Sprintf("⠁ threshold %s", formatAxisValue(opts.Threshold, opts.Unit))
		if useColor {
			label = thresholdColor + label + colorReset
		}
		parts = append(parts, label)
	}
	return "Legend: " + strings.Join(parts, "  ")
}

// drawLine walks Bresenham's line between two dot coordinates.
func drawLine(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := absInt(x1 - x0)
	dy := -absInt(y1 - y0)
	sx, sy := -1, -1
	if x0 < x1 {
		sx = 1
	}
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func setBrailleDot(cells [][]uint8, x, y int) {
	if x < 0 || y < 0 {
		return
	}
	cellY, cellX := y/dotsPerCell, x/2
	if cellY >= len(cells) || cellX >= len(cells[cellY]) {
		return
	}
	cells[cellY][cellX] |= brailleBits[x%2][y%4]
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Package statsui provides the Bubble Tea worker dashboard.
package statsui

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/indexpace/internal/config"
	"github.com/verte-zerg/indexpace/internal/model"
	"github.com/verte-zerg/indexpace/internal/stats"
)

const (
	tabOverview = iota
	tabGaps
	tabPauses
	tabEvents
)

const (
	plotHeight = 10
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	modalStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(1, 2)
	pickerCursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
)

// Config holds the initial dashboard state.
type Config struct {
	// Source names the file or stored upload being shown.
	Source      string
	Worker      string
	Compute     stats.ComputeOptions
	CurveWindow int
}

// Model implements the Bubble Tea worker dashboard.
type Model struct {
	table   model.EventTable
	cfg     Config
	workers []model.WorkerCount

	// bundles memoizes Compute per worker for the current options.
	bundles map[string]model.MetricsBundle
	bundle  model.MetricsBundle
	errMsg  string

	tabs        []string
	activeTab   int
	viewports   []viewport.Model
	eventTable  table.Model
	eventLayout tableLayout

	width  int
	height int

	filterMode   bool
	filterInputs []textinput.Model
	filterIndex  int
	filterError  string

	picker picker
}

type tableLayout struct {
	width  int
	height int
}

// NewModel constructs a dashboard over table. An empty cfg.Worker selects
// the first worker in order of appearance.
func NewModel(table model.EventTable, cfg Config) *Model {
	if cfg.Compute.PauseThreshold <= 0 {
		cfg.Compute = stats.DefaultComputeOptions()
	}
	if cfg.CurveWindow < 1 {
		cfg.CurveWindow = stats.DefaultReportOptions().CurveWindow
	}
	m := &Model{
		table:   table,
		cfg:     cfg,
		workers: workerCounts(table),
		bundles: map[string]model.MetricsBundle{},
		tabs:    []string{"Overview", "Gaps", "Pauses", "Events"},
	}
	if m.cfg.Worker == "" {
		if workers := table.Workers(); len(workers) > 0 {
			m.cfg.Worker = workers[0]
		}
	}
	m.picker = newPicker(m.workers)
	m.initInputs()
	m.initEventTable()
	m.initViewports()
	m.refreshBundle()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.picker.active {
			return m.updatePicker(msg)
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		if msg.String() == "q" {
			return m, tea.Quit
		}
		if m.activeTab == tabEvents {
			m.eventTable.Focus()
		} else {
			m.eventTable.Blur()
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "=":
			m.cfg.CurveWindow = nextCurveWindow(m.cfg.CurveWindow)
			m.renderTabContents()
			return m, nil
		case "-":
			m.cfg.CurveWindow = prevCurveWindow(m.cfg.CurveWindow)
			m.renderTabContents()
			return m, nil
		case "w":
			return m, m.picker.open(m.cfg.Worker)
		case "/":
			return m.startFilter()
		case "g", "home":
			if m.activeTab == tabEvents {
				m.eventTable.GotoTop()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabEvents {
				m.eventTable.GotoBottom()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		default:
			if m.activeTab == tabEvents {
				var cmd tea.Cmd
				m.eventTable, cmd = m.eventTable.Update(msg)
				return m, cmd
			}
			vp := m.viewports[m.activeTab]
			var cmd tea.Cmd
			vp, cmd = vp.Update(msg)
			m.viewports[m.activeTab] = vp
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.picker.active {
		return fitLines(m.renderPickerModal(), m.width, m.height)
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

// Worker returns the selected worker.
func (m *Model) Worker() string {
	return m.cfg.Worker
}

// Bundle returns the metrics of the selected worker.
func (m *Model) Bundle() model.MetricsBundle {
	return m.bundle
}

// SelectWorker switches the dashboard to worker.
func (m *Model) SelectWorker(worker string) {
	m.cfg.Worker = worker
	m.refreshBundle()
}

func (m *Model) initViewports() {
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
}

func (m *Model) initInputs() {
	m.filterInputs = []textinput.Model{
		newFilterInput("Pause minutes: "),
		newFilterInput("Curve window: "),
	}
	m.setInputsFromConfig()
}

func (m *Model) initEventTable() {
	m.eventTable = table.New(
		table.WithColumns(eventColumns()),
		table.WithHeight(1),
	)
	m.eventTable.SetStyles(eventTableStyles())
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	if tabsHeight < 1 {
		tabsHeight = 1
	}
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if !m.filterMode && m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func newFilterInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) setInputsFromConfig() {
	if len(m.filterInputs) == 0 {
		return
	}
	m.filterInputs[0].SetValue(strconv.FormatFloat(m.cfg.Compute.PauseThreshold.Minutes(), 'f', -1, 64))
	m.filterInputs[1].SetValue(strconv.Itoa(m.cfg.CurveWindow))
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, vpHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = vpHeight
	}
	m.setEventTableSize(m.width, vpHeight)
	for i := range m.filterInputs {
		promptWidth := lipgloss.Width(m.filterInputs[i].Prompt)
		m.filterInputs[i].Width = maxInt(10, m.width-promptWidth-2)
	}
	promptWidth := lipgloss.Width(m.picker.input.Prompt)
	m.picker.input.Width = maxInt(10, modalInnerWidth(m.width)-promptWidth)
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	if count == 0 {
		return
	}
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	if m.activeTab == tabEvents {
		m.eventTable.Focus()
	} else {
		m.eventTable.Blur()
	}
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := padLines(m.renderTabs(), m.width)
	summary := padLines(m.renderSourceSummary(), m.width)
	return tabs + "\n" + summary
}

func (m *Model) renderSourceSummary() string {
	worker := m.cfg.Worker
	if worker == "" {
		worker = "none"
	}
	source := m.cfg.Source
	if source == "" {
		source = "-"
	}
	summary := fmt.Sprintf("Worker: %s  Source: %s  Encoding: %s  Events: %d  Dropped: %d  Pause > %s min  Window: %d",
		worker, source, m.table.Encoding(), m.table.Len(), m.table.Dropped(),
		strconv.FormatFloat(m.cfg.Compute.PauseThreshold.Minutes(), 'f', -1, 64), m.cfg.CurveWindow)
	summary = truncateLine(summary, m.width)
	return headerStyle.Render(summary)
}

func (m *Model) renderHelp() string {
	return headerStyle.Render("Nav: left/right  Scroll: up/down/pgup/pgdn  Worker: w  Window: -/=  Settings: /  Quit: q")
}

func (m *Model) renderFilterHelp() string {
	return headerStyle.Render("tab/shift+tab: next field  enter: apply  esc: cancel")
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return m.renderFilterHelp()
	}
	if m.errMsg != "" {
		return m.renderHelp() + "\n" + errorStyle.Render(m.errMsg)
	}
	return m.renderHelp()
}

func (m *Model) renderFilterForm() string {
	lines := []string{"Settings (enter to apply, esc to cancel)"}
	for _, input := range m.filterInputs {
		lines = append(lines, input.View())
	}
	if m.filterError != "" {
		lines = append(lines, errorStyle.Render(m.filterError))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderBody(height int) string {
	if m.filterMode {
		return fitLines(m.renderFilterForm(), m.width, height)
	}
	if m.activeTab == tabEvents {
		if m.bundle.TotalCount == 0 {
			return fitLines(noEventsMessage(m.cfg.Worker), m.width, height)
		}
		return fitLines(tableMutedStyle.Render(m.eventTable.View()), m.width, height)
	}
	return fitLines(m.viewports[m.activeTab].View(), m.width, height)
}

// refreshBundle loads the selected worker's metrics from the memo or computes them.
func (m *Model) refreshBundle() {
	bundle, ok := m.bundles[m.cfg.Worker]
	if !ok {
		start := time.Now()
		bundle = stats.Compute(m.table, m.cfg.Worker, m.cfg.Compute)
		m.bundles[m.cfg.Worker] = bundle
		slog.Debug("computed worker metrics", "worker", m.cfg.Worker, "events", bundle.TotalCount, "elapsed", time.Since(start))
	}
	m.bundle = bundle
	m.errMsg = ""
	if m.cfg.Worker != "" && bundle.TotalCount == 0 {
		m.errMsg = fmt.Sprintf("worker %q not found", m.cfg.Worker)
	}
	m.eventTable.SetRows(eventRows(bundle))
	m.eventTable.GotoTop()
	m.renderTabContents()
}

func (m *Model) renderTabContents() {
	if len(m.viewports) == 0 {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.viewports[tabOverview].SetContent(renderOverview(m.bundle, width))
	m.viewports[tabGaps].SetContent(renderGaps(m.bundle, m.cfg, width))
	m.viewports[tabPauses].SetContent(renderPauses(m.bundle))
}

func noEventsMessage(worker string) string {
	if worker == "" {
		return "No events found."
	}
	return fmt.Sprintf("No events found for %s.", worker)
}

func renderOverview(bundle model.MetricsBundle, width int) string {
	if bundle.TotalCount == 0 {
		return noEventsMessage(bundle.WorkerID)
	}
	cards := renderSummaryCards(bundle, width)
	var buf bytes.Buffer
	if err := stats.RenderHistogram(&buf, bundle); err != nil {
		return fmt.Sprintf("Failed to render histogram: %v", err)
	}
	span := headerStyle.Render(fmt.Sprintf("From %s to %s",
		bundle.FirstAt.Format(stats.TimestampLayout), bundle.LastAt.Format(stats.TimestampLayout)))
	return strings.TrimRight(cards+"\n"+span+"\n\n"+buf.String(), "\n")
}

func renderSummaryCards(bundle model.MetricsBundle, width int) string {
	cards := []string{
		metricCard("Events", fmt.Sprintf("%d", bundle.TotalCount)),
		metricCard("Active (min)", fmt.Sprintf("%.1f", bundle.ActiveMinutes)),
		metricCard("Avg / event (min)", fmt.Sprintf("%.1f", bundle.AvgMinutesPerEvent)),
		metricCard("Pauses", fmt.Sprintf("%d", len(bundle.Pauses))),
		metricCard("Median gap (min)", fmt.Sprintf("%.1f", bundle.MedianGapMinutes)),
	}
	if width < 80 {
		return strings.Join(cards, "\n")
	}
	row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1], cards[2])
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3], cards[4])
	return lipgloss.JoinVertical(lipgloss.Left, row1, row2)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func renderGaps(bundle model.MetricsBundle, cfg Config, width int) string {
	if bundle.TotalCount < 2 {
		if bundle.TotalCount == 0 {
			return noEventsMessage(bundle.WorkerID)
		}
		return "A single event has no gaps."
	}
	var buf bytes.Buffer
	opts := stats.ReportOptions{
		PauseThreshold: cfg.Compute.PauseThreshold,
		CurveWindow:    cfg.CurveWindow,
		Width:          width,
		Height:         plotHeight,
		ForceColor:     true,
	}
	if err := stats.RenderGapCurve(&buf, bundle, opts); err != nil {
		return fmt.Sprintf("Failed to render gaps: %v", err)
	}
	spark := headerStyle.Render("Trend: " + stats.Sparkline(bundle.GapsMinutes))
	return strings.TrimRight(buf.String()+spark, "\n")
}

func renderPauses(bundle model.MetricsBundle) string {
	if bundle.TotalCount == 0 {
		return noEventsMessage(bundle.WorkerID)
	}
	var buf bytes.Buffer
	if err := stats.RenderPauseTable(&buf, bundle); err != nil {
		return fmt.Sprintf("Failed to render pauses: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func eventColumns() []table.Column {
	return []table.Column{
		{Title: "Row", Width: 6},
		{Title: "Recorded at", Width: 20},
		{Title: "Gap (min)", Width: 10},
		{Title: "Pause", Width: 6},
	}
}

func eventRows(bundle model.MetricsBundle) []table.Row {
	cells := stats.EventRows(bundle)
	rows := make([]table.Row, 0, len(cells))
	for _, c := range cells {
		rows = append(rows, table.Row(c))
	}
	return rows
}

func (m *Model) setEventTableSize(width, height int) {
	viewportHeight := maxInt(1, height-1)
	if m.eventLayout.width == width && m.eventLayout.height == viewportHeight {
		return
	}
	m.eventLayout.width = width
	m.eventLayout.height = viewportHeight
	m.eventTable.SetWidth(width)
	m.eventTable.SetHeight(viewportHeight)
	viewportHeight = m.adjustEventTableHeight(height)
	if m.eventLayout.height != viewportHeight {
		m.eventLayout.height = viewportHeight
		m.eventTable.SetHeight(viewportHeight)
	}
}

func eventTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

// adjustEventTableHeight compensates for the header border so the rendered
// table fills exactly bodyHeight lines.
func (m *Model) adjustEventTableHeight(bodyHeight int) int {
	target := maxInt(1, bodyHeight)
	height := m.eventTable.Height()
	viewHeight := lipgloss.Height(m.eventTable.View())
	if viewHeight == target {
		return height
	}
	height += target - viewHeight
	if height < 1 {
		height = 1
	}
	m.eventTable.SetHeight(height)
	viewHeight = lipgloss.Height(m.eventTable.View())
	if viewHeight == target {
		return height
	}
	height += target - viewHeight
	if height < 1 {
		height = 1
	}
	return height
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterError = ""
	m.setInputsFromConfig()
	return m, m.setFilterIndex(0)
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.filterError = ""
		return m, nil
	case tea.KeyEnter:
		if err := m.applyFilter(); err != nil {
			m.filterError = err.Error()
			return m, nil
		}
		m.filterMode = false
		m.filterError = ""
		m.refreshBundle()
		m.updateLayout()
		return m, nil
	case tea.KeyTab:
		return m, m.setFilterIndex(m.filterIndex + 1)
	case tea.KeyShiftTab:
		return m, m.setFilterIndex(m.filterIndex - 1)
	}
	var cmd tea.Cmd
	m.filterInputs[m.filterIndex], cmd = m.filterInputs[m.filterIndex].Update(msg)
	return m, cmd
}

func (m *Model) setFilterIndex(idx int) tea.Cmd {
	count := len(m.filterInputs)
	if count == 0 {
		return nil
	}
	if idx < 0 {
		idx = count - 1
	}
	if idx >= count {
		idx = 0
	}
	m.filterIndex = idx
	var cmd tea.Cmd
	for i := range m.filterInputs {
		if i == m.filterIndex {
			cmd = m.filterInputs[i].Focus()
		} else {
			m.filterInputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) applyFilter() error {
	pauseInput := strings.TrimSpace(m.filterInputs[0].Value())
	threshold := m.cfg.Compute.PauseThreshold
	if pauseInput != "" {
		minutes, err := strconv.ParseFloat(pauseInput, 64)
		if err != nil {
			return fmt.Errorf("invalid pause minutes (use a number)")
		}
		threshold, err = config.PauseThreshold(minutes)
		if err != nil {
			return fmt.Errorf("invalid pause minutes (use a number > 0)")
		}
	}

	windowInput := strings.TrimSpace(m.filterInputs[1].Value())
	window := m.cfg.CurveWindow
	if windowInput != "" {
		parsed, err := strconv.Atoi(windowInput)
		if err != nil {
			return fmt.Errorf("invalid curve window (use integer)")
		}
		if parsed < 1 {
			return fmt.Errorf("invalid curve window (use integer >= 1)")
		}
		window = parsed
	}

	if threshold != m.cfg.Compute.PauseThreshold {
		m.cfg.Compute.PauseThreshold = threshold
		m.bundles = map[string]model.MetricsBundle{}
	}
	m.cfg.CurveWindow = window
	return nil
}

func workerCounts(t model.EventTable) []model.WorkerCount {
	counts := stats.TopWorkersByCount(t, 0)
	byWorker := make(map[string]int, len(counts))
	for _, c := range counts {
		byWorker[c.WorkerID] = c.Count
	}
	workers := t.Workers()
	out := make([]model.WorkerCount, 0, len(workers))
	for _, w := range workers {
		out = append(out, model.WorkerCount{WorkerID: w, Count: byWorker[w]})
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func nextCurveWindow(n int) int {
	if n < 5 {
		return 5
	}
	if n%5 == 0 {
		return n + 5
	}
	return ((n / 5) + 1) * 5
}

func prevCurveWindow(n int) int {
	if n <= 5 {
		return 1
	}
	if n%5 == 0 {
		return n - 5
	}
	return (n / 5) * 5
}

func modalWidth(width int) int {
	return maxInt(40, minInt(width-4, 80))
}

func modalInnerWidth(width int) int {
	w := modalWidth(width)
	w -= 6 // 2 border + 4 padding
	if w < 10 {
		return 10
	}
	return w
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}

package statsui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/indexpace/internal/model"
)

const pickerVisibleRows = 10

// picker is the worker selection modal: a filter input over the worker list.
type picker struct {
	active  bool
	input   textinput.Model
	workers []model.WorkerCount
	matches []model.WorkerCount
	cursor  int
}

func newPicker(workers []model.WorkerCount) picker {
	input := newFilterInput("Filter: ")
	input.Placeholder = "worker name"
	p := picker{input: input, workers: workers}
	p.filter()
	return p
}

func (p *picker) open(current string) tea.Cmd {
	p.active = true
	p.input.SetValue("")
	p.filter()
	for i, w := range p.matches {
		if w.WorkerID == current {
			p.cursor = i
		}
	}
	return p.input.Focus()
}

func (p *picker) close() {
	p.active = false
	p.input.Blur()
}

// filter keeps workers whose name contains the input, ignoring case.
func (p *picker) filter() {
	needle := strings.ToLower(strings.TrimSpace(p.input.Value()))
	p.matches = p.matches[:0]
	for _, w := range p.workers {
		if needle == "" || strings.Contains(strings.ToLower(w.WorkerID), needle) {
			p.matches = append(p.matches, w)
		}
	}
	p.cursor = clampCursor(p.cursor, len(p.matches))
}

func (p *picker) move(delta int) {
	p.cursor = clampCursor(p.cursor+delta, len(p.matches))
}

func (p *picker) selected() (string, bool) {
	if len(p.matches) == 0 {
		return "", false
	}
	return p.matches[p.cursor].WorkerID, true
}

func clampCursor(c, n int) int {
	if n == 0 || c < 0 {
		return 0
	}
	if c >= n {
		return n - 1
	}
	return c
}

func (m *Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.picker.close()
		return m, nil
	case tea.KeyEnter:
		if worker, ok := m.picker.selected(); ok {
			m.picker.close()
			m.SelectWorker(worker)
			return m, tea.ClearScreen
		}
		return m, nil
	case tea.KeyUp, tea.KeyShiftTab:
		m.picker.move(-1)
		return m, nil
	case tea.KeyDown, tea.KeyTab:
		m.picker.move(1)
		return m, nil
	}
	var cmd tea.Cmd
	m.picker.input, cmd = m.picker.input.Update(msg)
	m.picker.filter()
	return m, cmd
}

func (m *Model) renderPickerModal() string {
	body := []string{
		cardValueStyle.Render("Select Worker"),
		m.picker.input.View(),
		"",
	}
	if len(m.picker.matches) == 0 {
		body = append(body, headerStyle.Render("No matching workers."))
	}
	start := 0
	if m.picker.cursor >= pickerVisibleRows {
		start = m.picker.cursor - pickerVisibleRows + 1
	}
	end := minInt(len(m.picker.matches), start+pickerVisibleRows)
	for i := start; i < end; i++ {
		w := m.picker.matches[i]
		line := fmt.Sprintf("  %s (%d)", w.WorkerID, w.Count)
		if i == m.picker.cursor {
			line = pickerCursorStyle.Render(fmt.Sprintf("> %s (%d)", w.WorkerID, w.Count))
		}
		body = append(body, line)
	}
	body = append(body, "", headerStyle.Render("up/down: move  enter: select  esc: cancel"))
	box := modalStyle.Width(modalWidth(m.width)).Render(strings.Join(body, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

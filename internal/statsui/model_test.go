package statsui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/indexpace/internal/model"
	"github.com/verte-zerg/indexpace/internal/stats"
)

func at(h, m int) time.Time {
	return time.Date(2024, time.March, 5, h, m, 0, 0, time.UTC)
}

func sampleTable() model.EventTable {
	return model.NewEventTable([]model.Event{
		{WorkerID: "Bruno", RecordedAt: at(9, 10), Row: 1},
		{WorkerID: "Ana", RecordedAt: at(9, 0), Row: 2},
		{WorkerID: "Ana", RecordedAt: at(9, 30), Row: 3},
		{WorkerID: "Ana", RecordedAt: at(11, 0), Row: 4},
	}, []string{"Indexador", "Data Cadastro"}, "ISO-8859-1", 2)
}

func sized(m *Model) *Model {
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func TestNewModelSelectsFirstWorker(t *testing.T) {
	m := sized(NewModel(sampleTable(), Config{Source: "export.csv"}))
	if m.Worker() != "Bruno" {
		t.Fatalf("expected first worker in order of appearance, got %q", m.Worker())
	}
	view := m.View()
	if !containsAll(view, []string{"Overview", "Worker: Bruno", "Encoding: ISO-8859-1", "Dropped: 2"}) {
		t.Fatalf("header missing expected segments:\n%s", view)
	}
}

func TestSelectWorkerUsesMemo(t *testing.T) {
	m := NewModel(sampleTable(), Config{Worker: "Ana"})
	if m.Bundle().TotalCount != 3 || len(m.Bundle().Pauses) != 1 {
		t.Fatalf("unexpected bundle: %+v", m.Bundle())
	}
	m.SelectWorker("Bruno")
	m.SelectWorker("Ana")
	if len(m.bundles) != 2 {
		t.Fatalf("expected 2 memoized bundles, got %d", len(m.bundles))
	}
	if m.Bundle().ActiveMinutes != 30 {
		t.Fatalf("unexpected active minutes: %v", m.Bundle().ActiveMinutes)
	}
}

func TestUnknownWorkerShowsError(t *testing.T) {
	m := sized(NewModel(sampleTable(), Config{Worker: "ana"}))
	if m.Bundle().TotalCount != 0 {
		t.Fatalf("worker matching is case-sensitive")
	}
	if !strings.Contains(m.View(), `worker "ana" not found`) {
		t.Fatalf("expected not found message:\n%s", m.View())
	}
}

func TestPickerFiltersAndSelects(t *testing.T) {
	m := sized(NewModel(sampleTable(), Config{}))
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("w")})
	if !m.picker.active {
		t.Fatalf("expected picker to open")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("an")})
	if len(m.picker.matches) != 1 || m.picker.matches[0].WorkerID != "Ana" {
		t.Fatalf("unexpected matches: %+v", m.picker.matches)
	}
	if !strings.Contains(m.View(), "Ana (3)") {
		t.Fatalf("expected worker with count in modal:\n%s", m.View())
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.picker.active || m.Worker() != "Ana" {
		t.Fatalf("expected Ana selected, got %q (active=%v)", m.Worker(), m.picker.active)
	}
}

func TestSettingsChangeThreshold(t *testing.T) {
	m := sized(NewModel(sampleTable(), Config{Worker: "Ana"}))
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	if !m.filterMode {
		t.Fatalf("expected settings form")
	}
	m.filterInputs[0].SetValue("120")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.filterMode {
		t.Fatalf("settings form should close: %s", m.filterError)
	}
	if m.cfg.Compute.PauseThreshold != 2*time.Hour {
		t.Fatalf("unexpected threshold: %v", m.cfg.Compute.PauseThreshold)
	}
	if len(m.Bundle().Pauses) != 0 || m.Bundle().ActiveMinutes != 120 {
		t.Fatalf("bundle not recomputed: %+v", m.Bundle())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	m.filterInputs[0].SetValue("0")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !m.filterMode || m.filterError == "" {
		t.Fatalf("expected validation error for zero threshold")
	}
}

func TestTabsRender(t *testing.T) {
	m := sized(NewModel(sampleTable(), Config{Worker: "Ana", Compute: stats.DefaultComputeOptions()}))
	want := map[int]string{
		tabOverview: "Events per Hour",
		tabGaps:     "Time between Events",
		tabPauses:   "Pauses Detected",
		tabEvents:   "Recorded at",
	}
	for i := 0; i < len(m.tabs); i++ {
		if !strings.Contains(m.View(), want[m.activeTab]) {
			t.Fatalf("tab %d missing %q:\n%s", m.activeTab, want[m.activeTab], m.View())
		}
		m.Update(tea.KeyMsg{Type: tea.KeyRight})
	}
	if m.activeTab != tabOverview {
		t.Fatalf("expected tabs to wrap around")
	}
}

func TestCurveWindowSteps(t *testing.T) {
	if nextCurveWindow(1) != 5 || nextCurveWindow(5) != 10 || nextCurveWindow(7) != 10 {
		t.Fatalf("unexpected next window")
	}
	if prevCurveWindow(5) != 1 || prevCurveWindow(10) != 5 || prevCurveWindow(7) != 5 {
		t.Fatalf("unexpected prev window")
	}
}

func containsAll(haystack string, needles []string) bool {
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

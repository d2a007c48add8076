package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/verte-zerg/indexpace/internal/generator"
	"github.com/verte-zerg/indexpace/internal/logging"
	"github.com/verte-zerg/indexpace/internal/model"
)

func writeSample(t *testing.T, legacy bool) string {
	t.Helper()
	opts := generator.DefaultOptions()
	opts.Events = 60
	events := generator.New(11).Generate(opts)
	exportOpts := generator.DefaultExportOptions()
	exportOpts.Windows1252 = legacy

	var buf bytes.Buffer
	if err := generator.WriteExport(&buf, events, exportOpts); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	path := filepath.Join(t.TempDir(), "export.csv")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReportCommand(t *testing.T) {
	path := writeSample(t, true)
	out, err := runCLI(t, "report", path, "--worker", "José Araújo", "--width", "60", "--log-level", "error")
	if err != nil {
		t.Fatalf("report: %v\n%s", err, out)
	}
	for _, want := range []string{"Metrics for José Araújo", "Events per Hour", "Time between Events (min)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestReportUnknownWorker(t *testing.T) {
	path := writeSample(t, false)
	_, err := runCLI(t, "report", path, "--worker", "Nobody", "--log-level", "error")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestReportMissingColumn(t *testing.T) {
	path := writeSample(t, false)
	_, err := runCLI(t, "report", path, "--timestamp-column", "Registered", "--log-level", "error")
	if err == nil || !strings.Contains(err.Error(), "Data Cadastro") {
		t.Fatalf("expected schema error listing found columns, got %v", err)
	}
}

func TestImportAndHistory(t *testing.T) {
	path := writeSample(t, false)
	db := filepath.Join(t.TempDir(), "history.db")

	out, err := runCLI(t, "import", path, "--db", db, "--log-level", "error")
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		t.Fatalf("expected upload id")
	}

	out, err = runCLI(t, "history", "--db", db, "--log-level", "error")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "export.csv") {
		t.Fatalf("history missing upload:\n%s", out)
	}

	out, err = runCLI(t, "workers", "--upload", id, "--db", db, "--log-level", "error")
	if err != nil {
		t.Fatalf("workers: %v", err)
	}
	if !strings.Contains(out, "Events") {
		t.Fatalf("unexpected workers output:\n%s", out)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	if _, err := runCLI(t, "history", "--log-level", "loud"); err == nil {
		t.Fatalf("expected log level error")
	}
}

func TestResolveWorker(t *testing.T) {
	table := model.NewEventTable([]model.Event{{WorkerID: "b"}, {WorkerID: "a"}}, nil, "UTF-8", 0)
	if got, err := resolveWorker(table, ""); err != nil || got != "b" {
		t.Fatalf("expected first worker, got %q %v", got, err)
	}
	if _, err := resolveWorker(table, "A"); err == nil {
		t.Fatalf("expected case-sensitive miss")
	}
	if _, err := resolveWorker(model.EventTable{}, ""); err == nil {
		t.Fatalf("expected error for empty table")
	}
}

func TestSplitWorkers(t *testing.T) {
	got := splitWorkers(" Ana, ,Bruno ,")
	if len(got) != 2 || got[0] != "Ana" || got[1] != "Bruno" {
		t.Fatalf("unexpected workers: %v", got)
	}
}

func TestImportKeysOnIngestOptions(t *testing.T) {
	path := writeSample(t, false)
	db := filepath.Join(t.TempDir(), "history.db")

	first, err := runCLI(t, "import", path, "--db", db, "--log-level", "error")
	if err != nil {
		t.Fatalf("import: %v\n%s", err, first)
	}
	again, err := runCLI(t, "import", path, "--db", db, "--log-level", "error")
	if err != nil {
		t.Fatalf("re-import: %v\n%s", err, again)
	}
	if strings.TrimSpace(again) != strings.TrimSpace(first) {
		t.Fatalf("identical import should reuse %q, got %q", first, again)
	}

	other, err := runCLI(t, "import", path, "--db", db, "--worker-column", "Tipo", "--log-level", "error")
	if err != nil {
		t.Fatalf("import with other worker column: %v\n%s", err, other)
	}
	if strings.TrimSpace(other) == strings.TrimSpace(first) {
		t.Fatalf("import with another worker column returned the cached upload %q", first)
	}

	out, err := runCLI(t, "workers", "--upload", strings.TrimSpace(other), "--db", db, "--log-level", "error")
	if err != nil {
		t.Fatalf("workers: %v", err)
	}
	if !strings.Contains(out, "Escritura") {
		t.Fatalf("expected document types as workers:\n%s", out)
	}
}

func TestQuietLogsRestoresLevel(t *testing.T) {
	prev := logging.Level()
	t.Cleanup(func() { logging.SetLevel(prev) })

	logging.SetLevel(slog.LevelDebug)
	restore := quietLogs()
	if logging.Level() != slog.LevelError {
		t.Fatalf("expected error level while quiet, got %v", logging.Level())
	}
	restore()
	if logging.Level() != slog.LevelDebug {
		t.Fatalf("expected debug level after restore, got %v", logging.Level())
	}
}

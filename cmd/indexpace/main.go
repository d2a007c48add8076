// Package main provides the CLI entrypoint for indexpace.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/indexpace/internal/config"
	"github.com/verte-zerg/indexpace/internal/ingest"
	"github.com/verte-zerg/indexpace/internal/logging"
	"github.com/verte-zerg/indexpace/internal/model"
	"github.com/verte-zerg/indexpace/internal/stats"
	"github.com/verte-zerg/indexpace/internal/statsui"
	"github.com/verte-zerg/indexpace/internal/store"
)

var (
	fileCfg config.FileConfig

	logLevel string
	dbPath   string

	ingestWorkerColumn    string
	ingestTimestampColumn string
	ingestDelimiter       string
	ingestSkipRows        int
	ingestSampleSize      int
	ingestMinConfidence   int

	metricsPauseMinutes float64
	metricsCurveWindow  int

	dashboardWorker string
	dashboardUpload string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "indexpace [export.csv]",
		Short:             "Indexer productivity metrics from registration exports",
		Args:              cobra.MaximumNArgs(1),
		SilenceUsage:      true,
		SilenceErrors:     false,
		PersistentPreRunE: setup,
		RunE:              runDashboardCmd,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&dbPath, "db", "", "history database path (default: XDG data dir)")
	flags.StringVar(&ingestWorkerColumn, "worker-column", ingest.DefaultWorkerColumn, "column holding the worker name")
	flags.StringVar(&ingestTimestampColumn, "timestamp-column", ingest.DefaultTimestampColumn, "column holding the registration time")
	flags.StringVar(&ingestDelimiter, "delimiter", string(ingest.DefaultDelimiter), "field delimiter (use \\t for tab)")
	flags.IntVar(&ingestSkipRows, "skip-rows", ingest.DefaultSkipRows, "banner lines before the header row")
	flags.IntVar(&ingestSampleSize, "sample-size", ingest.DefaultSampleSize, "bytes sampled for charset detection")
	flags.IntVar(&ingestMinConfidence, "min-confidence", ingest.DefaultMinConfidence, "minimum charset detection confidence (0-100)")
	flags.Float64Var(&metricsPauseMinutes, "pause-minutes", stats.DefaultPauseThreshold.Minutes(), "gaps longer than this are pauses")
	flags.IntVar(&metricsCurveWindow, "curve-window", stats.DefaultReportOptions().CurveWindow, "moving average window of the gap chart")

	rootCmd.Flags().StringVar(&dashboardWorker, "worker", "", "worker to select (default: first in file)")
	rootCmd.Flags().StringVar(&dashboardUpload, "upload", "", "stored upload id instead of a file")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newWorkersCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newSampleCmd())

	return rootCmd
}

// setup loads the config file and installs the logger before any command runs.
func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlag(cmd, "worker-column", &cfg.Ingest.WorkerColumn, ingestWorkerColumn)
	applyFlag(cmd, "timestamp-column", &cfg.Ingest.TimestampColumn, ingestTimestampColumn)
	applyFlag(cmd, "delimiter", &cfg.Ingest.Delimiter, ingestDelimiter)
	applyFlag(cmd, "skip-rows", &cfg.Ingest.SkipRows, ingestSkipRows)
	applyFlag(cmd, "sample-size", &cfg.Ingest.SampleSize, ingestSampleSize)
	applyFlag(cmd, "min-confidence", &cfg.Ingest.MinConfidence, ingestMinConfidence)
	applyFlag(cmd, "pause-minutes", &cfg.Metrics.PauseMinutes, metricsPauseMinutes)
	applyFlag(cmd, "curve-window", &cfg.Metrics.CurveWindow, metricsCurveWindow)
	applyFlag(cmd, "log-level", &cfg.Log.Level, logLevel)
	fileCfg = cfg

	level := "info"
	if cfg.Log.Level != nil {
		level = *cfg.Log.Level
	}
	parsed, err := logging.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logging.Init(os.Stderr, parsed)
	return nil
}

// applyFlag overrides a config value with the flag value when the flag was set.
func applyFlag[T any](cmd *cobra.Command, name string, target **T, value T) {
	if !cmd.Flags().Changed(name) {
		return
	}
	*target = &value
}

func curveWindow() (int, error) {
	if fileCfg.Metrics.CurveWindow == nil {
		return stats.DefaultReportOptions().CurveWindow, nil
	}
	window := *fileCfg.Metrics.CurveWindow
	if window < 1 {
		return 0, fmt.Errorf("--curve-window must be >= 1")
	}
	return window, nil
}

func resolveDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return config.DefaultDBPath()
}

func openStore() (*store.Store, error) {
	st, err := store.Open(resolveDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if cerr := st.Close(); cerr != nil {
		logErrf("failed to close db: %v\n", cerr)
	}
}

// loadTable reads the event table from the file in args or from a stored upload.
// The returned source names it for headers and logs.
func loadTable(ctx context.Context, args []string, uploadID string) (model.EventTable, string, error) {
	if uploadID != "" {
		if len(args) > 0 {
			return model.EventTable{}, "", fmt.Errorf("pass either a file or --upload, not both")
		}
		st, err := openStore()
		if err != nil {
			return model.EventTable{}, "", err
		}
		defer closeStore(st)
		upload, err := st.GetUpload(ctx, uploadID)
		if err != nil {
			return model.EventTable{}, "", fmt.Errorf("failed to load upload: %w", err)
		}
		table, err := st.LoadTable(ctx, uploadID)
		if err != nil {
			return model.EventTable{}, "", fmt.Errorf("failed to load upload: %w", err)
		}
		slog.Debug("loaded stored upload", "id", upload.ID, "events", table.Len())
		return table, upload.Name, nil
	}
	if len(args) == 0 {
		return model.EventTable{}, "", fmt.Errorf("an export file or --upload is required")
	}
	path := args[0]
	table, _, err := ingestFile(path)
	if err != nil {
		return model.EventTable{}, "", err
	}
	return table, filepath.Base(path), nil
}

// ingestFile reads and ingests path, returning the table and its cache key.
// Encoding and schema errors are returned unwrapped so their message reaches the user verbatim.
func ingestFile(path string) (model.EventTable, string, error) {
	opts, err := fileCfg.ToIngestOptions()
	if err != nil {
		return model.EventTable{}, "", err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.EventTable{}, "", fmt.Errorf("failed to read export: %w", err)
	}
	table, err := ingest.Ingest(raw, opts)
	if err != nil {
		return model.EventTable{}, "", err
	}
	slog.Info("ingested export",
		"file", filepath.Base(path),
		"encoding", table.Encoding(),
		"events", table.Len(),
		"dropped", table.Dropped(),
		"workers", len(table.Workers()),
	)
	if table.Dropped() > 0 {
		slog.Warn("rows without a worker or a valid timestamp were skipped", "dropped", table.Dropped())
	}
	return table, ingest.ContentHash(raw, opts), nil
}

func runDashboardCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && dashboardUpload == "" {
		return cmd.Help()
	}
	table, source, err := loadTable(cmd.Context(), args, dashboardUpload)
	if err != nil {
		return err
	}
	computeOpts, err := fileCfg.ToComputeOptions()
	if err != nil {
		return err
	}
	window, err := curveWindow()
	if err != nil {
		return err
	}

	ui := statsui.NewModel(table, statsui.Config{
		Source:      source,
		Worker:      dashboardWorker,
		Compute:     computeOpts,
		CurveWindow: window,
	})
	restore := quietLogs()
	defer restore()
	program := tea.NewProgram(ui, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run dashboard: %w", err)
	}
	return nil
}

// quietLogs raises the log level to error while the dashboard owns the
// terminal, since stderr records would draw over the alternate screen.
func quietLogs() (restore func()) {
	prev := logging.Level()
	logging.SetLevel(max(prev, slog.LevelError))
	return func() {
		logging.SetLevel(prev)
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# indexpace configuration
# Uncomment a value to enable it. CLI flags override config values.

[ingest]
# worker-column = %q       # Column holding the worker name
# timestamp-column = %q    # Column holding the registration time
# delimiter = %q           # Field delimiter, "\\t" for tab
# skip-rows = %d           # Banner lines before the header row
# sample-size = %d         # Bytes sampled for charset detection
# min-confidence = %d      # Minimum charset detection confidence (0-100)

[metrics]
# pause-minutes = %.0f     # Gaps longer than this are pauses
# curve-window = %d        # Moving average window of the gap chart

[log]
# level = "info"           # debug, info, warn or error
`,
		ingest.DefaultWorkerColumn,
		ingest.DefaultTimestampColumn,
		string(ingest.DefaultDelimiter),
		ingest.DefaultSkipRows,
		ingest.DefaultSampleSize,
		ingest.DefaultMinConfidence,
		stats.DefaultPauseThreshold.Minutes(),
		stats.DefaultReportOptions().CurveWindow,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

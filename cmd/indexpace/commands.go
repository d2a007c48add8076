package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/indexpace/internal/export"
	"github.com/verte-zerg/indexpace/internal/generator"
	"github.com/verte-zerg/indexpace/internal/model"
	"github.com/verte-zerg/indexpace/internal/stats"
)

var (
	reportWorker string
	reportAll    bool
	reportEvents bool
	reportUpload string
	reportWidth  int
	reportColor  bool

	workersUpload string
	workersTop    int

	exportWorker string
	exportOut    string
	exportUpload string

	historyDelete string

	sampleOut     string
	sampleEvents  int
	sampleSeed    int64
	sampleWorkers string
	sampleNames   string
	sampleLegacy  bool
	sampleStart   string
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [export.csv]",
		Short: "Print the metrics report of a worker",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReportCmd,
	}
	cmd.Flags().StringVar(&reportWorker, "worker", "", "worker to report (default: first in file)")
	cmd.Flags().BoolVar(&reportAll, "all", false, "report every worker")
	cmd.Flags().BoolVar(&reportEvents, "events", false, "include the full event table")
	cmd.Flags().StringVar(&reportUpload, "upload", "", "stored upload id instead of a file")
	cmd.Flags().IntVar(&reportWidth, "width", 0, "chart width in columns (default: terminal width)")
	cmd.Flags().BoolVar(&reportColor, "color", false, "force colored charts")
	return cmd
}

func runReportCmd(cmd *cobra.Command, args []string) error {
	table, _, err := loadTable(cmd.Context(), args, reportUpload)
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
	if reportAll && reportWorker != "" {
		return fmt.Errorf("--all and --worker are mutually exclusive")
	}

	opts := stats.DefaultReportOptions()
	opts.PauseThreshold = computeOpts.PauseThreshold
	opts.CurveWindow = window
	opts.Width = reportWidth
	opts.ShowEvents = reportEvents
	opts.ForceColor = reportColor

	var bundles []model.MetricsBundle
	switch {
	case reportAll:
		bundles = stats.ComputeAll(table, computeOpts)
	default:
		worker, err := resolveWorker(table, reportWorker)
		if err != nil {
			return err
		}
		bundles = []model.MetricsBundle{stats.Compute(table, worker, computeOpts)}
	}

	out := bufio.NewWriter(cmd.OutOrStdout())
	if table.Dropped() > 0 {
		if _, err := fmt.Fprintf(out, "Skipped %d malformed rows.\n\n", table.Dropped()); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	for i, bundle := range bundles {
		if i > 0 {
			if _, err := fmt.Fprintln(out); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
		if err := stats.RenderReport(out, bundle, opts); err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// resolveWorker defaults to the first worker of the table. A requested worker
// absent from the table is reported with the available names.
func resolveWorker(table model.EventTable, worker string) (string, error) {
	workers := table.Workers()
	if worker == "" {
		if len(workers) == 0 {
			return "", fmt.Errorf("no events found")
		}
		return workers[0], nil
	}
	for _, w := range workers {
		if w == worker {
			return worker, nil
		}
	}
	return "", fmt.Errorf("worker %q not found (available: %s)", worker, strings.Join(workers, ", "))
}

func newWorkersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers [export.csv]",
		Short: "List workers with their event counts",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWorkersCmd,
	}
	cmd.Flags().StringVar(&workersUpload, "upload", "", "stored upload id instead of a file")
	cmd.Flags().IntVar(&workersTop, "top", 0, "limit to the N busiest workers")
	return cmd
}

func runWorkersCmd(cmd *cobra.Command, args []string) error {
	if workersTop < 0 {
		return fmt.Errorf("--top must be >= 0")
	}
	table, _, err := loadTable(cmd.Context(), args, workersUpload)
	if err != nil {
		return err
	}
	if err := stats.RenderWorkerTable(cmd.OutOrStdout(), stats.TopWorkersByCount(table, workersTop)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [export.csv]",
		Short: "Write a worker's metrics to .xlsx or .csv",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExportCmd,
	}
	cmd.Flags().StringVar(&exportWorker, "worker", "", "worker to export (default: first in file)")
	cmd.Flags().StringVarP(&exportOut, "out", "o", "", "output path ending in .xlsx or .csv")
	cmd.Flags().StringVar(&exportUpload, "upload", "", "stored upload id instead of a file")
	return cmd
}

func runExportCmd(cmd *cobra.Command, args []string) error {
	if exportOut == "" {
		return fmt.Errorf("--out is required")
	}
	ext := strings.ToLower(filepath.Ext(exportOut))
	if ext != ".xlsx" && ext != ".csv" {
		return fmt.Errorf("--out must end in .xlsx or .csv")
	}
	table, _, err := loadTable(cmd.Context(), args, exportUpload)
	if err != nil {
		return err
	}
	computeOpts, err := fileCfg.ToComputeOptions()
	if err != nil {
		return err
	}
	worker, err := resolveWorker(table, exportWorker)
	if err != nil {
		return err
	}
	bundle := stats.Compute(table, worker, computeOpts)

	if ext == ".xlsx" {
		if err := export.WriteXLSX(exportOut, bundle); err != nil {
			return err
		}
	} else if err := writeCSVFile(exportOut, bundle); err != nil {
		return err
	}
	logErrf("Wrote %s\n", exportOut)
	return nil
}

func writeCSVFile(path string, bundle model.MetricsBundle) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := export.WriteCSV(f, bundle); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <export.csv>",
		Short: "Store an export in the history database",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportCmd,
	}
}

func runImportCmd(cmd *cobra.Command, args []string) error {
	table, hash, err := ingestFile(args[0])
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	if existing, ok, err := st.FindUploadByHash(ctx, hash); err != nil {
		return fmt.Errorf("failed to query history: %w", err)
	} else if ok {
		logErrf("Already imported as %s (%s)\n", existing.ID, existing.Name)
		_, err := fmt.Fprintln(cmd.OutOrStdout(), existing.ID)
		return err
	}
	upload, err := st.SaveUpload(ctx, filepath.Base(args[0]), hash, table)
	if err != nil {
		return fmt.Errorf("failed to store upload: %w", err)
	}
	if _, err := fmt.Fprintln(cmd.OutOrStdout(), upload.ID); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored uploads",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyDelete, "delete", "", "remove the upload with this id")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	if historyDelete != "" {
		if err := st.DeleteUpload(ctx, historyDelete); err != nil {
			return fmt.Errorf("failed to delete upload: %w", err)
		}
		logErrf("Deleted %s\n", historyDelete)
		return nil
	}
	uploads, err := st.ListUploads(ctx)
	if err != nil {
		return fmt.Errorf("failed to list uploads: %w", err)
	}
	if err := stats.RenderUploadTable(cmd.OutOrStdout(), uploads); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newSampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a synthetic registration export",
		Args:  cobra.NoArgs,
		RunE:  runSampleCmd,
	}
	defaults := generator.DefaultOptions()
	cmd.Flags().StringVarP(&sampleOut, "out", "o", "", "output path (default: stdout)")
	cmd.Flags().IntVar(&sampleEvents, "events", defaults.Events, "number of events")
	cmd.Flags().Int64Var(&sampleSeed, "seed", 0, "random seed (default: time based)")
	cmd.Flags().StringVar(&sampleWorkers, "workers", strings.Join(defaults.Workers, ","), "comma separated worker names")
	cmd.Flags().StringVar(&sampleNames, "names-file", "", "file with one worker name per line (overrides --workers)")
	cmd.Flags().BoolVar(&sampleLegacy, "legacy", false, "encode as Windows-1252 like legacy exports")
	cmd.Flags().StringVar(&sampleStart, "start", defaults.Start.Format("02/01/2006 15:04"), "first event time (DD/MM/YYYY HH:MM)")
	return cmd
}

func runSampleCmd(cmd *cobra.Command, _ []string) error {
	if sampleEvents <= 0 {
		return fmt.Errorf("--events must be > 0")
	}
	start, err := time.ParseInLocation("02/01/2006 15:04", sampleStart, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid --start value: %w", err)
	}
	opts := generator.DefaultOptions()
	opts.Events = sampleEvents
	opts.Start = start
	opts.Workers = splitWorkers(sampleWorkers)
	if sampleNames != "" {
		names, err := generator.LoadNames(sampleNames, generator.DefaultExportOptions().Delimiter)
		if err != nil {
			return fmt.Errorf("failed to load names: %w", err)
		}
		opts.Workers = names
	}
	events := generator.New(sampleSeed).Generate(opts)

	exportOpts := generator.DefaultExportOptions()
	exportOpts.Windows1252 = sampleLegacy

	if sampleOut == "" {
		if f, ok := cmd.OutOrStdout().(*os.File); ok && term.IsTerminal(int(f.Fd())) && sampleLegacy {
			return fmt.Errorf("refusing to write Windows-1252 output to a terminal; use --out")
		}
		return generator.WriteExport(cmd.OutOrStdout(), events, exportOpts)
	}
	f, err := os.Create(sampleOut)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", sampleOut, err)
	}
	writer := bufio.NewWriter(f)
	if err := generator.WriteExport(writer, events, exportOpts); err != nil {
		_ = f.Close()
		return err
	}
	if err := writer.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush %s: %w", sampleOut, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", sampleOut, err)
	}
	logErrf("Wrote %d events to %s\n", len(events), sampleOut)
	return nil
}

func splitWorkers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

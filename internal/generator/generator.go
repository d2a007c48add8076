// Package generator builds synthetic registration exports for demos and tests.
package generator

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/verte-zerg/indexpace/internal/ingest"
	"github.com/verte-zerg/indexpace/internal/model"
)

// DefaultWorkers are the names used when Options.Workers is empty.
var DefaultWorkers = []string{"Ana Souza", "José Araújo", "Lúcia Gonçalves", "Márcio Inácio"}

var documentTypes = []string{"Escritura", "Procuração", "Certidão", "Averbação", "Matrícula"}

// Options shapes the generated events.
type Options struct {
	Workers []string
	// Weights biases how many events each worker gets; missing entries count as 1.
	Weights []float64
	Events  int
	Start   time.Time
	// MeanGap is the average distance between consecutive events of one worker.
	MeanGap time.Duration
	// PauseProb is the chance that a gap is replaced by a long pause.
	PauseProb float64
	MaxPause  time.Duration
}

// DefaultOptions returns options for one working day of four workers.
func DefaultOptions() Options {
	return Options{
		Workers:   DefaultWorkers,
		Events:    200,
		Start:     time.Date(2024, time.March, 5, 8, 0, 0, 0, time.UTC),
		MeanGap:   6 * time.Minute,
		PauseProb: 0.04,
		MaxPause:  150 * time.Minute,
	}
}

// Generator produces randomized events.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator with a fixed seed, or a time-based one when seed is 0.
func New(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate distributes opts.Events events across workers and returns them
// in chronological order with 1-based rows.
func (g *Generator) Generate(opts Options) []model.Event {
	workers := opts.Workers
	if len(workers) == 0 {
		workers = DefaultWorkers
	}
	if opts.Events <= 0 {
		return nil
	}
	meanGap := opts.MeanGap
	if meanGap <= 0 {
		meanGap = DefaultOptions().MeanGap
	}

	weights := make([]float64, len(workers))
	total := 0.0
	for i := range workers {
		w := 1.0
		if i < len(opts.Weights) && opts.Weights[i] > 0 {
			w = opts.Weights[i]
		}
		weights[i] = w
		total += w
	}

	clocks := make([]time.Time, len(workers))
	for i := range clocks {
		clocks[i] = opts.Start.Add(time.Duration(g.rnd.Intn(30)) * time.Minute)
	}

	events := make([]model.Event, 0, opts.Events)
	for i := 0; i < opts.Events; i++ {
		idx := g.pick(weights, total)
		events = append(events, model.Event{WorkerID: workers[idx], RecordedAt: clocks[idx]})
		clocks[idx] = clocks[idx].Add(g.gap(meanGap, opts))
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].RecordedAt.Before(events[j].RecordedAt)
	})
	for i := range events {
		events[i].Row = i + 1
	}
	return events
}

func (g *Generator) pick(weights []float64, total float64) int {
	r := g.rnd.Float64() * total
	acc := 0.0
	for j, w := range weights {
		acc += w
		if r <= acc {
			return j
		}
	}
	return len(weights) - 1
}

func (g *Generator) gap(mean time.Duration, opts Options) time.Duration {
	if opts.PauseProb > 0 && g.rnd.Float64() < opts.PauseProb {
		lo := 61 * time.Minute
		hi := max(opts.MaxPause, lo+time.Minute)
		return lo + time.Duration(g.rnd.Int63n(int64(hi-lo)))
	}
	d := time.Duration(g.rnd.ExpFloat64() * float64(mean))
	return (d / time.Second) * time.Second
}

// ExportOptions controls the written file.
type ExportOptions struct {
	Banner    string
	Delimiter rune
	// Windows1252 encodes the output the way legacy exports are produced.
	Windows1252 bool
}

// DefaultExportOptions returns the layout of a standard registration export.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Banner:    "Relatório de produção - indexação",
		Delimiter: ';',
	}
}

// WriteExport writes a banner line, a header row and one row per event with
// day-first timestamps.
func WriteExport(w io.Writer, events []model.Event, opts ExportOptions) error {
	if !opts.Windows1252 {
		return writeRows(w, events, opts)
	}
	enc := transform.NewWriter(w, charmap.Windows1252.NewEncoder())
	if err := writeRows(enc, events, opts); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

func writeRows(w io.Writer, events []model.Event, opts ExportOptions) error {
	if opts.Delimiter == 0 {
		opts.Delimiter = ';'
	}
	if _, err := fmt.Fprintf(w, "%s\r\n", opts.Banner); err != nil {
		return fmt.Errorf("failed to write banner: %w", err)
	}
	cw := csv.NewWriter(w)
	cw.Comma = opts.Delimiter
	cw.UseCRLF = true
	if err := cw.Write([]string{"Protocolo", ingest.DefaultWorkerColumn, ingest.DefaultTimestampColumn, "Tipo"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, ev := range events {
		record := []string{
			fmt.Sprintf("%06d", 100000+ev.Row),
			ev.WorkerID,
			ev.RecordedAt.Format("02/01/2006 15:04:05"),
			documentTypes[i%len(documentTypes)],
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", ev.Row, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush export: %w", err)
	}
	return nil
}

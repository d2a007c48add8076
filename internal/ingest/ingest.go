// Package ingest turns raw export bytes into a validated event table.
package ingest

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/text/transform"

	"github.com/verte-zerg/indexpace/internal/model"
)

// Defaults match the exports produced by the registration system.
const (
	DefaultWorkerColumn    = "Indexador"
	DefaultTimestampColumn = "Data Cadastro"
	DefaultDelimiter       = ';'
	DefaultSkipRows        = 1
	DefaultSampleSize      = 100_000
	DefaultMinConfidence   = 10
)

// Options controls how an export is read.
type Options struct {
	WorkerColumn    string
	TimestampColumn string
	Delimiter       rune
	// SkipRows is the number of banner lines before the header row.
	SkipRows int
	// SampleSize is how many leading bytes feed charset detection.
	SampleSize    int
	MinConfidence int
}

// DefaultOptions returns the options for a standard export.
func DefaultOptions() Options {
	return Options{
		WorkerColumn:    DefaultWorkerColumn,
		TimestampColumn: DefaultTimestampColumn,
		Delimiter:       DefaultDelimiter,
		SkipRows:        DefaultSkipRows,
		SampleSize:      DefaultSampleSize,
		MinConfidence:   DefaultMinConfidence,
	}
}

// Validate checks option values.
func (o Options) Validate() error {
	if strings.TrimSpace(o.WorkerColumn) == "" {
		return fmt.Errorf("worker column must not be empty")
	}
	if strings.TrimSpace(o.TimestampColumn) == "" {
		return fmt.Errorf("timestamp column must not be empty")
	}
	if o.WorkerColumn == o.TimestampColumn {
		return fmt.Errorf("worker and timestamp columns must differ")
	}
	if o.Delimiter == 0 || o.Delimiter == '"' || o.Delimiter == '\r' || o.Delimiter == '\n' {
		return fmt.Errorf("invalid delimiter %q", o.Delimiter)
	}
	if o.SkipRows < 0 {
		return fmt.Errorf("skip rows must be >= 0")
	}
	if o.SampleSize <= 0 {
		return fmt.Errorf("sample size must be > 0")
	}
	if o.MinConfidence < 0 || o.MinConfidence > 100 {
		return fmt.Errorf("min confidence must be between 0 and 100")
	}
	return nil
}

// Ingest detects the encoding of raw, skips the banner, validates the
// header and parses every data row into an event. Rows with an empty
// worker or an unparseable timestamp are dropped and counted.
func Ingest(raw []byte, opts Options) (model.EventTable, error) {
	if err := opts.Validate(); err != nil {
		return model.EventTable{}, err
	}
	detected, err := DetectEncoding(raw, opts.SampleSize, opts.MinConfidence)
	if err != nil {
		return model.EventTable{}, err
	}

	slog.Debug("detected encoding", "charset", detected.Charset, "confidence", detected.Confidence)

	text := bufio.NewReader(transform.NewReader(bytes.NewReader(raw), detected.Encoding.NewDecoder()))
	for i := 0; i < opts.SkipRows; i++ {
		if _, err := text.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return model.EventTable{}, fmt.Errorf("failed to read banner: %w", err)
		}
	}

	required := []string{opts.WorkerColumn, opts.TimestampColumn}
	headerLine, err := nextLine(text)
	for err == nil && strings.TrimSpace(headerLine) == "" {
		headerLine, err = nextLine(text)
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.EventTable{}, &SchemaError{Missing: required}
		}
		return model.EventTable{}, fmt.Errorf("failed to read header: %w", err)
	}
	header, err := splitRecord(headerLine, opts.Delimiter)
	if err != nil {
		return model.EventTable{}, &SchemaError{Missing: required}
	}
	columns := normalizeHeader(header)
	workerIdx, tsIdx := indexOf(columns, opts.WorkerColumn), indexOf(columns, opts.TimestampColumn)
	if workerIdx < 0 || tsIdx < 0 {
		var missing []string
		if workerIdx < 0 {
			missing = append(missing, opts.WorkerColumn)
		}
		if tsIdx < 0 {
			missing = append(missing, opts.TimestampColumn)
		}
		return model.EventTable{}, &SchemaError{Missing: missing, Found: columns}
	}

	// Each physical line is its own record, so a stray quote cannot swallow
	// the rows after it.
	var events []model.Event
	dropped := 0
	row := 0
	for {
		line, err := nextLine(text)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.EventTable{}, fmt.Errorf("failed to read row %d: %w", row+1, err)
		}
		if line == "" {
			continue
		}
		row++
		record, err := splitRecord(line, opts.Delimiter)
		if err != nil {
			dropped++
			continue
		}
		ev, ok := parseEvent(record, workerIdx, tsIdx)
		if !ok {
			dropped++
			continue
		}
		ev.Row = row
		events = append(events, ev)
	}

	if dropped > 0 {
		slog.Debug("dropped malformed rows", "dropped", dropped, "kept", len(events))
	}
	return model.NewEventTable(events, columns, detected.Charset, dropped), nil
}

// ContentHash returns the hex SHA-256 of raw together with the options that
// shape the resulting table. It keys the upload cache, so the same bytes read
// with other columns or another delimiter are stored separately.
func ContentHash(raw []byte, opts Options) string {
	h := sha256.New()
	fmt.Fprintf(h, "%q\x00%q\x00%q\x00%d\x00%d\x00%d\x00",
		opts.WorkerColumn, opts.TimestampColumn, opts.Delimiter,
		opts.SkipRows, opts.SampleSize, opts.MinConfidence)
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}

// nextLine returns the next physical line without its terminator. io.EOF is
// returned only once no bytes are left.
func nextLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func splitRecord(line string, delimiter rune) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	record, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to split record: %w", err)
	}
	return record, nil
}

func parseEvent(record []string, workerIdx, tsIdx int) (model.Event, bool) {
	if workerIdx >= len(record) || tsIdx >= len(record) {
		return model.Event{}, false
	}
	worker := strings.TrimSpace(record[workerIdx])
	if worker == "" {
		return model.Event{}, false
	}
	recordedAt, err := ParseTimestamp(record[tsIdx])
	if err != nil {
		return model.Event{}, false
	}
	return model.Event{WorkerID: worker, RecordedAt: recordedAt}, true
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, name := range header {
		out[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}
	return out
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}

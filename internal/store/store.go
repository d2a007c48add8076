// Package store handles SQLite persistence of ingested uploads.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/indexpace/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when an upload id is unknown.
var ErrNotFound = errors.New("upload not found")

const (
	columnSeparator = "\x1f"
	// Fixed-width so stored timestamps sort lexically.
	timeLayout      = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store wraps SQLite access for upload history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS uploads (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			hash TEXT NOT NULL UNIQUE,
			encoding TEXT NOT NULL,
			columns TEXT NOT NULL,
			events INTEGER NOT NULL,
			dropped INTEGER NOT NULL,
			imported_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS upload_events (
			upload_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			row INTEGER NOT NULL,
			worker_id TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (upload_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_imported_at ON uploads(imported_at);`,
		`CREATE INDEX IF NOT EXISTS idx_upload_events_worker ON upload_events(upload_id, worker_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveUpload stores table under a new id. Saving content whose hash is
// already stored returns the existing upload unchanged.
func (s *Store) SaveUpload(ctx context.Context, name, hash string, table model.EventTable) (model.Upload, error) {
	if existing, ok, err := s.FindUploadByHash(ctx, hash); err != nil {
		return model.Upload{}, err
	} else if ok {
		return existing, nil
	}

	upload := model.Upload{
		ID:         uuid.NewString(),
		Name:       name,
		Hash:       hash,
		Encoding:   table.Encoding(),
		Columns:    table.Columns(),
		Events:     table.Len(),
		Dropped:    table.Dropped(),
		ImportedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Upload{}, err
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			// Best-effort rollback.
			_ = rerr
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO uploads (id, name, hash, encoding, columns, events, dropped, imported_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		upload.ID,
		upload.Name,
		upload.Hash,
		upload.Encoding,
		strings.Join(upload.Columns, columnSeparator),
		upload.Events,
		upload.Dropped,
		upload.ImportedAt.Format(timeLayout),
	)
	if err != nil {
		return model.Upload{}, fmt.Errorf("failed to insert upload: %w", err)
	}

	if events := table.Events(); len(events) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO upload_events (upload_id, seq, row, worker_id, recorded_at)
			 VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return model.Upload{}, err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for i, ev := range events {
			if _, err := stmt.ExecContext(ctx, upload.ID, i, ev.Row, ev.WorkerID, ev.RecordedAt.Format(timeLayout)); err != nil {
				return model.Upload{}, fmt.Errorf("failed to insert event %d: %w", i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Upload{}, err
	}
	return upload, nil
}

// FindUploadByHash looks up an upload by content hash.
func (s *Store) FindUploadByHash(ctx context.Context, hash string) (model.Upload, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE hash = ?`, hash)
	upload, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Upload{}, false, nil
	}
	if err != nil {
		return model.Upload{}, false, err
	}
	return upload, true, nil
}

// GetUpload returns the upload with the given id.
func (s *Store) GetUpload(ctx context.Context, id string) (model.Upload, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id)
	upload, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Upload{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return upload, err
}

// ListUploads returns every stored upload, newest first.
func (s *Store) ListUploads(ctx context.Context) ([]model.Upload, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+uploadColumns+` FROM uploads ORDER BY imported_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var uploads []model.Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return uploads, nil
}

// LoadTable rebuilds the event table of a stored upload in its original row order.
func (s *Store) LoadTable(ctx context.Context, id string) (model.EventTable, error) {
	upload, err := s.GetUpload(ctx, id)
	if err != nil {
		return model.EventTable{}, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT row, worker_id, recorded_at FROM upload_events WHERE upload_id = ? ORDER BY seq ASC`, id)
	if err != nil {
		return model.EventTable{}, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	events := make([]model.Event, 0, upload.Events)
	for rows.Next() {
		var ev model.Event
		var recordedAt string
		if err := rows.Scan(&ev.Row, &ev.WorkerID, &recordedAt); err != nil {
			return model.EventTable{}, err
		}
		parsed, err := time.Parse(timeLayout, recordedAt)
		if err != nil {
			return model.EventTable{}, err
		}
		ev.RecordedAt = parsed
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return model.EventTable{}, err
	}
	return model.NewEventTable(events, upload.Columns, upload.Encoding, upload.Dropped), nil
}

// DeleteUpload removes an upload and its events.
func (s *Store) DeleteUpload(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			// Best-effort rollback.
			_ = rerr
		}
	}()
	res, err := tx.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM upload_events WHERE upload_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

const uploadColumns = `id, name, hash, encoding, columns, events, dropped, imported_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(sc scanner) (model.Upload, error) {
	var upload model.Upload
	var columns, importedAt string
	if err := sc.Scan(&upload.ID, &upload.Name, &upload.Hash, &upload.Encoding, &columns, &upload.Events, &upload.Dropped, &importedAt); err != nil {
		return model.Upload{}, err
	}
	if columns != "" {
		upload.Columns = strings.Split(columns, columnSeparator)
	}
	parsed, err := time.Parse(timeLayout, importedAt)
	if err != nil {
		return model.Upload{}, err
	}
	upload.ImportedAt = parsed
	return upload, nil
}

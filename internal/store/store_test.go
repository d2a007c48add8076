package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/indexpace/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "nested", "indexpace.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func sampleTable() model.EventTable {
	base := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	return model.NewEventTable([]model.Event{
		{WorkerID: "José Araújo", RecordedAt: base.Add(30 * time.Minute), Row: 1},
		{WorkerID: "Ana", RecordedAt: base, Row: 2},
		{WorkerID: "José Araújo", RecordedAt: base.Add(2 * time.Hour), Row: 4},
	}, []string{"Protocolo", "Indexador", "Data Cadastro"}, "ISO-8859-1", 1)
}

func TestSaveAndLoadUpload(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	upload, err := st.SaveUpload(ctx, "export.csv", "abc", sampleTable())
	if err != nil {
		t.Fatalf("save upload: %v", err)
	}
	if upload.ID == "" || upload.Events != 3 || upload.Dropped != 1 {
		t.Fatalf("unexpected upload: %+v", upload)
	}

	loaded, err := st.LoadTable(ctx, upload.ID)
	if err != nil {
		t.Fatalf("load table: %v", err)
	}
	if loaded.Encoding() != "ISO-8859-1" || loaded.Dropped() != 1 {
		t.Fatalf("unexpected table metadata: %s %d", loaded.Encoding(), loaded.Dropped())
	}
	if got := loaded.Columns(); len(got) != 3 || got[2] != "Data Cadastro" {
		t.Fatalf("unexpected columns: %v", got)
	}
	want := sampleTable().Events()
	got := loaded.Events()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].WorkerID != want[i].WorkerID || got[i].Row != want[i].Row || !got[i].RecordedAt.Equal(want[i].RecordedAt) {
			t.Fatalf("event %d differs: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestSaveUploadIsIdempotentOnHash(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	first, err := st.SaveUpload(ctx, "a.csv", "same", sampleTable())
	if err != nil {
		t.Fatalf("save upload: %v", err)
	}
	second, err := st.SaveUpload(ctx, "b.csv", "same", sampleTable())
	if err != nil {
		t.Fatalf("save upload: %v", err)
	}
	if first.ID != second.ID || second.Name != "a.csv" {
		t.Fatalf("expected the stored upload, got %+v", second)
	}

	uploads, err := st.ListUploads(ctx)
	if err != nil {
		t.Fatalf("list uploads: %v", err)
	}
	if len(uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(uploads))
	}

	found, ok, err := st.FindUploadByHash(ctx, "same")
	if err != nil || !ok || found.ID != first.ID {
		t.Fatalf("find by hash: %+v %v %v", found, ok, err)
	}
	if _, ok, err := st.FindUploadByHash(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected no match, got %v %v", ok, err)
	}
}

func TestEmptyTableRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	upload, err := st.SaveUpload(ctx, "empty.csv", "empty", model.NewEventTable(nil, []string{"Indexador", "Data Cadastro"}, "UTF-8", 0))
	if err != nil {
		t.Fatalf("save upload: %v", err)
	}
	loaded, err := st.LoadTable(ctx, upload.ID)
	if err != nil {
		t.Fatalf("load table: %v", err)
	}
	if loaded.Len() != 0 || len(loaded.Columns()) != 2 {
		t.Fatalf("unexpected table: %d events, columns %v", loaded.Len(), loaded.Columns())
	}
}

func TestDeleteUpload(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	upload, err := st.SaveUpload(ctx, "export.csv", "abc", sampleTable())
	if err != nil {
		t.Fatalf("save upload: %v", err)
	}
	if err := st.DeleteUpload(ctx, upload.ID); err != nil {
		t.Fatalf("delete upload: %v", err)
	}
	if _, err := st.LoadTable(ctx, upload.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := st.DeleteUpload(ctx, upload.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

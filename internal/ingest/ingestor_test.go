package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emothrive/emothrive/internal/retrieval"
	"github.com/emothrive/emothrive/internal/storage"
)

type fakeEmbedder struct {
	batchFn func(ctx context.Context, texts []string) ([][]float32, error)
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.batchFn != nil {
		return f.batchFn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeIndex struct {
	records    []retrieval.Record
	deleteAlls int
	insertErr  error
}

func (f *fakeIndex) Insert(records []retrieval.Record) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeIndex) DeleteAll() error {
	f.deleteAlls++
	f.records = nil
	return nil
}

func (f *fakeIndex) Count() (int, error) {
	return len(f.records), nil
}

type fakeDocStore struct {
	docs []storage.Document
}

func (f *fakeDocStore) SaveDocument(d storage.Document) error {
	f.docs = append(f.docs, d)
	return nil
}

func (f *fakeDocStore) DeleteAllDocuments() error {
	f.docs = nil
	return nil
}

func (f *fakeDocStore) ListDocuments() ([]storage.Document, error) {
	return f.docs, nil
}

// knowledgeDir creates a temp directory containing the named (fake) PDF files.
func knowledgeDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("not a real pdf"), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return dir
}

func newTestIngestor(index *fakeIndex, docs *fakeDocStore) *Ingestor {
	ing := NewIngestor(&fakeEmbedder{}, index, docs)
	ing.extract = func(path string) (string, int, error) {
		return "Grounding techniques help anchor attention in the present moment.", 1, nil
	}
	return ing
}

func TestReindex(t *testing.T) {
	dir := knowledgeDir(t, "cbt.pdf", "grief.PDF")
	index := &fakeIndex{}
	docs := &fakeDocStore{}
	ing := newTestIngestor(index, docs)

	stats, err := ing.Reindex(context.Background(), dir)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	if stats.Documents != 2 {
		t.Errorf("documents = %d, want 2 (case-insensitive .pdf match)", stats.Documents)
	}
	if stats.Chunks != 2 {
		t.Errorf("chunks = %d, want 2", stats.Chunks)
	}
	if index.deleteAlls != 1 {
		t.Errorf("DeleteAll called %d times, want 1", index.deleteAlls)
	}
	if len(docs.docs) != 2 {
		t.Errorf("saved %d document records, want 2", len(docs.docs))
	}
}

func TestReindex_ChunkIDs(t *testing.T) {
	dir := knowledgeDir(t, "cbt.pdf")
	index := &fakeIndex{}
	ing := newTestIngestor(index, &fakeDocStore{})
	ing.extract = func(path string) (string, int, error) {
		return strings.Repeat("mindful breathing calms the nervous system. ", 30), 2, nil
	}

	if _, err := ing.Reindex(context.Background(), dir); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	if len(index.records) < 2 {
		t.Fatalf("got %d records, want several", len(index.records))
	}
	for i, r := range index.records {
		wantID := "cbt.pdf#" + string(rune('0'+i))
		if i < 10 && r.ID != wantID {
			t.Errorf("record %d ID = %q, want %q", i, r.ID, wantID)
		}
		if r.SourceFile != "cbt.pdf" {
			t.Errorf("record %d SourceFile = %q", i, r.SourceFile)
		}
		if r.ChunkIndex != i {
			t.Errorf("record %d ChunkIndex = %d", i, r.ChunkIndex)
		}
	}
}

func TestReindex_MissingDir(t *testing.T) {
	ing := newTestIngestor(&fakeIndex{}, &fakeDocStore{})

	_, err := ing.Reindex(context.Background(), "/does/not/exist")
	var ingErr *IngestError
	if !errors.As(err, &ingErr) {
		t.Fatalf("error = %v, want *IngestError", err)
	}
}

func TestReindex_NoPDFs(t *testing.T) {
	dir := knowledgeDir(t, "notes.txt")
	ing := newTestIngestor(&fakeIndex{}, &fakeDocStore{})

	_, err := ing.Reindex(context.Background(), dir)
	var ingErr *IngestError
	if !errors.As(err, &ingErr) {
		t.Fatalf("error = %v, want *IngestError", err)
	}
}

func TestReindex_SkipsUnreadableFile(t *testing.T) {
	dir := knowledgeDir(t, "good.pdf", "corrupt.pdf")
	index := &fakeIndex{}
	ing := newTestIngestor(index, &fakeDocStore{})
	ing.extract = func(path string) (string, int, error) {
		if strings.Contains(path, "corrupt") {
			return "", 0, errors.New("malformed xref table")
		}
		return "some therapeutic content", 1, nil
	}

	stats, err := ing.Reindex(context.Background(), dir)
	if err != nil {
		t.Fatalf("Reindex should tolerate one bad file: %v", err)
	}
	if stats.Documents != 1 {
		t.Errorf("documents = %d, want 1", stats.Documents)
	}
}

func TestReindex_AllFilesFail(t *testing.T) {
	dir := knowledgeDir(t, "a.pdf", "b.pdf")
	ing := newTestIngestor(&fakeIndex{}, &fakeDocStore{})
	ing.extract = func(path string) (string, int, error) {
		return "", 0, errors.New("broken")
	}

	_, err := ing.Reindex(context.Background(), dir)
	var ingErr *IngestError
	if !errors.As(err, &ingErr) {
		t.Fatalf("error = %v, want *IngestError when nothing ingests", err)
	}
}

func TestReindex_EmbedFailureSkipsFile(t *testing.T) {
	dir := knowledgeDir(t, "a.pdf", "b.pdf")
	index := &fakeIndex{}
	calls := 0
	ing := NewIngestor(&fakeEmbedder{
		batchFn: func(_ context.Context, texts []string) ([][]float32, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("rate limited")
			}
			out := make([][]float32, len(texts))
			for i := range out {
				out[i] = []float32{1}
			}
			return out, nil
		},
	}, index, &fakeDocStore{})
	ing.extract = func(path string) (string, int, error) {
		return "content", 1, nil
	}

	stats, err := ing.Reindex(context.Background(), dir)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if stats.Documents != 1 {
		t.Errorf("documents = %d, want 1 after one embed failure", stats.Documents)
	}
}

func TestStats(t *testing.T) {
	dir := knowledgeDir(t, "cbt.pdf")
	index := &fakeIndex{}
	docs := &fakeDocStore{}
	ing := newTestIngestor(index, docs)

	if _, err := ing.Reindex(context.Background(), dir); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	stats, err := ing.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Documents != 1 || stats.Chunks != 1 {
		t.Errorf("stats = %+v, want 1 document / 1 chunk", stats)
	}
	if len(stats.Files) != 1 || stats.Files[0].File != "cbt.pdf" {
		t.Errorf("files = %+v", stats.Files)
	}
}

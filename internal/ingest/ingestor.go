// Package ingest turns PDF files into embedded knowledge chunks.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/emothrive/emothrive/internal/retrieval"
	"github.com/emothrive/emothrive/internal/storage"
)

// IngestError reports a failed ingestion run.
type IngestError struct {
	Dir    string
	Reason string
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingesting %s: %s", e.Dir, e.Reason)
}

// ChunkEmbedder generates embeddings for batches of text.
type ChunkEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the slice of the vector store the ingestor needs.
type VectorIndex interface {
	Insert(records []retrieval.Record) error
	DeleteAll() error
	Count() (int, error)
}

// DocumentStore persists per-file ingestion bookkeeping.
type DocumentStore interface {
	SaveDocument(d storage.Document) error
	DeleteAllDocuments() error
	ListDocuments() ([]storage.Document, error)
}

// Stats summarizes the current state of the knowledge index.
type Stats struct {
	Documents int                `json:"documents"`
	Chunks    int                `json:"chunks"`
	Files     []storage.Document `json:"files,omitempty"`
}

// Ingestor scans a directory of PDFs, chunks their text, embeds the chunks,
// and loads them into the vector index.
type Ingestor struct {
	embedder     ChunkEmbedder
	index        VectorIndex
	docs         DocumentStore
	chunkSize    int
	chunkOverlap int
	logger       *slog.Logger

	// extract is swappable so tests can avoid real PDF parsing.
	extract func(path string) (text string, pages int, err error)
}

// NewIngestor creates an Ingestor with default chunking parameters.
func NewIngestor(embedder ChunkEmbedder, index VectorIndex, docs DocumentStore) *Ingestor {
	return &Ingestor{
		embedder:     embedder,
		index:        index,
		docs:         docs,
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
		logger:       slog.Default(),
		extract:      extractPDF,
	}
}

// SetChunking overrides the chunk size and overlap. Values <= 0 keep defaults.
func (ing *Ingestor) SetChunking(size, overlap int) {
	if size > 0 {
		ing.chunkSize = size
	}
	if overlap >= 0 {
		ing.chunkOverlap = overlap
	}
}

// Reindex rebuilds the knowledge index from every PDF under dir. The previous
// index contents are dropped first. Files that cannot be parsed or embedded
// are logged and skipped; Reindex fails only when the directory is missing or
// no file could be ingested at all.
func (ing *Ingestor) Reindex(ctx context.Context, dir string) (Stats, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return Stats{}, &IngestError{Dir: dir, Reason: "knowledge directory not found"}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Stats{}, &IngestError{Dir: dir, Reason: err.Error()}
	}

	var pdfs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			pdfs = append(pdfs, entry.Name())
		}
	}
	if len(pdfs) == 0 {
		return Stats{}, &IngestError{Dir: dir, Reason: "no PDF files found"}
	}

	if err := ing.index.DeleteAll(); err != nil {
		return Stats{}, fmt.Errorf("clearing vector index: %w", err)
	}
	if err := ing.docs.DeleteAllDocuments(); err != nil {
		return Stats{}, fmt.Errorf("clearing document records: %w", err)
	}

	stats := Stats{}
	for _, name := range pdfs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		chunks, err := ing.ingestFile(ctx, dir, name)
		if err != nil {
			ing.logger.Warn("skipping file", "file", name, "error", err)
			continue
		}
		stats.Documents++
		stats.Chunks += chunks
	}

	if stats.Documents == 0 {
		return Stats{}, &IngestError{Dir: dir, Reason: "no files could be ingested"}
	}

	ing.logger.Info("reindex complete", "documents", stats.Documents, "chunks", stats.Chunks)
	return stats, nil
}

// ingestFile extracts, chunks, embeds, and indexes one PDF. Returns the
// number of chunks stored.
func (ing *Ingestor) ingestFile(ctx context.Context, dir, name string) (int, error) {
	text, pages, err := ing.extract(filepath.Join(dir, name))
	if err != nil {
		return 0, fmt.Errorf("extracting text: %w", err)
	}

	chunks := chunkText(text, ing.chunkSize, ing.chunkOverlap)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no extractable text")
	}

	vectors, err := ing.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding chunks: %w", err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = retrieval.Record{
			ID:         fmt.Sprintf("%s#%d", name, i),
			SourceFile: name,
			ChunkIndex: i,
			Text:       chunk,
			Embedding:  vectors[i],
			CreatedAt:  now,
		}
	}

	if err := ing.index.Insert(records); err != nil {
		return 0, fmt.Errorf("inserting vectors: %w", err)
	}

	doc := storage.Document{
		ID:         uuid.New().String(),
		File:       name,
		Pages:      pages,
		Chunks:     len(chunks),
		IngestedAt: now,
	}
	if err := ing.docs.SaveDocument(doc); err != nil {
		return 0, fmt.Errorf("saving document record: %w", err)
	}

	return len(chunks), nil
}

// Stats returns the current index counts without touching the filesystem.
func (ing *Ingestor) Stats() (Stats, error) {
	docs, err := ing.docs.ListDocuments()
	if err != nil {
		return Stats{}, fmt.Errorf("listing documents: %w", err)
	}
	chunks, err := ing.index.Count()
	if err != nil {
		return Stats{}, fmt.Errorf("counting vectors: %w", err)
	}
	return Stats{Documents: len(docs), Chunks: chunks, Files: docs}, nil
}

// extractPDF reads a PDF file and returns its concatenated plain text and
// page count.
func extractPDF(path string) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", 0, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", 0, err
	}

	var sb strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("page %d: %w", i, err)
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}

	return sb.String(), numPages, nil
}

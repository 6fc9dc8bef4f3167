package retrieval

import "time"

// VectorStore is the interface for knowledge vector storage and similarity
// search backends. The current implementation uses SQLite with brute-force
// cosine similarity, which is comfortable for a knowledge base of a few
// thousand chunks. An ANN-backed implementation can replace it behind this
// interface if the corpus outgrows linear scans.
type VectorStore interface {
	// Insert adds chunk records to the index.
	Insert(records []Record) error

	// Search returns the top-K records most similar to the query vector,
	// ordered by score descending.
	Search(vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteAll clears the index. Used by reindexing.
	DeleteAll() error

	// Count returns the number of indexed records.
	Count() (int, error)
}

// Record is one embedded knowledge chunk.
type Record struct {
	ID         string
	SourceFile string
	ChunkIndex int
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}

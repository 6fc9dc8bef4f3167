// Package retrieval embeds queries and searches the knowledge index for
// relevant chunks.
package retrieval

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyIndex is returned by Retrieve when the knowledge index holds no
// vectors. Callers are expected to degrade to an uncontextualized prompt
// rather than fail the turn.
var ErrEmptyIndex = errors.New("knowledge index is empty")

// Chunk is a retrieved knowledge fragment with its similarity score.
type Chunk struct {
	ID         string
	SourceFile string
	Text       string
	Score      float32
	CreatedAt  time.Time
}

// Retriever combines embedding and vector search to find relevant knowledge.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder *Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve embeds the query and returns the top-K most similar knowledge
// chunks, highest score first. Returns ErrEmptyIndex when nothing has been
// ingested yet.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Chunk, error) {
	count, err := r.store.Count()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrEmptyIndex
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := r.store.Search(vec, topK)
	if err != nil {
		return nil, err
	}

	return scoredToChunks(scored), nil
}

func scoredToChunks(scored []ScoredRecord) []Chunk {
	chunks := make([]Chunk, len(scored))
	for i, s := range scored {
		chunks[i] = Chunk{
			ID:         s.ID,
			SourceFile: s.SourceFile,
			Text:       s.Text,
			Score:      s.Score,
			CreatedAt:  s.CreatedAt,
		}
	}
	return chunks
}

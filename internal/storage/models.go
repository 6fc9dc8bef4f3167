package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document is the bookkeeping row for one ingested PDF. The chunk vectors
// themselves live in the knowledge_vectors table.
type Document struct {
	ID         string    `json:"id"`
	File       string    `json:"file"`
	Pages      int       `json:"pages"`
	Chunks     int       `json:"chunks"`
	IngestedAt time.Time `json:"ingested_at"`
}

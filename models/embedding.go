package models

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingDimensions is the output width of the embedding model in use.
// Vectors of any other length are rejected before they reach the store.
const EmbeddingDimensions = 768

// Embedding is one stored vector for a chunk. Rows are versioned by model
// and version string; exactly one row per chunk has IsActive set, and
// retrieval only ever reads active rows. Re-embedding inserts new rows and
// flips the flag instead of overwriting.
type Embedding struct {
	ID        uuid.UUID `json:"id"`
	ChunkID   uuid.UUID `json:"chunk_id"`
	Model     string    `json:"model"`
	Version   string    `json:"version"`
	Vector    []float64 `json:"-"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

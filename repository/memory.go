package repository

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"bihar-rag-backend/models"
)

// MemoryChunkStore is an in-process store with the same search semantics as
// the Postgres repository. It backs unit tests and small local corpora where
// running Postgres is not worth the setup.
type MemoryChunkStore struct {
	mu      sync.RWMutex
	chunks  []models.Chunk
	vectors map[string][]float64 // chunk ID -> active vector
}

// NewMemoryChunkStore creates an empty in-memory store
func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{vectors: make(map[string][]float64)}
}

// Add stores a chunk with its vector.
func (m *MemoryChunkStore) Add(chunk models.Chunk, vector []float64) error {
	if len(vector) != models.EmbeddingDimensions {
		return fmt.Errorf("%w: got %d", ErrDimensionMismatch, len(vector))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, chunk)
	m.vectors[chunk.ID.String()] = vector
	return nil
}

// Len returns the number of stored chunks.
func (m *MemoryChunkStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// Search ranks stored chunks by cosine similarity against the query vector,
// applying the same floor, volume filter, navigation exclusion and ID
// tie-break as the SQL path.
func (m *MemoryChunkStore) Search(ctx context.Context, p SearchParams) ([]models.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p.Vector) != models.EmbeddingDimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(p.Vector), models.EmbeddingDimensions)
	}
	if p.TopK <= 0 {
		p.TopK = 7
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Chunk
	for _, c := range m.chunks {
		if c.ContentType == models.ContentTypeNavigation {
			continue
		}
		if p.VolumeFilter != nil && c.VolumeNumber != *p.VolumeFilter {
			continue
		}
		sim := cosineSimilarity(p.Vector, m.vectors[c.ID.String()])
		if sim < p.Floor {
			continue
		}
		c.Similarity = sim
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > p.TopK {
		out = out[:p.TopK]
	}
	return out, nil
}

// SearchByReference filters stored chunks by structural coordinate.
func (m *MemoryChunkStore) SearchByReference(ctx context.Context, volume int, chapter, hadith *string) ([]models.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Chunk
	for _, c := range m.chunks {
		if c.VolumeNumber != volume || c.ContentType == models.ContentTypeNavigation {
			continue
		}
		if chapter != nil && (c.Chapter == nil || *c.Chapter != *chapter) {
			continue
		}
		if hadith != nil && (c.HadithNumber == nil || *c.HadithNumber != *hadith) {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bihar-rag-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("no chunks match the given reference")
	ErrDimensionMismatch = errors.New("query vector has wrong dimensionality")
)

// SearchParams bounds one nearest-neighbour search. Floor is the minimum
// cosine similarity a candidate must reach; VolumeFilter, when set, restricts
// candidates to a single volume before ranking.
type SearchParams struct {
	Vector       []float64
	TopK         int
	Floor        float64
	VolumeFilter *int
}

// ChunkRepository handles database operations for chunks and their
// embeddings
type ChunkRepository struct {
	db *pgxpool.Pool
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// formatVector renders a float slice as a pgvector literal
func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%g", x)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Search returns the chunks nearest to the query vector, best first, ties
// broken by chunk ID so ranking is stable. Navigation chunks and inactive
// embeddings never appear in the candidate set.
func (r *ChunkRepository) Search(ctx context.Context, p SearchParams) ([]models.Chunk, error) {
	if len(p.Vector) != models.EmbeddingDimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(p.Vector), models.EmbeddingDimensions)
	}
	if p.TopK <= 0 {
		p.TopK = 7
	}

	query := `
		SELECT c.id, c.volume_number, c.content_type, c.arabic_text, c.english_text,
		       c.full_text, c.size, c.chunk_index, c.chapter, c.hadith_number,
		       c.numbering, c.created_at,
		       1 - (e.vector <=> $1::vector) AS similarity
		FROM chunks c
		JOIN embeddings e ON e.chunk_id = c.id AND e.is_active
		WHERE c.content_type != 'navigation'
		  AND 1 - (e.vector <=> $1::vector) >= $2`

	args := []interface{}{formatVector(p.Vector), p.Floor}
	argIndex := 3
	if p.VolumeFilter != nil {
		query += fmt.Sprintf(" AND c.volume_number = $%d", argIndex)
		args = append(args, *p.VolumeFilter)
		argIndex++
	}
	query += fmt.Sprintf(" ORDER BY e.vector <=> $1::vector ASC, c.id ASC LIMIT $%d", argIndex)
	args = append(args, p.TopK)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows, true)
}

// SearchByReference returns the chunks at a structural coordinate, in
// chunk-index order. Chapter and hadith are optional narrowing filters.
func (r *ChunkRepository) SearchByReference(ctx context.Context, volume int, chapter, hadith *string) ([]models.Chunk, error) {
	query := `
		SELECT c.id, c.volume_number, c.content_type, c.arabic_text, c.english_text,
		       c.full_text, c.size, c.chunk_index, c.chapter, c.hadith_number,
		       c.numbering, c.created_at
		FROM chunks c
		WHERE c.volume_number = $1 AND c.content_type != 'navigation'`

	args := []interface{}{volume}
	argIndex := 2
	if chapter != nil {
		query += fmt.Sprintf(" AND c.chapter = $%d", argIndex)
		args = append(args, *chapter)
		argIndex++
	}
	if hadith != nil {
		query += fmt.Sprintf(" AND c.hadith_number = $%d", argIndex)
		args = append(args, *hadith)
		argIndex++
	}
	query += " ORDER BY c.chunk_index ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search by reference: %w", err)
	}
	defer rows.Close()

	chunks, err := scanChunks(rows, false)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNotFound
	}
	return chunks, nil
}

// InsertBatch stores chunks and their active embeddings in one transaction.
// A chunk whose (volume, chunk_index) slot is already occupied is skipped
// together with its vector, which makes re-runs after a crash idempotent.
// Returns how many chunks were actually inserted.
func (r *ChunkRepository) InsertBatch(ctx context.Context, chunks []models.Chunk, vectors [][]float64, model, version string) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for i, chunk := range chunks {
		if len(vectors[i]) != models.EmbeddingDimensions {
			return 0, fmt.Errorf("chunk %d: %w", chunk.ChunkIndex, ErrDimensionMismatch)
		}

		var chunkID uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO chunks (id, volume_number, content_type, arabic_text, english_text,
			                    full_text, normalized_text, size, chunk_index, chapter,
			                    hadith_number, numbering)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (volume_number, chunk_index) DO NOTHING
			RETURNING id`,
			chunk.ID, chunk.VolumeNumber, chunk.ContentType, chunk.ArabicText,
			chunk.EnglishText, chunk.FullText, chunk.NormalizedText, chunk.Size,
			chunk.ChunkIndex, chunk.Chapter, chunk.HadithNumber, chunk.Numbering,
		).Scan(&chunkID)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO embeddings (id, chunk_id, model, version, vector, is_active)
			VALUES ($1, $2, $3, $4, $5::vector, true)`,
			uuid.New(), chunkID, model, version, formatVector(vectors[i]))
		if err != nil {
			return 0, fmt.Errorf("failed to insert embedding for chunk %d: %w", chunk.ChunkIndex, err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return inserted, nil
}

// ExistingChunkIndexes returns the chunk indexes already stored for a
// volume, so an interrupted run can skip committed batches before paying
// for their embeddings again.
func (r *ChunkRepository) ExistingChunkIndexes(ctx context.Context, volume int) (map[int]bool, error) {
	rows, err := r.db.Query(ctx,
		`SELECT chunk_index FROM chunks WHERE volume_number = $1`, volume)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk indexes: %w", err)
	}
	defer rows.Close()

	out := make(map[int]bool)
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		out[idx] = true
	}
	return out, rows.Err()
}

// DeleteByVolume removes a volume's chunks; embeddings go with them via
// the foreign key cascade.
func (r *ChunkRepository) DeleteByVolume(ctx context.Context, volume int) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE volume_number = $1`, volume)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for volume %d: %w", volume, err)
	}
	return nil
}

// MissingMetadata returns chunks in a volume whose chapter or hadith number
// is still unresolved, oldest first.
func (r *ChunkRepository) MissingMetadata(ctx context.Context, volume, limit int) ([]models.Chunk, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.id, c.volume_number, c.content_type, c.arabic_text, c.english_text,
		       c.full_text, c.size, c.chunk_index, c.chapter, c.hadith_number,
		       c.numbering, c.created_at
		FROM chunks c
		WHERE c.volume_number = $1
		  AND c.content_type = 'hadith'
		  AND (c.chapter IS NULL OR c.hadith_number IS NULL)
		ORDER BY c.chunk_index ASC
		LIMIT $2`, volume, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks missing metadata: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows, false)
}

// UpdateReference rewrites one chunk's structural coordinate.
func (r *ChunkRepository) UpdateReference(ctx context.Context, id uuid.UUID, chapter, hadith *string, numbering models.NumberingState) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE chunks SET chapter = $2, hadith_number = $3, numbering = $4
		WHERE id = $1`, id, chapter, hadith, numbering)
	if err != nil {
		return fmt.Errorf("failed to update reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CollectionStats summarizes the stored corpus
type CollectionStats struct {
	TotalVolumes   int `json:"total_volumes"`
	TotalChunks    int `json:"total_chunks"`
	TotalChapters  int `json:"total_chapters"`
	HadithChunks   int `json:"hadith_chunks"`
	WithArabic     int `json:"with_arabic"`
	WithEnglish    int `json:"with_english"`
	WithReferences int `json:"with_references"`
}

// Stats aggregates corpus-wide counts in one round trip.
func (r *ChunkRepository) Stats(ctx context.Context) (*CollectionStats, error) {
	var s CollectionStats
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT volume_number),
		       COUNT(*),
		       COUNT(DISTINCT (volume_number, chapter)) FILTER (WHERE chapter IS NOT NULL),
		       COUNT(*) FILTER (WHERE content_type = 'hadith'),
		       COUNT(*) FILTER (WHERE arabic_text IS NOT NULL),
		       COUNT(*) FILTER (WHERE english_text IS NOT NULL),
		       COUNT(*) FILTER (WHERE hadith_number IS NOT NULL)
		FROM chunks`).Scan(
		&s.TotalVolumes, &s.TotalChunks, &s.TotalChapters, &s.HadithChunks,
		&s.WithArabic, &s.WithEnglish, &s.WithReferences)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	return &s, nil
}

// scanChunks drains rows into chunk models. withSimilarity must match the
// column list of the query.
func scanChunks(rows pgx.Rows, withSimilarity bool) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for rows.Next() {
		var (
			c       models.Chunk
			arabic  *string
			english *string
		)
		dest := []interface{}{
			&c.ID, &c.VolumeNumber, &c.ContentType, &arabic, &english,
			&c.FullText, &c.Size, &c.ChunkIndex, &c.Chapter, &c.HadithNumber,
			&c.Numbering, &c.CreatedAt,
		}
		if withSimilarity {
			dest = append(dest, &c.Similarity)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if arabic != nil {
			c.ArabicText = *arabic
		}
		if english != nil {
			c.EnglishText = *english
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

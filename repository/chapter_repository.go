package repository

import (
	"context"
	"fmt"

	"bihar-rag-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChapterRepository handles database operations for chapters
type ChapterRepository struct {
	db *pgxpool.Pool
}

// NewChapterRepository creates a new chapter repository
func NewChapterRepository(db *pgxpool.Pool) *ChapterRepository {
	return &ChapterRepository{db: db}
}

// UpsertCounts records the hadith counts discovered for a volume's chapters.
// Counts replace previous values because ingestion reprocesses whole volumes.
func (r *ChapterRepository) UpsertCounts(ctx context.Context, volume int, counts map[string]int) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for chapterNo, count := range counts {
		_, err := tx.Exec(ctx, `
			INSERT INTO chapters (id, volume_number, chapter_no, hadith_count)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (volume_number, chapter_no) DO UPDATE SET
				hadith_count = EXCLUDED.hadith_count,
				updated_at = NOW()`,
			uuid.New(), volume, chapterNo, count)
		if err != nil {
			return fmt.Errorf("failed to upsert chapter %s: %w", chapterNo, err)
		}
	}
	return tx.Commit(ctx)
}

// ListByVolume returns a volume's chapters ordered by chapter number.
func (r *ChapterRepository) ListByVolume(ctx context.Context, volume int) ([]*models.Chapter, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, volume_number, chapter_no, COALESCE(name, ''), hadith_count,
		       created_at, updated_at
		FROM chapters
		WHERE volume_number = $1
		ORDER BY length(chapter_no), chapter_no`, volume)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []*models.Chapter
	for rows.Next() {
		var c models.Chapter
		if err := rows.Scan(&c.ID, &c.VolumeNumber, &c.ChapterNo, &c.Name,
			&c.HadithCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chapter: %w", err)
		}
		chapters = append(chapters, &c)
	}
	return chapters, rows.Err()
}

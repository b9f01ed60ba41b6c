package repository

import (
	"context"
	"errors"
	"fmt"

	"bihar-rag-backend/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrVolumeNotFound = errors.New("volume not found")

// VolumeRepository handles database operations for volumes
type VolumeRepository struct {
	db *pgxpool.Pool
}

// NewVolumeRepository creates a new volume repository
func NewVolumeRepository(db *pgxpool.Pool) *VolumeRepository {
	return &VolumeRepository{db: db}
}

// Upsert creates or refreshes a volume row keyed by volume number. An empty
// name or source file never clobbers a stored one.
func (r *VolumeRepository) Upsert(ctx context.Context, v *models.Volume) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO volumes (id, number, name, status, source_file)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (number) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), volumes.name),
			source_file = COALESCE(NULLIF(EXCLUDED.source_file, ''), volumes.source_file),
			updated_at = NOW()
		RETURNING id, status, created_at, updated_at`,
		v.ID, v.Number, v.Name, v.Status, v.SourceFile,
	).Scan(&v.ID, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert volume %d: %w", v.Number, err)
	}
	return nil
}

// GetByNumber fetches one volume.
func (r *VolumeRepository) GetByNumber(ctx context.Context, number int) (*models.Volume, error) {
	var v models.Volume
	err := r.db.QueryRow(ctx, `
		SELECT id, number, name, status, quality_score, total_chunks,
		       source_file, error_message, created_at, updated_at
		FROM volumes WHERE number = $1`, number,
	).Scan(&v.ID, &v.Number, &v.Name, &v.Status, &v.QualityScore, &v.TotalChunks,
		&v.SourceFile, &v.ErrorMessage, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVolumeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get volume %d: %w", number, err)
	}
	return &v, nil
}

// List returns all volumes ordered by number.
func (r *VolumeRepository) List(ctx context.Context) ([]*models.Volume, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, number, name, status, quality_score, total_chunks,
		       source_file, error_message, created_at, updated_at
		FROM volumes ORDER BY number ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}
	defer rows.Close()

	var volumes []*models.Volume
	for rows.Next() {
		var v models.Volume
		if err := rows.Scan(&v.ID, &v.Number, &v.Name, &v.Status, &v.QualityScore,
			&v.TotalChunks, &v.SourceFile, &v.ErrorMessage, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan volume: %w", err)
		}
		volumes = append(volumes, &v)
	}
	return volumes, rows.Err()
}

// UpdateStatus moves a volume through its processing lifecycle. The error
// message is cleared whenever the status is not an error status.
func (r *VolumeRepository) UpdateStatus(ctx context.Context, number int, status models.VolumeStatus, errMsg *string) error {
	if status != models.VolumeStatusError {
		errMsg = nil
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE volumes SET status = $2, error_message = $3, updated_at = NOW()
		WHERE number = $1`, number, status, errMsg)
	if err != nil {
		return fmt.Errorf("failed to update volume %d status: %w", number, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVolumeNotFound
	}
	return nil
}

// Complete marks a volume processed and records its outcome.
func (r *VolumeRepository) Complete(ctx context.Context, number, totalChunks int, quality float64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE volumes SET status = $2, total_chunks = $3, quality_score = $4,
		       error_message = NULL, updated_at = NOW()
		WHERE number = $1`, number, models.VolumeStatusCompleted, totalChunks, quality)
	if err != nil {
		return fmt.Errorf("failed to complete volume %d: %w", number, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVolumeNotFound
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Chapter records one chapter (bab) discovered during ingestion of a volume.
// ChapterNo is kept as text because some prints use compound numbering
// ("Chapter 3b") that does not survive a round trip through an integer.
type Chapter struct {
	ID           uuid.UUID `json:"id"`
	VolumeNumber int       `json:"volume_number"`
	ChapterNo    string    `json:"chapter_no"`
	Name         string    `json:"name"`
	HadithCount  int       `json:"hadith_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

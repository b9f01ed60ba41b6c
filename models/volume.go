package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VolumeStatus represents the processing lifecycle of a volume
type VolumeStatus string

const (
	VolumeStatusPending    VolumeStatus = "pending"
	VolumeStatusProcessing VolumeStatus = "processing"
	VolumeStatusCompleted  VolumeStatus = "completed"
	VolumeStatusError      VolumeStatus = "error"
)

// Bihar ul Anwar spans 110 volumes in the standard print edition
const (
	MinVolumeNumber = 1
	MaxVolumeNumber = 110
)

// Volume represents one volume of the collection and its ingestion state
type Volume struct {
	ID           uuid.UUID    `json:"id"`
	Number       int          `json:"number"`
	Name         string       `json:"name"`
	Status       VolumeStatus `json:"status"`
	QualityScore float64      `json:"quality_score"`
	TotalChunks  int          `json:"total_chunks"`
	SourceFile   string       `json:"source_file"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// DisplayName returns the volume name, falling back to "Volume N"
func (v *Volume) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	return fmt.Sprintf("Volume %d", v.Number)
}

// ValidVolumeNumber reports whether n falls inside the collection's bounds
func ValidVolumeNumber(n int) bool {
	return n >= MinVolumeNumber && n <= MaxVolumeNumber
}

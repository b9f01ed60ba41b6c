package models

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// ContentType classifies what a chunk contains
type ContentType string

const (
	ContentTypeHadith        ContentType = "hadith"
	ContentTypeVerse         ContentType = "verse"
	ContentTypeCommentary    ContentType = "commentary"
	ContentTypeChapterHeader ContentType = "chapter_header"
	ContentTypeNavigation    ContentType = "navigation"
)

// Chunk is the unit of storage and retrieval: a windowed slice of a volume's
// text together with the reference coordinate inferred for it during
// ingestion. Similarity is populated on the query path only and is never
// persisted.
type Chunk struct {
	ID             uuid.UUID      `json:"id"`
	VolumeNumber   int            `json:"volume_number"`
	ContentType    ContentType    `json:"content_type"`
	ArabicText     string         `json:"arabic_text,omitempty"`
	EnglishText    string         `json:"english_text,omitempty"`
	FullText       string         `json:"full_text"`
	NormalizedText string         `json:"-"`
	Size           int            `json:"size"`
	ChunkIndex     int            `json:"chunk_index"`
	Chapter        *string        `json:"chapter,omitempty"`
	HadithNumber   *string        `json:"hadith_number,omitempty"`
	Numbering      NumberingState `json:"numbering"`
	Similarity     float64        `json:"similarity,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Reference returns the chunk's structural coordinate
func (c *Chunk) Reference() Reference {
	return Reference{
		Volume:       c.VolumeNumber,
		Chapter:      c.Chapter,
		HadithNumber: c.HadithNumber,
		Numbering:    c.Numbering,
	}
}

// IsBilingual reports whether the chunk carries text in both channels
func (c *Chunk) IsBilingual() bool {
	return c.ArabicText != "" && c.EnglishText != ""
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// NormalizeText lowercases, strips punctuation and collapses whitespace.
// The result backs keyword matching; embeddings are computed on FullText.
func NormalizeText(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(b.String(), " "))
}

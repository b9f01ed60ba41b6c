package ingest

import (
	"fmt"
	"strings"

	"bihar-rag-backend/models"

	"github.com/google/uuid"
)

// Config carries the tunables of one ingestion run.
type Config struct {
	Chunker ChunkerConfig
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{Chunker: DefaultChunkerConfig()}
}

// Stats summarizes what one document produced. ChapterHadithCounts maps
// chapter number to the count of distinct hadith boundaries seen in it.
type Stats struct {
	Pages               int            `json:"pages"`
	ContentLines        int            `json:"content_lines"`
	NavigationLines     int            `json:"navigation_lines"`
	Chunks              int            `json:"chunks"`
	BilingualChunks     int            `json:"bilingual_chunks"`
	ResolvedChunks      int            `json:"resolved_chunks"`
	ChapterHadithCounts map[string]int `json:"chapter_hadith_counts"`
	QualityScore        float64        `json:"quality_score"`
}

// ProcessDocument runs the full ingestion pipeline on one volume's raw
// document bytes and returns the chunks ready for embedding. The output is
// deterministic for a given input apart from the generated chunk IDs: same
// boundaries, same text, same references on every run.
func ProcessDocument(data []byte, volumeNumber int, cfg Config) ([]models.Chunk, *Stats, error) {
	if !models.ValidVolumeNumber(volumeNumber) {
		return nil, nil, fmt.Errorf("volume number %d outside 1..%d", volumeNumber, models.MaxVolumeNumber)
	}

	pages, err := ExtractPages(data)
	if err != nil {
		return nil, nil, fmt.Errorf("extracting volume %d: %w", volumeNumber, err)
	}

	stats := &Stats{
		Pages:               len(pages),
		ChapterHadithCounts: make(map[string]int),
	}

	filter := NewStructuralFilter(pages)
	var content []Line
	for _, line := range Flatten(pages) {
		tag, _ := filter.Classify(line.Text)
		if tag == TagNavigation {
			stats.NavigationLines++
			continue
		}
		stats.ContentLines++
		content = append(content, line)
	}

	segments := InferReferences(content)
	countHadiths(segments, stats)

	var chunks []models.Chunk
	index := 0
	for _, seg := range segments {
		for _, full := range segmentPieces(&seg, cfg.Chunker) {
			arabic, english := splitPiece(full)
			chunk := models.Chunk{
				ID:             uuid.New(),
				VolumeNumber:   volumeNumber,
				ContentType:    seg.ContentType,
				ArabicText:     arabic,
				EnglishText:    english,
				FullText:       full,
				NormalizedText: models.NormalizeText(full),
				Size:           len([]rune(full)),
				ChunkIndex:     index,
				Chapter:        seg.Chapter,
				HadithNumber:   seg.HadithNumber,
				Numbering:      seg.Numbering,
			}
			chunks = append(chunks, chunk)
			index++

			stats.Chunks++
			if chunk.IsBilingual() {
				stats.BilingualChunks++
			}
			if chunk.Numbering == models.NumberingResolved {
				stats.ResolvedChunks++
			}
		}
	}

	stats.QualityScore = qualityScore(stats)
	return chunks, stats, nil
}

// segmentPieces windows one segment's joined text. Headings are never
// split, and windows never cross a segment, so no chunk spans two chapters
// or mixes two hadiths' coordinates.
func segmentPieces(seg *Segment, cfg ChunkerConfig) []string {
	if seg.Heading {
		return []string{seg.Text()}
	}
	return SplitText(seg.Text(), cfg)
}

// splitPiece routes the lines of a windowed piece into language channels.
func splitPiece(piece string) (arabic, english string) {
	var lines []Line
	for _, l := range strings.Split(piece, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, Line{Text: l})
	}
	return SplitChannels(lines)
}

func countHadiths(segments []Segment, stats *Stats) {
	type key struct{ chapter, hadith string }
	seen := make(map[key]bool)
	for i, seg := range segments {
		if seg.ContentType != models.ContentTypeHadith || seg.Chapter == nil {
			continue
		}
		k := key{chapter: *seg.Chapter}
		if seg.HadithNumber != nil {
			k.hadith = *seg.HadithNumber
		} else {
			// Each unnumbered boundary opens its own segment, so the segment
			// position is the boundary's identity.
			k.hadith = fmt.Sprintf("@%d", i)
		}
		if !seen[k] {
			seen[k] = true
			stats.ChapterHadithCounts[*seg.Chapter]++
		}
	}
}

// qualityScore blends reference coverage, bilingual coverage and the share
// of substantive lines into a 0..1 score used for operator review.
func qualityScore(s *Stats) float64 {
	if s.Chunks == 0 {
		return 0
	}
	refCoverage := float64(s.ResolvedChunks) / float64(s.Chunks)
	bilingual := float64(s.BilingualChunks) / float64(s.Chunks)
	total := s.ContentLines + s.NavigationLines
	contentRatio := 0.0
	if total > 0 {
		contentRatio = float64(s.ContentLines) / float64(total)
	}
	return 0.5*refCoverage + 0.3*bilingual + 0.2*contentRatio
}

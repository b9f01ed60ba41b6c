package models

// ResultReference is one source backing an answer, with the retrieval score
// and short excerpts for display.
type ResultReference struct {
	Volume         int     `json:"volume"`
	Chapter        *string `json:"chapter,omitempty"`
	HadithNumber   *string `json:"hadith_number,omitempty"`
	Similarity     float64 `json:"similarity_score"`
	Citation       string  `json:"citation"`
	ExcerptEnglish string  `json:"excerpt_english"`
	ExcerptArabic  string  `json:"excerpt_arabic,omitempty"`
}

// QueryResult is the ephemeral outcome of one retrieval request. It is
// returned to the caller and never persisted.
type QueryResult struct {
	Answer         string            `json:"answer"`
	References     []ResultReference `json:"references"`
	TotalSources   int               `json:"total_sources"`
	ProcessingTime float64           `json:"processing_time"`
	LowConfidence  bool              `json:"low_confidence,omitempty"`
	Partial        bool              `json:"partial,omitempty"`
}

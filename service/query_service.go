package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"bihar-rag-backend/ai"
	"bihar-rag-backend/models"
	"bihar-rag-backend/repository"
)

var (
	ErrEmptyQuery    = errors.New("query text is empty")
	ErrInvalidVolume = errors.New("volume number out of range")
	ErrInvalidTopK   = errors.New("top_k out of range")
)

const (
	// The similarity ladder: the primary floor keeps answers well grounded;
	// when it yields too few sources the relaxed floor is tried and the
	// result is marked low-confidence. Order matters.
	primaryFloor = 0.30
	relaxedFloor = 0.15

	// Below this many sources the primary floor is considered to have
	// failed and the ladder descends.
	minAcceptableSources = 3

	defaultTopK = 7
	maxTopK     = 20

	defaultQueryTimeout = 120 * time.Second

	excerptLength = 300
)

var floorLadder = []float64{primaryFloor, relaxedFloor}

// ChunkSearcher is the retrieval surface the query service depends on. Both
// the Postgres repository and the in-memory store satisfy it.
type ChunkSearcher interface {
	Search(ctx context.Context, p repository.SearchParams) ([]models.Chunk, error)
	SearchByReference(ctx context.Context, volume int, chapter, hadith *string) ([]models.Chunk, error)
}

// QueryRequest carries one retrieval request
type QueryRequest struct {
	Text          string
	TopK          int
	IncludeArabic bool
	VolumeFilter  *int
}

// QueryService answers natural-language questions against the corpus
type QueryService struct {
	searcher  ChunkSearcher
	embedder  ai.Embedder
	generator ai.Generator
	timeout   time.Duration
}

// QueryOption configures a QueryService
type QueryOption func(*QueryService)

// QueryWithTimeout overrides the per-request deadline
func QueryWithTimeout(d time.Duration) QueryOption {
	return func(s *QueryService) { s.timeout = d }
}

// NewQueryService creates a query service
func NewQueryService(searcher ChunkSearcher, embedder ai.Embedder, generator ai.Generator, opts ...QueryOption) *QueryService {
	s := &QueryService{
		searcher:  searcher,
		embedder:  embedder,
		generator: generator,
		timeout:   defaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query embeds the question, retrieves nearest chunks down the similarity
// ladder, generates a grounded answer and cross-validates its citations.
// When generation fails or the deadline passes after retrieval succeeded,
// the retrieved excerpts are returned as a partial result instead of an
// error.
func (s *QueryService) Query(ctx context.Context, req QueryRequest) (*models.QueryResult, error) {
	start := time.Now()

	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyQuery
	}
	if req.TopK == 0 {
		req.TopK = defaultTopK
	}
	if req.TopK < 1 || req.TopK > maxTopK {
		return nil, fmt.Errorf("%w: %d not in 1..%d", ErrInvalidTopK, req.TopK, maxTopK)
	}
	if req.VolumeFilter != nil && !models.ValidVolumeNumber(*req.VolumeFilter) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVolume, *req.VolumeFilter)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	queryVec, err := s.embedder.EmbedQuery(ctx, req.Text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	chunks, lowConfidence, err := s.searchLadder(ctx, queryVec, req)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	result := &models.QueryResult{
		References:    buildReferences(chunks, req.IncludeArabic),
		TotalSources:  len(chunks),
		LowConfidence: lowConfidence,
	}

	if len(chunks) == 0 {
		result.Answer = "No sufficiently relevant traditions were found for this question. " +
			"Try rephrasing it or removing the volume filter."
		result.ProcessingTime = time.Since(start).Seconds()
		return result, nil
	}

	// The deadline is re-checked here so an exhausted budget never pays for
	// a generation call, even against a generator that ignores its context.
	if err := ctx.Err(); err != nil {
		log.Printf("Deadline passed before generation, returning partial result: %v", err)
		result.Answer = excerptFallback(chunks)
		result.Partial = true
		result.ProcessingTime = time.Since(start).Seconds()
		return result, nil
	}

	answer, err := s.generator.Generate(ctx, buildPrompt(req.Text, chunks))
	if err != nil {
		// Retrieval already succeeded; degrade to excerpts rather than
		// discarding them.
		log.Printf("Generation failed, returning partial result: %v", err)
		result.Answer = excerptFallback(chunks)
		result.Partial = true
		result.ProcessingTime = time.Since(start).Seconds()
		return result, nil
	}

	result.Answer = s.validateCitations(answer, chunks)
	result.ProcessingTime = time.Since(start).Seconds()
	return result, nil
}

// SearchByReference looks chunks up by structural coordinate.
func (s *QueryService) SearchByReference(ctx context.Context, volume int, chapter, hadith *string) ([]models.Chunk, error) {
	if !models.ValidVolumeNumber(volume) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVolume, volume)
	}
	return s.searcher.SearchByReference(ctx, volume, chapter, hadith)
}

// searchLadder walks the similarity floors in order and returns the first
// result set it accepts. A set below minAcceptableSources at the primary
// floor triggers a descent, and anything returned from a lower floor is
// marked low-confidence.
func (s *QueryService) searchLadder(ctx context.Context, vec []float64, req QueryRequest) ([]models.Chunk, bool, error) {
	var chunks []models.Chunk
	for i, floor := range floorLadder {
		found, err := s.searcher.Search(ctx, repository.SearchParams{
			Vector:       vec,
			TopK:         req.TopK,
			Floor:        floor,
			VolumeFilter: req.VolumeFilter,
		})
		if err != nil {
			return nil, false, err
		}
		if len(found) >= minAcceptableSources {
			return found, i > 0, nil
		}
		if len(found) > len(chunks) {
			chunks = found
		}
	}
	// Fewer than minAcceptableSources even at the lowest floor: return what
	// exists, flagged.
	return chunks, len(chunks) > 0, nil
}

// buildPrompt assembles the grounded generation prompt. Every excerpt is
// labelled with its citation so the model can only cite what it was given.
func buildPrompt(question string, chunks []models.Chunk) string {
	var b strings.Builder
	b.WriteString("You are a careful research assistant answering questions strictly from ")
	b.WriteString("the hadith excerpts below, drawn from Bihar ul Anwar.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Use only the excerpts provided. Never add outside knowledge.\n")
	b.WriteString("- Cite every claim with the exact citation line of its excerpt.\n")
	b.WriteString("- If the excerpts do not answer the question, say so plainly.\n\n")
	b.WriteString("Excerpts:\n\n")

	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s (similarity %.2f)\n", i+1, c.Reference().Citation(), c.Similarity)
		text := c.EnglishText
		if text == "" {
			text = c.FullText
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Question: %s\n", question)
	return b.String()
}

// validateCitations removes citation tokens in the answer that no retrieved
// chunk supports. The reference list returned to the caller is built from
// the retrieved chunks directly, so only the answer prose needs the guard.
func (s *QueryService) validateCitations(answer string, chunks []models.Chunk) string {
	supported := make([]models.Reference, len(chunks))
	for i, c := range chunks {
		supported[i] = c.Reference()
	}

	// Replace the matched literal, not the canonical rendering: the parser
	// tolerates variant spacing inside a citation, and a re-rendered token
	// would miss such an answer's exact text.
	for _, tok := range models.FindCitationTokens(answer) {
		ok := false
		for _, ref := range supported {
			if tok.Ref.Covers(ref) {
				ok = true
				break
			}
		}
		if !ok {
			log.Printf("Dropping unsupported citation: %s", tok.Ref.Citation())
			answer = strings.ReplaceAll(answer, tok.Text, "the retrieved narrations")
		}
	}
	return answer
}

func buildReferences(chunks []models.Chunk, includeArabic bool) []models.ResultReference {
	refs := make([]models.ResultReference, 0, len(chunks))
	for _, c := range chunks {
		ref := models.ResultReference{
			Volume:         c.VolumeNumber,
			Chapter:        c.Chapter,
			HadithNumber:   c.HadithNumber,
			Similarity:     c.Similarity,
			Citation:       c.Reference().Citation(),
			ExcerptEnglish: truncateExcerpt(c.EnglishText, excerptLength),
		}
		if includeArabic {
			ref.ExcerptArabic = truncateExcerpt(c.ArabicText, excerptLength)
		}
		refs = append(refs, ref)
	}
	return refs
}

func excerptFallback(chunks []models.Chunk) string {
	var b strings.Builder
	b.WriteString("The answer could not be generated in time. The most relevant narrations found:\n\n")
	for _, c := range chunks {
		text := c.EnglishText
		if text == "" {
			text = c.FullText
		}
		fmt.Fprintf(&b, "- %s: %s\n", c.Reference().Citation(), truncateExcerpt(text, excerptLength))
	}
	return b.String()
}

func truncateExcerpt(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "..."
}

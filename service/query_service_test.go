package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"bihar-rag-backend/models"
	"bihar-rag-backend/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitVec(components ...float64) []float64 {
	v := make([]float64, models.EmbeddingDimensions)
	copy(v, components)
	return v
}

func strPtr(s string) *string { return &s }

type stubEmbedder struct {
	vec []float64
	err error
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return s.vec, s.err
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

type stubGenerator struct {
	answer string
	err    error
	prompt string
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.answer, s.err
}

func storeChunk(t *testing.T, store *repository.MemoryChunkStore, volume int, chapter, hadith string, text string, vector []float64) models.Chunk {
	t.Helper()
	chunk := models.Chunk{
		ID:           uuid.New(),
		VolumeNumber: volume,
		ContentType:  models.ContentTypeHadith,
		EnglishText:  text,
		FullText:     text,
		ChunkIndex:   store.Len(),
		Chapter:      strPtr(chapter),
		HadithNumber: strPtr(hadith),
		Numbering:    models.NumberingResolved,
	}
	require.NoError(t, store.Add(chunk, vector))
	return chunk
}

func TestQueryHappyPath(t *testing.T) {
	store := repository.NewMemoryChunkStore()
	storeChunk(t, store, 7, "2", "1", "first narration about the gathering", unitVec(1, 0))
	storeChunk(t, store, 7, "2", "2", "second narration about the gathering", unitVec(0.95, 0.31))
	storeChunk(t, store, 7, "2", "3", "third narration about the gathering", unitVec(0.9, 0.43))

	gen := &stubGenerator{answer: "The gathering is described in Bihar ul Anwar, Volume 7, Chapter 2, Hadith 1."}
	svc := NewQueryService(store, &stubEmbedder{vec: unitVec(1, 0)}, gen)

	result, err := svc.Query(context.Background(), QueryRequest{Text: "what happens at the gathering?"})
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalSources)
	assert.False(t, result.LowConfidence)
	assert.False(t, result.Partial)
	assert.Contains(t, result.Answer, "Volume 7, Chapter 2, Hadith 1")
	require.Len(t, result.References, 3)
	assert.Equal(t, "Bihar ul Anwar, Volume 7, Chapter 2, Hadith 1", result.References[0].Citation)
	assert.GreaterOrEqual(t, result.References[0].Similarity, result.References[1].Similarity)

	// The prompt carries the citations and the excerpts the answer may use.
	assert.Contains(t, gen.prompt, "Bihar ul Anwar, Volume 7, Chapter 2, Hadith 1")
	assert.Contains(t, gen.prompt, "first narration about the gathering")
}

func TestQueryDescendsLadderAndFlagsLowConfidence(t *testing.T) {
	store := repository.NewMemoryChunkStore()
	// Similarity ~0.2: below the primary floor, above the relaxed one.
	storeChunk(t, store, 7, "2", "1", "weakly related narration", unitVec(0.2, 0.9798))
	storeChunk(t, store, 7, "2", "2", "another weakly related narration", unitVec(0.2, 0.9798))

	gen := &stubGenerator{answer: "A cautious summary."}
	svc := NewQueryService(store, &stubEmbedder{vec: unitVec(1, 0)}, gen)

	result, err := svc.Query(context.Background(), QueryRequest{Text: "marginal question"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalSources)
	assert.True(t, result.LowConfidence)
}

func TestQueryNoResults(t *testing.T) {
	store := repository.NewMemoryChunkStore()
	storeChunk(t, store, 7, "2", "1", "orthogonal content", unitVec(0, 1))

	gen := &stubGenerator{answer: "should never be called"}
	svc := NewQueryService(store, &stubEmbedder{vec: unitVec(1, 0)}, gen)

	result, err := svc.Query(context.Background(), QueryRequest{Text: "unrelated question"})
	require.NoError(t, err)
	assert.Zero(t, result.TotalSources)
	assert.Empty(t, result.References)
	assert.Contains(t, result.Answer, "No sufficiently relevant traditions")
	assert.Empty(t, gen.prompt, "generation must be skipped with no sources")
}

func TestQueryVolumeFilter(t *testing.T) {
	store := repository.NewMemoryChunkStore()
	storeChunk(t, store, 7, "1", "1", "in volume seven", unitVec(1, 0))
	storeChunk(t, store, 9, "1", "1", "in volume nine", unitVec(1, 0))

	nine := 9
	svc := NewQueryService(store, &stubEmbedder{vec: unitVec(1, 0)}, &stubGenerator{answer: "ok"})

	result, err := svc.Query(context.Background(), QueryRequest{Text: "filtered", VolumeFilter: &nine})
	require.NoError(t, err)
	for _, ref := range result.References {
		assert.Equal(t, 9, ref.Volume)
	}
}

func TestQueryPartialOnGenerationFailure(t *testing.T) {
	store := repository.NewMemoryChunkStore()
	storeChunk(t, store, 7, "2", "1", "the narration text", unitVec(1, 0))
	storeChunk(t, store, 7, "2", "2", "more narration text", unitVec(0.99, 0.14))
	storeChunk(t, store, 7, "2", "3", "further narration text", unitVec(0.98, 0.2))

	gen := &stubGenerator{err: errors.New("model unavailable")}
	svc := NewQueryService(store, &stubEmbedder{vec: unitVec(1, 0)}, gen)

	result, err := svc.Query(context.Background(), QueryRequest{Text: "question"})
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Equal(t, 3, result.TotalSources)
	assert.Contains(t, result.Answer, "Bihar ul Anwar, Volume 7, Chapter 2, Hadith 1")
}

func TestQueryDropsUnsupportedCitations(t *testing.T) {
	store := repository.NewMemoryChunkStore()
	storeChunk(t, store, 7, "2", "1", "only source", unitVec(1, 0))
	storeChunk(t, store, 7, "2", "2", "second source", unitVec(0.99, 0.14))
	storeChunk(t, store, 7, "2", "3", "third source", unitVec(0.98, 0.2))

	gen := &stubGenerator{answer: "Supported by Bihar ul Anwar, Volume 7, Chapter 2, Hadith 1 " +
		"but also invented from Bihar ul Anwar, Volume 9, Chapter 4, Hadith 12."}
	svc := NewQueryService(store, &stubEmbedder{vec: unitVec(1, 0)}, gen)

	result, err := svc.Query(context.Background(), QueryRequest{Text: "question"})
	require.NoError(t, err)
	assert.Contains(t, result.Answer, "Volume 7, Chapter 2, Hadith 1")
	assert.NotContains(t, result.Answer, "Volume 9")
}

func TestQueryDropsOddlySpacedUnsupportedCitations(t *testing.T) {
	store := repository.NewMemoryChunkStore()
	storeChunk(t, store, 7, "2", "1", "only source", unitVec(1, 0))
	storeChunk(t, store, 7, "2", "2", "second source", unitVec(0.99, 0.14))
	storeChunk(t, store, 7, "2", "3", "third source", unitVec(0.98, 0.2))

	// The guard must remove the citation exactly as the answer spells it,
	// spacing variants included, not just the canonical rendering.
	gen := &stubGenerator{answer: "Invented from Bihar ul Anwar,  Volume 9,  Chapter 4,  Hadith 12."}
	svc := NewQueryService(store, &stubEmbedder{vec: unitVec(1, 0)}, gen)

	result, err := svc.Query(context.Background(), QueryRequest{Text: "question"})
	require.NoError(t, err)
	assert.NotContains(t, result.Answer, "Volume 9")
	assert.NotContains(t, result.Answer, "Chapter 4")
	assert.Contains(t, result.Answer, "the retrieved narrations")
}

func TestQueryValidation(t *testing.T) {
	svc := NewQueryService(repository.NewMemoryChunkStore(), &stubEmbedder{vec: unitVec(1)}, &stubGenerator{})

	_, err := svc.Query(context.Background(), QueryRequest{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = svc.Query(context.Background(), QueryRequest{Text: "q", TopK: 500})
	assert.ErrorIs(t, err, ErrInvalidTopK)

	bad := 111
	_, err = svc.Query(context.Background(), QueryRequest{Text: "q", VolumeFilter: &bad})
	assert.ErrorIs(t, err, ErrInvalidVolume)
}

func TestQueryEmbeddingFailure(t *testing.T) {
	svc := NewQueryService(repository.NewMemoryChunkStore(),
		&stubEmbedder{err: errors.New("api down")}, &stubGenerator{})

	_, err := svc.Query(context.Background(), QueryRequest{Text: "q"})
	assert.Error(t, err)
}

func TestQueryIncludeArabic(t *testing.T) {
	store := repository.NewMemoryChunkStore()
	chunk := models.Chunk{
		ID:           uuid.New(),
		VolumeNumber: 7,
		ContentType:  models.ContentTypeHadith,
		ArabicText:   "النص العربي",
		EnglishText:  "the english text",
		FullText:     "the english text",
		Numbering:    models.NumberingUnknown,
	}
	require.NoError(t, store.Add(chunk, unitVec(1, 0)))

	svc := NewQueryService(store, &stubEmbedder{vec: unitVec(1, 0)}, &stubGenerator{answer: "ok"})

	result, err := svc.Query(context.Background(), QueryRequest{Text: "q", IncludeArabic: true})
	require.NoError(t, err)
	require.NotEmpty(t, result.References)
	assert.Equal(t, "النص العربي", result.References[0].ExcerptArabic)

	result, err = svc.Query(context.Background(), QueryRequest{Text: "q"})
	require.NoError(t, err)
	assert.Empty(t, result.References[0].ExcerptArabic)
}

func TestSearchByReferenceValidation(t *testing.T) {
	store := repository.NewMemoryChunkStore()
	storeChunk(t, store, 52, "22", "14", "the mahdi narration", unitVec(1))

	svc := NewQueryService(store, &stubEmbedder{vec: unitVec(1)}, &stubGenerator{})

	chunks, err := svc.SearchByReference(context.Background(), 52, strPtr("22"), strPtr("14"))
	require.NoError(t, err)
	assert.Len(t, chunks, 1)

	_, err = svc.SearchByReference(context.Background(), 0, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidVolume)

	_, err = svc.SearchByReference(context.Background(), 52, strPtr("99"), nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestQueryTimeoutProducesPartial(t *testing.T) {
	store := repository.NewMemoryChunkStore()
	storeChunk(t, store, 7, "2", "1", "narration one", unitVec(1, 0))
	storeChunk(t, store, 7, "2", "2", "narration two", unitVec(0.99, 0.14))
	storeChunk(t, store, 7, "2", "3", "narration three", unitVec(0.98, 0.2))

	slow := &slowGenerator{delay: 50 * time.Millisecond}
	svc := NewQueryService(store, &stubEmbedder{vec: unitVec(1, 0)}, slow,
		QueryWithTimeout(10*time.Millisecond))

	result, err := svc.Query(context.Background(), QueryRequest{Text: "q"})
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Equal(t, 3, result.TotalSources)
}

type slowGenerator struct {
	delay time.Duration
}

func (s *slowGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	select {
	case <-time.After(s.delay):
		return "too late", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// laggingSearcher sleeps past the query deadline and then returns its chunks
// regardless of the context, like a store whose driver does not observe
// cancellation mid-call.
type laggingSearcher struct {
	delay  time.Duration
	chunks []models.Chunk
}

func (s *laggingSearcher) Search(ctx context.Context, p repository.SearchParams) ([]models.Chunk, error) {
	time.Sleep(s.delay)
	return s.chunks, nil
}

func (s *laggingSearcher) SearchByReference(ctx context.Context, volume int, chapter, hadith *string) ([]models.Chunk, error) {
	return nil, repository.ErrNotFound
}

// recordingGenerator ignores its context entirely and notes whether it ran.
type recordingGenerator struct {
	called bool
}

func (g *recordingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.called = true
	return "answer produced after the deadline", nil
}

func TestQueryExpiredDeadlineSkipsGeneration(t *testing.T) {
	chunks := []models.Chunk{
		{ID: uuid.New(), VolumeNumber: 7, ContentType: models.ContentTypeHadith,
			EnglishText: "narration one", FullText: "narration one",
			Chapter: strPtr("2"), HadithNumber: strPtr("1"), Numbering: models.NumberingResolved},
		{ID: uuid.New(), VolumeNumber: 7, ContentType: models.ContentTypeHadith,
			EnglishText: "narration two", FullText: "narration two",
			Chapter: strPtr("2"), HadithNumber: strPtr("2"), Numbering: models.NumberingResolved},
		{ID: uuid.New(), VolumeNumber: 7, ContentType: models.ContentTypeHadith,
			EnglishText: "narration three", FullText: "narration three",
			Chapter: strPtr("2"), HadithNumber: strPtr("3"), Numbering: models.NumberingResolved},
	}

	gen := &recordingGenerator{}
	svc := NewQueryService(&laggingSearcher{delay: 30 * time.Millisecond, chunks: chunks},
		&stubEmbedder{vec: unitVec(1, 0)}, gen,
		QueryWithTimeout(10*time.Millisecond))

	result, err := svc.Query(context.Background(), QueryRequest{Text: "q"})
	require.NoError(t, err)
	assert.False(t, gen.called, "generation must not run once the deadline has passed")
	assert.True(t, result.Partial)
	assert.Equal(t, 3, result.TotalSources)
	assert.Contains(t, result.Answer, "could not be generated in time")
}

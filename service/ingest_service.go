package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"bihar-rag-backend/ai"
	"bihar-rag-backend/ingest"
	"bihar-rag-backend/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrVolumeOutOfRange = errors.New("volume number out of range")
	ErrNoChunks         = errors.New("document produced no chunks")
)

const (
	// Two volumes in flight keeps throughput up without tripping the
	// embedding API's rate limits.
	defaultWorkers = 2

	// Chunks are embedded and stored in batches of this size, one
	// transaction per batch, so an interrupted run loses at most one batch.
	storeBatchSize = 50

	embeddingModel   = "text-embedding-004"
	embeddingVersion = "2024-11"

	// metadataFixLimit bounds one repair pass.
	metadataFixLimit = 500
)

// VolumeStore is the volume lifecycle surface the ingest service needs.
type VolumeStore interface {
	Upsert(ctx context.Context, v *models.Volume) error
	GetByNumber(ctx context.Context, number int) (*models.Volume, error)
	UpdateStatus(ctx context.Context, number int, status models.VolumeStatus, errMsg *string) error
	Complete(ctx context.Context, number, totalChunks int, quality float64) error
}

// ChapterStore records per-chapter hadith counts.
type ChapterStore interface {
	UpsertCounts(ctx context.Context, volume int, counts map[string]int) error
}

// ChunkWriter is the persistence surface for chunks and vectors.
type ChunkWriter interface {
	InsertBatch(ctx context.Context, chunks []models.Chunk, vectors [][]float64, model, version string) (int, error)
	ExistingChunkIndexes(ctx context.Context, volume int) (map[int]bool, error)
	DeleteByVolume(ctx context.Context, volume int) error
	MissingMetadata(ctx context.Context, volume, limit int) ([]models.Chunk, error)
	UpdateReference(ctx context.Context, id uuid.UUID, chapter, hadith *string, numbering models.NumberingState) error
}

// VolumeDocument is one volume's raw source handed to ingestion.
type VolumeDocument struct {
	Number     int
	Name       string
	SourceFile string
	Data       []byte
}

// ProcessResult summarizes one volume's ingestion.
type ProcessResult struct {
	Volume       int           `json:"volume"`
	Chunks       int           `json:"chunks"`
	Inserted     int           `json:"inserted"`
	Skipped      int           `json:"skipped"`
	QualityScore float64       `json:"quality_score"`
	Duration     time.Duration `json:"-"`
}

// VolumeOutcome pairs a volume number with its processing result or error.
type VolumeOutcome struct {
	Volume int
	Result *ProcessResult
	Err    error
}

// IngestService runs the ingestion pipeline and persists its output
type IngestService struct {
	volumes  VolumeStore
	chapters ChapterStore
	chunks   ChunkWriter
	embedder ai.Embedder
	workers  int
	cfg      ingest.Config
}

// IngestOption configures an IngestService
type IngestOption func(*IngestService)

// IngestWithWorkers sets how many volumes are processed concurrently
func IngestWithWorkers(n int) IngestOption {
	return func(s *IngestService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// IngestWithConfig overrides the pipeline tunables
func IngestWithConfig(cfg ingest.Config) IngestOption {
	return func(s *IngestService) { s.cfg = cfg }
}

// NewIngestService creates an ingest service
func NewIngestService(volumes VolumeStore, chapters ChapterStore, chunks ChunkWriter, embedder ai.Embedder, opts ...IngestOption) *IngestService {
	s := &IngestService{
		volumes:  volumes,
		chapters: chapters,
		chunks:   chunks,
		embedder: embedder,
		workers:  defaultWorkers,
		cfg:      ingest.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessVolume runs one volume end to end: pipeline, embedding, batched
// storage, chapter counts, status bookkeeping. Chunks already stored from a
// previous interrupted run are skipped before their embeddings are paid for.
func (s *IngestService) ProcessVolume(ctx context.Context, doc VolumeDocument) (*ProcessResult, error) {
	start := time.Now()

	if !models.ValidVolumeNumber(doc.Number) {
		return nil, fmt.Errorf("%w: %d", ErrVolumeOutOfRange, doc.Number)
	}

	volume := &models.Volume{
		ID:         uuid.New(),
		Number:     doc.Number,
		Name:       doc.Name,
		Status:     models.VolumeStatusPending,
		SourceFile: doc.SourceFile,
	}
	if err := s.volumes.Upsert(ctx, volume); err != nil {
		return nil, err
	}
	if err := s.volumes.UpdateStatus(ctx, doc.Number, models.VolumeStatusProcessing, nil); err != nil {
		return nil, err
	}

	result, err := s.processBody(ctx, doc)
	if err != nil {
		msg := err.Error()
		if statusErr := s.volumes.UpdateStatus(ctx, doc.Number, models.VolumeStatusError, &msg); statusErr != nil {
			log.Printf("Failed to record error for volume %d: %v", doc.Number, statusErr)
		}
		return nil, err
	}

	result.Duration = time.Since(start)
	log.Printf("Volume %d processed: %d chunks (%d new) in %s, quality %.2f",
		doc.Number, result.Chunks, result.Inserted, result.Duration.Round(time.Second), result.QualityScore)
	return result, nil
}

func (s *IngestService) processBody(ctx context.Context, doc VolumeDocument) (*ProcessResult, error) {
	chunks, stats, err := ingest.ProcessDocument(doc.Data, doc.Number, s.cfg)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	existing, err := s.chunks.ExistingChunkIndexes(ctx, doc.Number)
	if err != nil {
		return nil, err
	}

	var pending []models.Chunk
	for _, c := range chunks {
		if !existing[c.ChunkIndex] {
			pending = append(pending, c)
		}
	}

	inserted := 0
	for start := 0; start < len(pending); start += storeBatchSize {
		end := start + storeBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.FullText
		}
		vectors, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding batch at %d: %w", start, err)
		}

		n, err := s.chunks.InsertBatch(ctx, batch, vectors, embeddingModel, embeddingVersion)
		if err != nil {
			return nil, fmt.Errorf("storing batch at %d: %w", start, err)
		}
		inserted += n
	}

	if err := s.chapters.UpsertCounts(ctx, doc.Number, stats.ChapterHadithCounts); err != nil {
		return nil, err
	}
	if err := s.volumes.Complete(ctx, doc.Number, len(chunks), stats.QualityScore); err != nil {
		return nil, err
	}

	return &ProcessResult{
		Volume:       doc.Number,
		Chunks:       len(chunks),
		Inserted:     inserted,
		Skipped:      len(chunks) - len(pending),
		QualityScore: stats.QualityScore,
	}, nil
}

// ProcessVolumes processes documents concurrently with a bounded worker
// pool. A failing volume is recorded in its outcome and never aborts its
// siblings.
func (s *IngestService) ProcessVolumes(ctx context.Context, docs []VolumeDocument) []VolumeOutcome {
	outcomes := make([]VolumeOutcome, len(docs))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, doc := range docs {
		g.Go(func() error {
			result, err := s.ProcessVolume(ctx, doc)
			outcomes[i] = VolumeOutcome{Volume: doc.Number, Result: result, Err: err}
			if err != nil {
				log.Printf("Volume %d failed: %v", doc.Number, err)
			}
			return nil
		})
	}
	g.Wait()
	return outcomes
}

// Reprocess drops a volume's stored chunks and ingests the document again,
// for when a better source file or pipeline fix lands.
func (s *IngestService) Reprocess(ctx context.Context, doc VolumeDocument) (*ProcessResult, error) {
	if !models.ValidVolumeNumber(doc.Number) {
		return nil, fmt.Errorf("%w: %d", ErrVolumeOutOfRange, doc.Number)
	}
	// A reprocess request often carries only the archived bytes; the stored
	// name and source file stay authoritative when the request omits them.
	if doc.Name == "" || doc.SourceFile == "" {
		if existing, err := s.volumes.GetByNumber(ctx, doc.Number); err == nil {
			if doc.Name == "" {
				doc.Name = existing.Name
			}
			if doc.SourceFile == "" {
				doc.SourceFile = existing.SourceFile
			}
		}
	}
	if err := s.chunks.DeleteByVolume(ctx, doc.Number); err != nil {
		return nil, err
	}
	return s.ProcessVolume(ctx, doc)
}

// FixMetadata re-scans stored chunks whose coordinates are unresolved and
// fills in whatever markers a second pass over their text can recover.
// Returns how many chunks were updated.
func (s *IngestService) FixMetadata(ctx context.Context, volume int) (int, error) {
	if !models.ValidVolumeNumber(volume) {
		return 0, fmt.Errorf("%w: %d", ErrVolumeOutOfRange, volume)
	}

	chunks, err := s.chunks.MissingMetadata(ctx, volume, metadataFixLimit)
	if err != nil {
		return 0, err
	}

	fixed := 0
	for _, c := range chunks {
		chapter, hadith := ingest.Markers(c.FullText)
		if chapter == nil {
			chapter = c.Chapter
		}
		if hadith == nil {
			hadith = c.HadithNumber
		}
		if sameStr(chapter, c.Chapter) && sameStr(hadith, c.HadithNumber) {
			continue
		}

		numbering := c.Numbering
		if hadith != nil {
			numbering = models.NumberingResolved
		}
		if err := s.chunks.UpdateReference(ctx, c.ID, chapter, hadith, numbering); err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}

func sameStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

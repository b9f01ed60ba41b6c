package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"bihar-rag-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDocument = `--- Page 1 ---
Bihar Al-Anwaar   Volume 52   www.hubeali.com
CHAPTER 22 - THE OCCULTATION
1 - From Abu Abdullah, having said: for the master of this matter there is
an occultation during which the people will be tried.
2 - From Imam Al-Baqir, having said: the one who dies while awaiting this
matter is like the one who was with him in his tent.
Page 1 of 10
`

type fakeVolumeStore struct {
	mu        sync.Mutex
	statuses  map[int][]models.VolumeStatus
	names     map[int]string
	errMsgs   map[int]string
	completed map[int]int
	quality   map[int]float64
}

func newFakeVolumeStore() *fakeVolumeStore {
	return &fakeVolumeStore{
		statuses:  make(map[int][]models.VolumeStatus),
		names:     make(map[int]string),
		errMsgs:   make(map[int]string),
		completed: make(map[int]int),
		quality:   make(map[int]float64),
	}
}

func (f *fakeVolumeStore) Upsert(ctx context.Context, v *models.Volume) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[v.Number] = append(f.statuses[v.Number], v.Status)
	f.names[v.Number] = v.Name
	return nil
}

func (f *fakeVolumeStore) GetByNumber(ctx context.Context, number int) (*models.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.statuses[number]; !ok {
		return nil, errors.New("volume not found")
	}
	return &models.Volume{Number: number, Name: f.names[number]}, nil
}

func (f *fakeVolumeStore) UpdateStatus(ctx context.Context, number int, status models.VolumeStatus, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[number] = append(f.statuses[number], status)
	if errMsg != nil {
		f.errMsgs[number] = *errMsg
	}
	return nil
}

func (f *fakeVolumeStore) Complete(ctx context.Context, number, totalChunks int, quality float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[number] = append(f.statuses[number], models.VolumeStatusCompleted)
	f.completed[number] = totalChunks
	f.quality[number] = quality
	return nil
}

type fakeChapterStore struct {
	mu     sync.Mutex
	counts map[int]map[string]int
}

func newFakeChapterStore() *fakeChapterStore {
	return &fakeChapterStore{counts: make(map[int]map[string]int)}
}

func (f *fakeChapterStore) UpsertCounts(ctx context.Context, volume int, counts map[string]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[volume] = counts
	return nil
}

type fakeChunkWriter struct {
	mu       sync.Mutex
	existing map[int]bool
	batches  [][]models.Chunk
	stored   []models.Chunk
	missing  []models.Chunk
	updates  map[uuid.UUID][2]*string
	deleted  []int
}

func newFakeChunkWriter() *fakeChunkWriter {
	return &fakeChunkWriter{
		existing: make(map[int]bool),
		updates:  make(map[uuid.UUID][2]*string),
	}
}

func (f *fakeChunkWriter) InsertBatch(ctx context.Context, chunks []models.Chunk, vectors [][]float64, model, version string) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, errors.New("misaligned batch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, chunks)
	f.stored = append(f.stored, chunks...)
	return len(chunks), nil
}

func (f *fakeChunkWriter) ExistingChunkIndexes(ctx context.Context, volume int) (map[int]bool, error) {
	return f.existing, nil
}

func (f *fakeChunkWriter) DeleteByVolume(ctx context.Context, volume int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, volume)
	return nil
}

func (f *fakeChunkWriter) MissingMetadata(ctx context.Context, volume, limit int) ([]models.Chunk, error) {
	return f.missing, nil
}

func (f *fakeChunkWriter) UpdateReference(ctx context.Context, id uuid.UUID, chapter, hadith *string, numbering models.NumberingState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = [2]*string{chapter, hadith}
	return nil
}

func TestProcessVolumeStoresChunks(t *testing.T) {
	volumes := newFakeVolumeStore()
	chapters := newFakeChapterStore()
	writer := newFakeChunkWriter()
	svc := NewIngestService(volumes, chapters, writer, &stubEmbedder{vec: unitVec(1)})

	result, err := svc.ProcessVolume(context.Background(), VolumeDocument{
		Number:     52,
		Name:       "Volume 52",
		SourceFile: "bihar_v052.txt",
		Data:       []byte(testDocument),
	})
	require.NoError(t, err)

	assert.Equal(t, 52, result.Volume)
	assert.Greater(t, result.Chunks, 0)
	assert.Equal(t, result.Chunks, result.Inserted)
	assert.Zero(t, result.Skipped)

	require.NotEmpty(t, writer.stored)
	for _, c := range writer.stored {
		assert.Equal(t, 52, c.VolumeNumber)
		assert.NotContains(t, c.FullText, "hubeali")
	}

	assert.Equal(t, 2, chapters.counts[52]["22"])
	assert.Contains(t, volumes.statuses[52], models.VolumeStatusProcessing)
	assert.Contains(t, volumes.statuses[52], models.VolumeStatusCompleted)
	assert.Equal(t, result.Chunks, volumes.completed[52])
}

func TestProcessVolumeSkipsExistingChunks(t *testing.T) {
	volumes := newFakeVolumeStore()
	writer := newFakeChunkWriter()
	writer.existing[0] = true
	svc := NewIngestService(volumes, newFakeChapterStore(), writer, &stubEmbedder{vec: unitVec(1)})

	result, err := svc.ProcessVolume(context.Background(), VolumeDocument{
		Number: 52,
		Data:   []byte(testDocument),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, result.Chunks-1, result.Inserted)
	for _, c := range writer.stored {
		assert.NotZero(t, c.ChunkIndex, "chunk 0 must not be re-stored")
	}
}

func TestProcessVolumeRecordsFailure(t *testing.T) {
	volumes := newFakeVolumeStore()
	svc := NewIngestService(volumes, newFakeChapterStore(), newFakeChunkWriter(),
		&stubEmbedder{err: errors.New("quota exhausted")})

	_, err := svc.ProcessVolume(context.Background(), VolumeDocument{
		Number: 52,
		Data:   []byte(testDocument),
	})
	require.Error(t, err)
	assert.Contains(t, volumes.statuses[52], models.VolumeStatusError)
	assert.Contains(t, volumes.errMsgs[52], "quota exhausted")
}

func TestProcessVolumeRejectsBadNumber(t *testing.T) {
	svc := NewIngestService(newFakeVolumeStore(), newFakeChapterStore(), newFakeChunkWriter(),
		&stubEmbedder{vec: unitVec(1)})

	_, err := svc.ProcessVolume(context.Background(), VolumeDocument{Number: 0, Data: []byte(testDocument)})
	assert.ErrorIs(t, err, ErrVolumeOutOfRange)

	_, err = svc.ProcessVolume(context.Background(), VolumeDocument{Number: 111, Data: []byte(testDocument)})
	assert.ErrorIs(t, err, ErrVolumeOutOfRange)
}

func TestProcessVolumesIsolatesFailures(t *testing.T) {
	volumes := newFakeVolumeStore()
	svc := NewIngestService(volumes, newFakeChapterStore(), newFakeChunkWriter(),
		&stubEmbedder{vec: unitVec(1)}, IngestWithWorkers(2))

	outcomes := svc.ProcessVolumes(context.Background(), []VolumeDocument{
		{Number: 52, Data: []byte(testDocument)},
		{Number: 53, Data: nil}, // no text, fails
		{Number: 54, Data: []byte(testDocument)},
	})

	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.Error(t, outcomes[1].Err)
	assert.NoError(t, outcomes[2].Err)
	assert.Equal(t, 53, outcomes[1].Volume)
}

func TestReprocessDropsOldChunks(t *testing.T) {
	writer := newFakeChunkWriter()
	svc := NewIngestService(newFakeVolumeStore(), newFakeChapterStore(), writer,
		&stubEmbedder{vec: unitVec(1)})

	_, err := svc.Reprocess(context.Background(), VolumeDocument{Number: 52, Data: []byte(testDocument)})
	require.NoError(t, err)
	assert.Equal(t, []int{52}, writer.deleted)
	assert.NotEmpty(t, writer.stored)
}

func TestReprocessKeepsStoredName(t *testing.T) {
	volumes := newFakeVolumeStore()
	svc := NewIngestService(volumes, newFakeChapterStore(), newFakeChunkWriter(),
		&stubEmbedder{vec: unitVec(1)})

	_, err := svc.ProcessVolume(context.Background(), VolumeDocument{
		Number: 52,
		Name:   "The Occultation",
		Data:   []byte(testDocument),
	})
	require.NoError(t, err)

	// A reprocess built from the archive carries bytes but no name.
	_, err = svc.Reprocess(context.Background(), VolumeDocument{
		Number:     52,
		SourceFile: "bihar_v052.txt",
		Data:       []byte(testDocument),
	})
	require.NoError(t, err)
	assert.Equal(t, "The Occultation", volumes.names[52])
}

func TestFixMetadataRecoversMarkers(t *testing.T) {
	writer := newFakeChunkWriter()
	recoverable := models.Chunk{
		ID:           uuid.New(),
		VolumeNumber: 52,
		ContentType:  models.ContentTypeHadith,
		FullText:     "Hadith 14: The Imam said about the reappearance that it comes suddenly",
		Numbering:    models.NumberingUnknown,
	}
	hopeless := models.Chunk{
		ID:           uuid.New(),
		VolumeNumber: 52,
		ContentType:  models.ContentTypeHadith,
		FullText:     "a continuation with no markers at all",
		Numbering:    models.NumberingUnknown,
	}
	writer.missing = []models.Chunk{recoverable, hopeless}

	svc := NewIngestService(newFakeVolumeStore(), newFakeChapterStore(), writer,
		&stubEmbedder{vec: unitVec(1)})

	fixed, err := svc.FixMetadata(context.Background(), 52)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)

	update, ok := writer.updates[recoverable.ID]
	require.True(t, ok)
	require.NotNil(t, update[1])
	assert.Equal(t, "14", *update[1])

	_, ok = writer.updates[hopeless.ID]
	assert.False(t, ok)
}

func TestBatchSizeBound(t *testing.T) {
	var big strings.Builder
	big.WriteString("CHAPTER 1 - LONG\n")
	for i := 1; i <= 60; i++ {
		big.WriteString("narration line ")
		big.WriteString(strings.Repeat("filler text for windowing purposes, ", 25))
		big.WriteString("\n\n")
	}

	writer := newFakeChunkWriter()
	svc := NewIngestService(newFakeVolumeStore(), newFakeChapterStore(), writer,
		&stubEmbedder{vec: unitVec(1)})

	_, err := svc.ProcessVolume(context.Background(), VolumeDocument{Number: 1, Data: []byte(big.String())})
	require.NoError(t, err)

	require.Greater(t, len(writer.batches), 1)
	for _, b := range writer.batches {
		assert.LessOrEqual(t, len(b), 50)
	}
}

package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"knowledge-ingest-platform/models"
)

// fakeDocumentRepository is an in-memory DocumentRepository with the same
// conditional-claim semantics as the Mongo implementation.
type fakeDocumentRepository struct {
	mu   sync.Mutex
	docs map[string]*models.Document
}

func newFakeDocumentRepository() *fakeDocumentRepository {
	return &fakeDocumentRepository{docs: make(map[string]*models.Document)}
}

func (f *fakeDocumentRepository) put(doc *models.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *doc
	f.docs[doc.ID] = &clone
}

func (f *fakeDocumentRepository) Insert(_ context.Context, doc *models.Document) error {
	f.put(doc)
	return nil
}

func (f *fakeDocumentRepository) Get(_ context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	clone := *doc
	return &clone, nil
}

func (f *fakeDocumentRepository) List(_ context.Context, limit, offset int64) ([]models.Document, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Document, 0, len(f.docs))
	for _, doc := range f.docs {
		out = append(out, *doc)
	}
	return out, int64(len(out)), nil
}

func (f *fakeDocumentRepository) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeDocumentRepository) ClaimPending(_ context.Context, id string, startedAt, deadlineAt time.Time) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.Status != models.StatusPending {
		return nil, ErrClaimConflict
	}
	doc.Status = models.StatusProcessing
	doc.Attempts++
	doc.StartedAt = &startedAt
	doc.DeadlineAt = &deadlineAt
	doc.Progress = 0
	doc.UpdatedAt = startedAt
	clone := *doc
	return &clone, nil
}

func (f *fakeDocumentRepository) MarkCompleted(_ context.Context, id string, chunkCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	now := time.Now()
	doc.Status = models.StatusCompleted
	doc.CompletedAt = &now
	doc.Progress = 100
	doc.ChunkCount = chunkCount
	return nil
}

func (f *fakeDocumentRepository) MarkFailed(_ context.Context, id string, perr models.ProcessingError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Status = models.StatusFailed
	doc.LastError = &perr
	return nil
}

func (f *fakeDocumentRepository) ReturnToPending(_ context.Context, id string, perr models.ProcessingError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	if doc.Status != models.StatusProcessing {
		return nil
	}
	doc.Status = models.StatusPending
	doc.LastError = &perr
	doc.StartedAt = nil
	doc.DeadlineAt = nil
	return nil
}

func (f *fakeDocumentRepository) SetProgress(_ context.Context, id string, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Progress = progress
	return nil
}

func (f *fakeDocumentRepository) CountByStatus(_ context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, doc := range f.docs {
		counts[doc.Status]++
	}
	return counts, nil
}

func (f *fakeDocumentRepository) FindProcessingStartedBefore(_ context.Context, cutoff time.Time) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Document
	for _, doc := range f.docs {
		if doc.Status == models.StatusProcessing && doc.StartedAt != nil && doc.StartedAt.Before(cutoff) {
			out = append(out, *doc)
		}
	}
	return out, nil
}

// fakeChunkRepository stores chunks in insertion order.
type fakeChunkRepository struct {
	mu     sync.Mutex
	chunks []models.Chunk
}

func newFakeChunkRepository() *fakeChunkRepository {
	return &fakeChunkRepository{}
}

func (f *fakeChunkRepository) Replace(_ context.Context, documentID string, chunks []models.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.chunks[:0]
	for _, c := range f.chunks {
		if c.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	f.chunks = append(kept, chunks...)
	return nil
}

func (f *fakeChunkRepository) DeleteByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.chunks[:0]
	for _, c := range f.chunks {
		if c.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	f.chunks = kept
	return nil
}

func (f *fakeChunkRepository) ByDocument(_ context.Context, documentID string) ([]models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Chunk
	for _, c := range f.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkRepository) AllEmbedded(_ context.Context) ([]models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Chunk
	for _, c := range f.chunks {
		if len(c.Embedding) > 0 {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkRepository) MissingEmbeddingCounts(_ context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, c := range f.chunks {
		if len(c.Embedding) == 0 {
			counts[c.DocumentID]++
		}
	}
	return counts, nil
}

// fakeOCRClient returns canned text per call and tracks concurrency.
type fakeOCRClient struct {
	mu         sync.Mutex
	inFlight   int
	maxSeen    int
	delay      time.Duration
	text       func(image []byte) (string, error)
	callCount  int
	startTimes []time.Time
}

func (f *fakeOCRClient) OCRImage(ctx context.Context, _ string, image []byte, _ string) (string, error) {
	f.mu.Lock()
	f.inFlight++
	f.callCount++
	f.startTimes = append(f.startTimes, time.Now())
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.text != nil {
		return f.text(image)
	}
	return "ocr:" + string(image), nil
}

// fakeEmbeddingClient returns deterministic vectors, with optional overrides
// for failure modes.
type fakeEmbeddingClient struct {
	mu      sync.Mutex
	calls   [][]string
	dim     int
	respond func(texts []string) ([][]float32, error)
}

func (f *fakeEmbeddingClient) EmbedBatch(_ context.Context, _ string, texts []string, _ int) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(texts)
	}

	dim := f.dim
	if dim == 0 {
		dim = 4
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, dim)
		vec[0] = float32(len(texts[i]))
		out[i] = vec
	}
	return out, nil
}

func testChunk(documentID string, index int, embedding []float32) models.Chunk {
	return models.Chunk{
		ID:         fmt.Sprintf("%s-chunk-%d", documentID, index),
		DocumentID: documentID,
		Index:      index,
		Content:    fmt.Sprintf("content %d", index),
		Embedding:  embedding,
		CreatedAt:  time.Now(),
	}
}

package services

import (
	"context"
	"time"

	"knowledge-ingest-platform/models"
)

// DocumentRepository is the persistence surface for documents. The Mongo
// implementation backs production; tests use in-memory fakes.
type DocumentRepository interface {
	Insert(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, limit, offset int64) ([]models.Document, int64, error)
	Delete(ctx context.Context, id string) error

	// ClaimPending atomically transitions a pending document to processing,
	// incrementing attempts and stamping the lease window. Returns
	// ErrClaimConflict when no pending document matches the id.
	ClaimPending(ctx context.Context, id string, startedAt, deadlineAt time.Time) (*models.Document, error)

	MarkCompleted(ctx context.Context, id string, chunkCount int) error
	MarkFailed(ctx context.Context, id string, perr models.ProcessingError) error

	// ReturnToPending releases the lease after a retryable failure: status
	// back to pending, failure reason recorded, attempt count untouched.
	ReturnToPending(ctx context.Context, id string, perr models.ProcessingError) error

	SetProgress(ctx context.Context, id string, progress int) error

	CountByStatus(ctx context.Context) (map[string]int64, error)
	FindProcessingStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Document, error)
}

// ChunkRepository is the persistence surface for chunks and their embeddings.
type ChunkRepository interface {
	// Replace deletes any existing chunks for the document and inserts the
	// new set. Prior chunks are superseded, never merged.
	Replace(ctx context.Context, documentID string, chunks []models.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
	ByDocument(ctx context.Context, documentID string) ([]models.Chunk, error)

	// AllEmbedded returns every chunk that has an embedding, in storage
	// order. Used by the flat similarity scan and the dimension diagnostic.
	AllEmbedded(ctx context.Context) ([]models.Chunk, error)

	// MissingEmbeddingCounts returns, per document id, how many chunks have
	// no embedding vector.
	MissingEmbeddingCounts(ctx context.Context) (map[string]int64, error)
}

package services

import (
	"context"
	"fmt"

	"knowledge-ingest-platform/internal/logger"
	"knowledge-ingest-platform/models"
)

// EmbeddingClient is the batch embedding call. Implemented by the shared
// Gemini client in production and by fakes in tests.
type EmbeddingClient interface {
	EmbedBatch(ctx context.Context, model string, texts []string, wantDim int) ([][]float32, error)
}

// Embedder turns a document's chunks into embedding vectors, batch by batch.
type Embedder struct {
	client    EmbeddingClient
	model     string
	batchSize int
	wantDim   int
}

func NewEmbedder(client EmbeddingClient, model string, batchSize, wantDim int) *Embedder {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Embedder{
		client:    client,
		model:     model,
		batchSize: batchSize,
		wantDim:   wantDim,
	}
}

// EmbedChunks fills in the Embedding field of every chunk, preserving input
// order. Batches run sequentially; within a batch, vectors map back to chunks
// by response index. Any batch failure, count mismatch, or wrong-dimension
// vector wraps ErrEmbeddingBatch — no partial, misaligned result is ever
// returned.
func (em *Embedder) EmbedChunks(ctx context.Context, chunks []models.Chunk) error {
	for start := 0; start < len(chunks); start += em.batchSize {
		end := start + em.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := em.client.EmbedBatch(ctx, em.model, texts, em.wantDim)
		if err != nil {
			return fmt.Errorf("batch starting at chunk %d: %v: %w", start, err, ErrEmbeddingBatch)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("batch starting at chunk %d: got %d vectors for %d chunks: %w",
				start, len(vectors), len(batch), ErrEmbeddingBatch)
		}

		for i := range batch {
			if em.wantDim > 0 && len(vectors[i]) != em.wantDim {
				return fmt.Errorf("chunk %d: vector has dimension %d, want %d: %w",
					start+i, len(vectors[i]), em.wantDim, ErrEmbeddingBatch)
			}
			chunks[start+i].Embedding = vectors[i]
		}

		logger.Debug("Embedded batch", "start", start, "size", len(batch))
	}
	return nil
}

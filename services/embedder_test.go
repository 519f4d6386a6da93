package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-ingest-platform/models"
)

func contentChunks(n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ID:         fmt.Sprintf("c-%d", i),
			DocumentID: "doc-1",
			Index:      i,
			Content:    fmt.Sprintf("chunk text %d", i),
		}
	}
	return chunks
}

func TestEmbedChunksFillsVectorsInOrder(t *testing.T) {
	client := &fakeEmbeddingClient{dim: 4}
	em := NewEmbedder(client, "embed-model", 8, 4)

	chunks := contentChunks(20)
	require.NoError(t, em.EmbedChunks(context.Background(), chunks))

	// 20 chunks at batch size 8: 3 sequential batches.
	assert.Len(t, client.calls, 3)
	assert.Len(t, client.calls[0], 8)
	assert.Len(t, client.calls[1], 8)
	assert.Len(t, client.calls[2], 4)

	for i, c := range chunks {
		require.Len(t, c.Embedding, 4, "chunk %d missing vector", i)
		assert.Equal(t, float32(len(c.Content)), c.Embedding[0],
			"chunk %d vector does not match its own content", i)
	}
}

func TestEmbedChunksCountMismatchFailsBatch(t *testing.T) {
	// The API silently drops 2 of 20 inputs. That must surface as a batch
	// failure, never as misaligned vectors.
	client := &fakeEmbeddingClient{
		respond: func(texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts)-2)
			for i := range out {
				out[i] = []float32{1, 0, 0, 0}
			}
			return out, nil
		},
	}
	em := NewEmbedder(client, "embed-model", 20, 4)

	chunks := contentChunks(20)
	err := em.EmbedChunks(context.Background(), chunks)

	require.ErrorIs(t, err, ErrEmbeddingBatch)
}

func TestEmbedChunksAPIErrorFailsBatch(t *testing.T) {
	client := &fakeEmbeddingClient{
		respond: func(texts []string) ([][]float32, error) {
			return nil, errors.New("upstream unavailable")
		},
	}
	em := NewEmbedder(client, "embed-model", 16, 4)

	err := em.EmbedChunks(context.Background(), contentChunks(5))
	require.ErrorIs(t, err, ErrEmbeddingBatch)
}

func TestEmbedChunksDimensionMismatchFailsBatch(t *testing.T) {
	client := &fakeEmbeddingClient{
		respond: func(texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{1, 0, 0, 0}
			}
			out[len(out)-1] = []float32{1, 0} // wrong dimensionality
			return out, nil
		},
	}
	em := NewEmbedder(client, "embed-model", 16, 4)

	err := em.EmbedChunks(context.Background(), contentChunks(5))
	require.ErrorIs(t, err, ErrEmbeddingBatch)
	assert.Contains(t, err.Error(), "dimension")
}

func TestEmbedChunksEmptyInput(t *testing.T) {
	client := &fakeEmbeddingClient{}
	em := NewEmbedder(client, "embed-model", 16, 4)

	require.NoError(t, em.EmbedChunks(context.Background(), nil))
	assert.Empty(t, client.calls)
}

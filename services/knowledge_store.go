package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"knowledge-ingest-platform/internal/logger"
	"knowledge-ingest-platform/models"
)

// KnowledgeStore persists chunk sets and answers similarity queries with a
// flat cosine scan over every stored embedding.
type KnowledgeStore struct {
	chunks      ChunkRepository
	embedClient EmbeddingClient
	rdb         *redis.Client
	model       string
	wantDim     int
	cacheTTL    time.Duration
}

func NewKnowledgeStore(chunks ChunkRepository, embedClient EmbeddingClient, rdb *redis.Client, model string, wantDim int, cacheTTL time.Duration) *KnowledgeStore {
	return &KnowledgeStore{
		chunks:      chunks,
		embedClient: embedClient,
		rdb:         rdb,
		model:       model,
		wantDim:     wantDim,
		cacheTTL:    cacheTTL,
	}
}

// ReplaceChunks supersedes all prior chunks of the document with the new set.
// Replace, never merge.
func (ks *KnowledgeStore) ReplaceChunks(ctx context.Context, documentID string, chunks []models.Chunk) error {
	return ks.chunks.Replace(ctx, documentID, chunks)
}

// DeleteDocument removes every chunk belonging to a document.
func (ks *KnowledgeStore) DeleteDocument(ctx context.Context, documentID string) error {
	return ks.chunks.DeleteByDocument(ctx, documentID)
}

// Search ranks all stored chunks by cosine similarity to the query vector,
// filters below minSimilarity, and returns at most topK results. The sort is
// stable so equal scores keep storage order and results stay deterministic.
func (ks *KnowledgeStore) Search(ctx context.Context, queryVec []float32, topK int, minSimilarity float64) ([]models.SearchResult, error) {
	stored, err := ks.chunks.AllEmbedded(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(stored))
	for _, chunk := range stored {
		sim := cosineSimilarity(queryVec, chunk.Embedding)
		if sim < minSimilarity {
			continue
		}
		results = append(results, models.SearchResult{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Content:    chunk.Content,
			Index:      chunk.Index,
			Similarity: sim,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// SearchText embeds the query (with a Redis cache in front of the embedding
// call) and runs Search.
func (ks *KnowledgeStore) SearchText(ctx context.Context, query string, topK int, minSimilarity float64) ([]models.SearchResult, error) {
	queryVec, err := ks.queryEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}
	return ks.Search(ctx, queryVec, topK, minSimilarity)
}

func (ks *KnowledgeStore) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	key := queryCacheKey(query)

	if ks.rdb != nil {
		cached, err := ks.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var vec []float32
			if jsonErr := json.Unmarshal(cached, &vec); jsonErr == nil && len(vec) > 0 {
				return vec, nil
			}
		}
	}

	vectors, err := ks.embedClient.EmbedBatch(ctx, ks.model, []string{query}, ks.wantDim)
	if err != nil {
		return nil, err
	}
	vec := vectors[0]

	// Cache failures never fail the search.
	if ks.rdb != nil {
		if data, err := json.Marshal(vec); err == nil {
			if err := ks.rdb.Set(ctx, key, data, ks.cacheTTL).Err(); err != nil {
				logger.Warn("Query embedding cache write failed", "error", err)
			}
		}
	}
	return vec, nil
}

func queryCacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return "qembed:" + hex.EncodeToString(sum[:])
}

// cosineSimilarity is dot(a,b) / (|a| * |b|). A zero-norm input yields 0,
// not an error.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

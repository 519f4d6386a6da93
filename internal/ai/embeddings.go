package ai

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	genai "github.com/google/generative-ai-go/genai"
)

// EmbedBatch embeds a batch of texts in a single API call and returns one
// vector per input, in input order. The response is validated against the
// request: a count mismatch or a vector of unexpected dimension is an error,
// never a silent partial result.
func (gc *GeminiClient) EmbedBatch(ctx context.Context, model string, texts []string, wantDim int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_batch")
	defer span.End()

	estimatedTokens := estimateTokens(texts...)
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimatedTokens),
		attribute.Int("gemini.batch_size", len(texts)),
		attribute.String("gemini.model", model),
	)

	if !gc.budget.Allow(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, fmt.Errorf("rate limit exceeded: wait before retry")
	}

	if err := gc.limiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		em := gc.client.EmbeddingModel(model)
		batch := em.NewBatch()
		for _, text := range texts {
			batch = batch.AddContent(genai.Text(text))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			span.SetAttributes(attribute.String("gemini.error_message", err.Error()))
			return nil, err
		}

		gc.budget.Spend(estimatedTokens, 1)
		return resp, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, err
	}

	resp := result.(*genai.BatchEmbedContentsResponse)
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		if wantDim > 0 && len(emb.Values) != wantDim {
			return nil, fmt.Errorf("embedding dimension mismatch at index %d: got %d, want %d", i, len(emb.Values), wantDim)
		}
		vectors[i] = emb.Values
	}

	span.SetAttributes(attribute.Bool("gemini.success", true))
	return vectors, nil
}

// EmbedText embeds a single text. Used for search queries.
func (gc *GeminiClient) EmbedText(ctx context.Context, model string, text string, wantDim int) ([]float32, error) {
	vectors, err := gc.EmbedBatch(ctx, model, []string{text}, wantDim)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

package ai

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	genai "github.com/google/generative-ai-go/genai"
)

const ocrPrompt = "Extract all text from this image. Return only the text content, " +
	"preserving paragraph breaks. Do not describe the image or add commentary. " +
	"If the image contains no text, return an empty response."

// OCRImage runs the vision model over a rendered page image and returns the
// recognized text. Format is the image encoding ("png", "jpeg").
func (gc *GeminiClient) OCRImage(ctx context.Context, model string, image []byte, format string) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.ocr_image")
	defer span.End()

	if format == "" {
		format = "png"
	}
	span.SetAttributes(
		attribute.Int("gemini.image_bytes", len(image)),
		attribute.String("gemini.image_format", format),
		attribute.String("gemini.model", model),
	)

	// Image tokens dominate; a page render is roughly a fixed token cost.
	estimatedTokens := 260 + estimateTokens(ocrPrompt)

	if !gc.budget.Allow(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", fmt.Errorf("rate limit exceeded: wait before retry")
	}

	if err := gc.limiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		m := gc.client.GenerativeModel(model)
		m.SetTemperature(0)

		resp, err := m.GenerateContent(ctx,
			genai.ImageData(format, image),
			genai.Text(ocrPrompt),
		)
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			span.SetAttributes(attribute.String("gemini.error_message", err.Error()))
			return nil, err
		}

		actualTokens := extractTokenUsage(resp)
		gc.budget.Spend(actualTokens, 1)
		span.SetAttributes(attribute.Int("gemini.actual_tokens", actualTokens))

		return resp, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", err
	}

	text := responseText(result.(*genai.GenerateContentResponse))
	span.SetAttributes(
		attribute.Bool("gemini.success", true),
		attribute.Int("gemini.ocr_chars", len(text)),
	)
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// Extract token usage from Gemini response
func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}
	return estimateTokens(responseText(resp))
}

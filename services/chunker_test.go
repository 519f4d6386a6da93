package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-ingest-platform/models"
)

func TestChunkTextShortInputSingleChunk(t *testing.T) {
	ck := NewChunker(2000, 200)

	chunks := ck.ChunkText("doc-1", models.MethodNative, "First paragraph.\n\nSecond paragraph.")

	require.Len(t, chunks, 1)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, len(chunks[0].Content), chunks[0].EndOffset)
}

func TestChunkTextEmptyInput(t *testing.T) {
	ck := NewChunker(2000, 200)

	assert.Nil(t, ck.ChunkText("doc-1", models.MethodNative, ""))
	assert.Nil(t, ck.ChunkText("doc-1", models.MethodNative, "   \n\n  \t "))
}

func TestChunkTextOverlapScenario(t *testing.T) {
	// 15 paragraphs of exactly 300 chars each, blank-line separated: text
	// body of 4500 content chars. Expect 3 chunks, each within bounds, with
	// chunks 2 and 3 seeded by the last 200 chars of their predecessor.
	para := strings.Repeat("x", 300)
	paragraphs := make([]string, 15)
	for i := range paragraphs {
		paragraphs[i] = para
	}
	text := strings.Join(paragraphs, "\n\n")

	ck := NewChunker(2000, 200)
	chunks := ck.ChunkText("doc-1", models.MethodNative, text)

	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 2000, "chunk %d exceeds bound", i)
		assert.Equal(t, i, c.Index)
	}

	prevTail := chunks[0].Content[len(chunks[0].Content)-200:]
	assert.True(t, strings.HasPrefix(chunks[1].Content, prevTail),
		"chunk 2 must start with the last 200 chars of chunk 1")

	prevTail = chunks[1].Content[len(chunks[1].Content)-200:]
	assert.True(t, strings.HasPrefix(chunks[2].Content, prevTail),
		"chunk 3 must start with the last 200 chars of chunk 2")
}

func TestChunkTextForcedSplitOversizedParagraph(t *testing.T) {
	// A single 4500-char paragraph with no blank lines force-splits into
	// fixed slices with no overlap.
	text := strings.Repeat("a", 4500)

	ck := NewChunker(2000, 200)
	chunks := ck.ChunkText("doc-1", models.MethodNative, text)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Content, 2000)
	assert.Len(t, chunks[1].Content, 2000)
	assert.Len(t, chunks[2].Content, 500)

	total := 0
	for _, c := range chunks {
		total += len(c.Content)
	}
	assert.Equal(t, 4500, total, "forced split must not duplicate text")
}

func TestChunkTextDenseIndices(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString(strings.Repeat("w", 150))
		sb.WriteString("\n\n")
	}

	ck := NewChunker(1000, 100)
	chunks := ck.ChunkText("doc-1", models.MethodNative, sb.String())

	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.NotEmpty(t, c.Content)
		assert.Equal(t, "doc-1", c.DocumentID)
		assert.NotEmpty(t, c.ID)
		assert.Positive(t, c.TokenCount)
	}
}

func TestChunkTextLengthBound(t *testing.T) {
	// Mixed paragraph sizes, all below max: no emitted chunk may exceed it.
	var parts []string
	for i := 0; i < 30; i++ {
		parts = append(parts, strings.Repeat("p", 50+i*37))
	}
	text := strings.Join(parts, "\n\n")

	ck := NewChunker(1500, 150)
	for _, c := range ck.ChunkText("doc-1", models.MethodNative, text) {
		assert.LessOrEqual(t, len(c.Content), 1500+150+2,
			"chunk may carry at most the overlap seed beyond max")
	}
}

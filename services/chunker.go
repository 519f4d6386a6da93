package services

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"knowledge-ingest-platform/models"
)

var paragraphRegex = regexp.MustCompile(`\n\s*\n`)

// Chunker slices extracted text into bounded, overlapping chunks along
// paragraph boundaries.
type Chunker struct {
	maxChars int
	overlap  int
}

func NewChunker(maxChars, overlap int) *Chunker {
	return &Chunker{maxChars: maxChars, overlap: overlap}
}

type piece struct {
	content string
	seedLen int // leading characters repeated from the previous piece
}

// ChunkText splits text into chunks of at most maxChars characters. Splits
// happen on blank-line paragraph boundaries; each new chunk is seeded with the
// last overlap characters of the previous one so context survives the cut.
// A single paragraph longer than maxChars is force-split into fixed-size
// slices with no overlap inside the split.
func (ck *Chunker) ChunkText(documentID, method, text string) []models.Chunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var pieces []piece
	cur := ""
	curSeed := 0

	flush := func() {
		if cur != "" {
			pieces = append(pieces, piece{content: cur, seedLen: curSeed})
			cur = ""
			curSeed = 0
		}
	}

	for _, para := range paragraphRegex.Split(trimmed, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) > ck.maxChars {
			flush()
			for start := 0; start < len(para); start += ck.maxChars {
				end := start + ck.maxChars
				if end > len(para) {
					end = len(para)
				}
				pieces = append(pieces, piece{content: para[start:end]})
			}
			continue
		}

		if cur == "" {
			cur = para
			continue
		}

		if len(cur)+2+len(para) > ck.maxChars {
			seed := overlapTail(cur, ck.overlap)
			flush()
			if seed != "" {
				cur = seed + "\n\n" + para
				curSeed = len(seed)
			} else {
				cur = para
			}
			continue
		}

		cur += "\n\n" + para
	}
	flush()

	now := time.Now()
	chunks := make([]models.Chunk, 0, len(pieces))
	offset := 0
	for _, p := range pieces {
		content := strings.TrimSpace(p.content)
		if content == "" {
			continue
		}
		start := offset - p.seedLen
		if start < 0 {
			start = 0
		}
		chunks = append(chunks, models.Chunk{
			ID:          uuid.New().String(),
			DocumentID:  documentID,
			Index:       len(chunks),
			Content:     content,
			TokenCount:  estimateTokenCount(content),
			StartOffset: start,
			EndOffset:   start + len(content),
			Method:      method,
			CreatedAt:   now,
		})
		offset = start + len(content)
	}
	return chunks
}

// overlapTail returns the exact last n characters of a chunk, or the whole
// chunk when it is shorter than n.
func overlapTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Rough estimation: 1 token is about 4 characters.
func estimateTokenCount(text string) int {
	count := len(text) / 4
	if count < 1 {
		count = 1
	}
	return count
}

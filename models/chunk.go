package models

import "time"

// Chunk is one bounded slice of a document's text, the unit of embedding and retrieval.
// Embedding is nil until the embedding generator has run; once written it is
// immutable — re-ingestion replaces the whole chunk set for a document.
type Chunk struct {
	ID          string    `bson:"_id" json:"id"`
	DocumentID  string    `bson:"document_id" json:"document_id"`
	Index       int       `bson:"chunk_index" json:"chunk_index"` // dense, zero-based
	Content     string    `bson:"content" json:"content"`
	TokenCount  int       `bson:"token_count" json:"token_count"` // estimated
	StartOffset int       `bson:"start_offset" json:"start_offset"`
	EndOffset   int       `bson:"end_offset" json:"end_offset"`
	Method      string    `bson:"method,omitempty" json:"method,omitempty"`
	Embedding   []float32 `bson:"embedding,omitempty" json:"-"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// SearchResult is one ranked hit from the cosine-similarity search.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	Index      int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
}

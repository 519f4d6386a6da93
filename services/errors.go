package services

import "errors"

// Sentinel errors surfaced by the pipeline. Handlers map these to HTTP codes
// and the worker maps them to retry decisions.
var (
	// ErrClaimConflict means the document is not claimable: another worker
	// holds the lease or the document already reached a terminal status.
	ErrClaimConflict = errors.New("document is not in a claimable state")

	// ErrMaxAttempts means the attempt cap was reached and the document has
	// been moved to failed permanently.
	ErrMaxAttempts = errors.New("max processing attempts exceeded")

	// ErrDocumentNotFound means no document exists for the given id.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrExtractionEmpty means extraction produced no usable text. Terminal
	// for the attempt; a later attempt may still succeed.
	ErrExtractionEmpty = errors.New("extraction produced no text")

	// ErrEmbeddingBatch means an embedding batch failed or returned a
	// malformed response. The document fails for this attempt rather than
	// storing misaligned vectors.
	ErrEmbeddingBatch = errors.New("embedding batch failed")
)

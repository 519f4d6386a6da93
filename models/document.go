package models

import (
	"time"
)

// Document represents an uploaded document moving through the ingestion pipeline
type Document struct {
	ID          string           `bson:"_id" json:"id"`
	Filename    string           `bson:"filename" json:"filename"`
	FilePath    string           `bson:"file_path" json:"file_path"` // Storage path
	MimeType    string           `bson:"mime_type" json:"mime_type"`
	Size        int64            `bson:"size" json:"size"`
	Status      string           `bson:"status" json:"status"` // pending, processing, completed, failed
	Attempts    int              `bson:"attempts" json:"attempts"`
	Progress    int              `bson:"progress" json:"progress"` // 0-100
	ChunkCount  int              `bson:"chunk_count" json:"chunk_count"`
	StartedAt   *time.Time       `bson:"started_at,omitempty" json:"started_at,omitempty"`
	DeadlineAt  *time.Time       `bson:"deadline_at,omitempty" json:"deadline_at,omitempty"`
	CompletedAt *time.Time       `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	LastError   *ProcessingError `bson:"last_error,omitempty" json:"last_error,omitempty"`
	CreatedAt   time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `bson:"updated_at" json:"updated_at"`
}

// ProcessingError is the structured failure reason surfaced on a document
type ProcessingError struct {
	Code       string    `bson:"code" json:"code"`
	Message    string    `bson:"message" json:"message"`
	OccurredAt time.Time `bson:"occurred_at" json:"occurred_at"`
}

// Document status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Extraction method constants per page/chunk
const (
	MethodNative   = "native"   // embedded text layer
	MethodOCR      = "ocr"      // vision OCR of rendered page
	MethodFallback = "fallback" // weak text layer kept after OCR failure
	MethodText     = "text"     // plain-text decode
)

// IsTerminal reports whether the status ends a document's lifecycle.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

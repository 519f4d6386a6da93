package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"knowledge-ingest-platform/internal/logger"
	"knowledge-ingest-platform/internal/telemetry"
	"knowledge-ingest-platform/models"
)

// Pipeline runs one document end to end: claim, extract, chunk, embed,
// persist, mark terminal. Every state transition is persisted through the
// lease manager; a crashed run leaves a record the health monitor can see.
type Pipeline struct {
	lease     *LeaseManager
	extractor *Extractor
	chunker   *Chunker
	embedder  *Embedder
	store     *KnowledgeStore
	metrics   *telemetry.Metrics

	storageDir         string
	completeOnDeadline bool
}

func NewPipeline(
	lease *LeaseManager,
	extractor *Extractor,
	chunker *Chunker,
	embedder *Embedder,
	store *KnowledgeStore,
	metrics *telemetry.Metrics,
	storageDir string,
	completeOnDeadline bool,
) *Pipeline {
	return &Pipeline{
		lease:              lease,
		extractor:          extractor,
		chunker:            chunker,
		embedder:           embedder,
		store:              store,
		metrics:            metrics,
		storageDir:         storageDir,
		completeOnDeadline: completeOnDeadline,
	}
}

// Process claims the document and drives it to a terminal state. Returns
// ErrClaimConflict / ErrMaxAttempts when the claim is not granted; any other
// error means the attempt failed and the document was released or failed
// accordingly.
func (p *Pipeline) Process(ctx context.Context, documentID string) error {
	start := time.Now()

	tracer := otel.Tracer("ingest-pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", documentID))

	doc, err := p.lease.Claim(ctx, documentID)
	if err != nil {
		return err
	}

	// The lease deadline bounds extraction (where OCR time goes); later
	// stages run on the parent context so a best-effort completion is not
	// cut off mid-write.
	extractCtx := ctx
	var cancel context.CancelFunc
	if doc.DeadlineAt != nil {
		extractCtx, cancel = context.WithDeadline(ctx, *doc.DeadlineAt)
		defer cancel()
	}

	fileBytes, err := p.loadFile(doc)
	if err != nil {
		p.fail(ctx, documentID, "file_read", err.Error(), start)
		return err
	}
	p.lease.SetProgress(ctx, documentID, 10)

	result, err := p.extractor.Extract(extractCtx, fileBytes, doc.MimeType)
	if err != nil {
		p.fail(ctx, documentID, "extraction", err.Error(), start)
		return err
	}

	deadlineHit := extractCtx.Err() != nil
	if deadlineHit {
		span.SetAttributes(attribute.Bool("pipeline.deadline_hit", true))
		if !p.completeOnDeadline {
			p.release(ctx, documentID, "deadline", "pipeline deadline exceeded during extraction", start)
			return extractCtx.Err()
		}
		logger.Warn("Deadline hit during extraction, continuing with partial text",
			"document_id", documentID, "ocr_pages", result.OCRPages)
	}

	if strings.TrimSpace(result.Text) == "" {
		p.release(ctx, documentID, "extraction_empty", "no usable text after OCR fallback", start)
		return fmt.Errorf("document %s: %w", documentID, ErrExtractionEmpty)
	}
	p.lease.SetProgress(ctx, documentID, 40)

	chunks := p.chunker.ChunkText(documentID, result.Method, result.Text)
	if len(chunks) == 0 {
		p.release(ctx, documentID, "extraction_empty", "extracted text reduced to zero chunks", start)
		return fmt.Errorf("document %s: %w", documentID, ErrExtractionEmpty)
	}
	span.SetAttributes(
		attribute.Int("pipeline.chunks", len(chunks)),
		attribute.Int("pipeline.pages", result.PageCount),
		attribute.Int("pipeline.ocr_pages", result.OCRPages),
	)
	p.lease.SetProgress(ctx, documentID, 55)

	if err := p.embedder.EmbedChunks(ctx, chunks); err != nil {
		// Batch failure fails the attempt; the vectors written so far are
		// discarded with the release, never persisted misaligned.
		p.release(ctx, documentID, "embedding_batch", err.Error(), start)
		return err
	}
	p.lease.SetProgress(ctx, documentID, 85)

	if err := p.store.ReplaceChunks(ctx, documentID, chunks); err != nil {
		p.release(ctx, documentID, "store_write", err.Error(), start)
		return err
	}

	if err := p.lease.MarkCompleted(ctx, documentID, len(chunks)); err != nil {
		return err
	}

	if p.metrics != nil {
		p.metrics.RecordPipeline(time.Since(start).Seconds(), models.StatusCompleted, result.Method)
		p.metrics.RecordPagesOCRed(int64(result.OCRPages))
		p.metrics.RecordChunksStored(int64(len(chunks)), documentID)
	}
	logger.Info("Document ingested",
		"document_id", documentID,
		"chunks", len(chunks),
		"pages", result.PageCount,
		"ocr_pages", result.OCRPages,
		"method", result.Method,
		"duration", time.Since(start),
	)
	return nil
}

func (p *Pipeline) loadFile(doc *models.Document) ([]byte, error) {
	path := doc.FilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.storageDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document file: %w", err)
	}
	return data, nil
}

// release returns the document to pending for a later attempt.
func (p *Pipeline) release(ctx context.Context, documentID, code, message string, start time.Time) {
	if err := p.lease.Release(ctx, documentID, code, message); err != nil {
		logger.Error("Failed to release document lease", "document_id", documentID, "error", err)
	}
	if p.metrics != nil {
		p.metrics.RecordPipeline(time.Since(start).Seconds(), models.StatusPending, code)
	}
	logger.Warn("Document attempt failed, returned to pending",
		"document_id", documentID, "code", code, "message", message)
}

// fail moves the document straight to failed with a structured reason.
func (p *Pipeline) fail(ctx context.Context, documentID, code, message string, start time.Time) {
	if err := p.lease.MarkFailed(ctx, documentID, code, message); err != nil {
		logger.Error("Failed to mark document failed", "document_id", documentID, "error", err)
	}
	if p.metrics != nil {
		p.metrics.RecordPipeline(time.Since(start).Seconds(), models.StatusFailed, code)
	}
	logger.Error("Document failed", "document_id", documentID, "code", code, "message", message)
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"knowledge-ingest-platform/internal/logger"
	"knowledge-ingest-platform/services"
)

const (
	TaskIngestDocument = "document:ingest"
	TaskHealthSweep    = "health:sweep"
)

type IngestPayload struct {
	DocumentID string `json:"document_id"`
}

// NewIngestTask builds an asynq task that runs the ingestion pipeline for one
// document. Retries are left to the lease layer: the pipeline re-claims on
// each attempt and gives up once the attempt cap is hit.
func NewIngestTask(documentID string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{DocumentID: documentID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// NewHealthSweepTask builds a low-priority task that runs one health sweep.
func NewHealthSweepTask() (*asynq.Task, error) {
	return asynq.NewTask(
		TaskHealthSweep,
		nil,
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Minute),
		asynq.Queue("default"),
	), nil
}

// Task handlers
type TaskProcessor struct {
	pipeline *services.Pipeline
	monitor  *services.HealthMonitor
}

func NewTaskProcessor(pipeline *services.Pipeline, monitor *services.HealthMonitor) *TaskProcessor {
	return &TaskProcessor{
		pipeline: pipeline,
		monitor:  monitor,
	}
}

func (p *TaskProcessor) ProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("Processing document", "document_id", payload.DocumentID)

	err := p.pipeline.Process(ctx, payload.DocumentID)
	if err != nil {
		// Another worker holds the lease, or the document already reached a
		// terminal status. Retrying would only duplicate work.
		if errors.Is(err, services.ErrClaimConflict) {
			logger.Warn("Document claim conflict, skipping", "document_id", payload.DocumentID)
			return asynq.SkipRetry
		}
		if errors.Is(err, services.ErrMaxAttempts) {
			logger.Warn("Document exhausted attempts", "document_id", payload.DocumentID)
			return asynq.SkipRetry
		}
		logger.Error("Document pipeline failed", "document_id", payload.DocumentID, "error", err)
		return err // Will retry
	}

	logger.Info("Document processed successfully", "document_id", payload.DocumentID)
	return nil
}

func (p *TaskProcessor) RunHealthSweep(ctx context.Context, t *asynq.Task) error {
	report, err := p.monitor.Sweep(ctx)
	if err != nil {
		return err
	}

	logger.Info("Health sweep finished",
		"pending", report.System.PendingDocuments,
		"processing", report.System.ProcessingDocuments,
		"stalled", len(report.Stalled),
		"embedding_gaps", len(report.EmbeddingGaps),
	)
	return nil
}

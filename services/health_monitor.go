package services

import (
	"context"
	"errors"
	"time"

	"knowledge-ingest-platform/models"
)

// StallThresholds are the elapsed-time cutoffs for escalating stall severity.
type StallThresholds struct {
	Medium   time.Duration
	High     time.Duration
	Critical time.Duration
}

// HealthMonitor is a read-only aggregator over persisted pipeline state. It
// mutates nothing; its reports gate alerting, never the pipeline itself.
type HealthMonitor struct {
	docs       DocumentRepository
	chunks     ChunkRepository
	thresholds StallThresholds
}

// HealthReport is the combined output of one sweep.
type HealthReport struct {
	System        *models.SystemHealth        `json:"system"`
	Stalled       []models.StalledDocument    `json:"stalled"`
	EmbeddingGaps []models.EmbeddingGap       `json:"embedding_gaps"`
	Dimensions    *models.DimensionDiagnostic `json:"dimensions"`
}

func NewHealthMonitor(docs DocumentRepository, chunks ChunkRepository, thresholds StallThresholds) *HealthMonitor {
	return &HealthMonitor{
		docs:       docs,
		chunks:     chunks,
		thresholds: thresholds,
	}
}

// SystemStatus reports document counts by status plus the derived health
// flags.
func (hm *HealthMonitor) SystemStatus(ctx context.Context) (*models.SystemHealth, error) {
	counts, err := hm.docs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stalled, err := hm.StalledDocuments(ctx)
	if err != nil {
		return nil, err
	}

	gaps, err := hm.EmbeddingGaps(ctx)
	if err != nil {
		return nil, err
	}

	dims, err := hm.DimensionDiagnostic(ctx)
	if err != nil {
		return nil, err
	}

	health := &models.SystemHealth{
		PendingDocuments:    int(counts[models.StatusPending]),
		ProcessingDocuments: int(counts[models.StatusProcessing]),
		CompletedDocuments:  int(counts[models.StatusCompleted]),
		FailedDocuments:     int(counts[models.StatusFailed]),
		StalledDocuments:    len(stalled),
		EmbeddingGaps:       len(gaps),
		DimensionUniform:    dims.Uniform,
		CheckedAt:           time.Now(),
	}
	for _, c := range counts {
		health.TotalDocuments += int(c)
	}
	health.Healthy = health.StalledDocuments == 0 && health.EmbeddingGaps == 0 && dims.Uniform
	return health, nil
}

// StalledDocuments flags processing documents whose elapsed time since
// started_at passed the medium threshold, with severity escalating at the
// high and critical cutoffs.
func (hm *HealthMonitor) StalledDocuments(ctx context.Context) ([]models.StalledDocument, error) {
	now := time.Now()
	cutoff := now.Add(-hm.thresholds.Medium)

	docs, err := hm.docs.FindProcessingStartedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	stalled := make([]models.StalledDocument, 0, len(docs))
	for _, doc := range docs {
		if doc.StartedAt == nil {
			continue
		}
		elapsed := now.Sub(*doc.StartedAt)
		stalled = append(stalled, models.StalledDocument{
			DocumentID:   doc.ID,
			StartedAt:    *doc.StartedAt,
			MinutesStuck: int(elapsed.Minutes()),
			Progress:     doc.Progress,
			Attempts:     doc.Attempts,
			Severity:     hm.severity(elapsed),
		})
	}
	return stalled, nil
}

func (hm *HealthMonitor) severity(elapsed time.Duration) string {
	switch {
	case elapsed >= hm.thresholds.Critical:
		return models.StallCritical
	case elapsed >= hm.thresholds.High:
		return models.StallHigh
	default:
		return models.StallMedium
	}
}

// EmbeddingGaps flags completed documents that have chunks without
// embeddings. A gap on a completed document means the pipeline recorded
// success without finishing its write, which should never happen.
func (hm *HealthMonitor) EmbeddingGaps(ctx context.Context) ([]models.EmbeddingGap, error) {
	missing, err := hm.chunks.MissingEmbeddingCounts(ctx)
	if err != nil {
		return nil, err
	}

	gaps := make([]models.EmbeddingGap, 0)
	for documentID, count := range missing {
		doc, err := hm.docs.Get(ctx, documentID)
		if err != nil {
			if errors.Is(err, ErrDocumentNotFound) {
				continue // orphan chunks are a different problem
			}
			return nil, err
		}
		if doc.Status != models.StatusCompleted {
			continue
		}

		gap := models.EmbeddingGap{
			DocumentID:        documentID,
			TotalChunks:       doc.ChunkCount,
			MissingEmbeddings: int(count),
		}
		if doc.ChunkCount > 0 {
			gap.GapPercentage = float64(count) / float64(doc.ChunkCount) * 100
		}
		gaps = append(gaps, gap)
	}
	return gaps, nil
}

// DimensionDiagnostic computes embedding-dimension uniformity across all
// stored vectors. Every vector off the modal dimension is reported invalid.
func (hm *HealthMonitor) DimensionDiagnostic(ctx context.Context) (*models.DimensionDiagnostic, error) {
	chunks, err := hm.chunks.AllEmbedded(ctx)
	if err != nil {
		return nil, err
	}

	diag := &models.DimensionDiagnostic{
		TotalVectors: len(chunks),
		Uniform:      true,
		CheckedAt:    time.Now(),
	}
	if len(chunks) == 0 {
		return diag, nil
	}

	histogram := make(map[int]int)
	for _, chunk := range chunks {
		dim := len(chunk.Embedding)
		histogram[dim]++
		if diag.MinDimension == 0 || dim < diag.MinDimension {
			diag.MinDimension = dim
		}
		if dim > diag.MaxDimension {
			diag.MaxDimension = dim
		}
	}

	modal, modalCount := 0, 0
	for dim, count := range histogram {
		if count > modalCount || (count == modalCount && dim > modal) {
			modal, modalCount = dim, count
		}
	}
	diag.ModalDimension = modal

	for _, chunk := range chunks {
		if len(chunk.Embedding) != modal {
			diag.InvalidChunks = append(diag.InvalidChunks, chunk.ID)
		}
	}
	diag.Uniform = len(diag.InvalidChunks) == 0
	return diag, nil
}

// Sweep runs every check once and returns the combined report.
func (hm *HealthMonitor) Sweep(ctx context.Context) (*HealthReport, error) {
	system, err := hm.SystemStatus(ctx)
	if err != nil {
		return nil, err
	}
	stalled, err := hm.StalledDocuments(ctx)
	if err != nil {
		return nil, err
	}
	gaps, err := hm.EmbeddingGaps(ctx)
	if err != nil {
		return nil, err
	}
	dims, err := hm.DimensionDiagnostic(ctx)
	if err != nil {
		return nil, err
	}

	return &HealthReport{
		System:        system,
		Stalled:       stalled,
		EmbeddingGaps: gaps,
		Dimensions:    dims,
	}, nil
}

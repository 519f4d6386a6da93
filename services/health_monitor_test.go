package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-ingest-platform/models"
)

func testThresholds() StallThresholds {
	return StallThresholds{
		Medium:   15 * time.Minute,
		High:     30 * time.Minute,
		Critical: 60 * time.Minute,
	}
}

func processingDocStartedAgo(id string, ago time.Duration) *models.Document {
	started := time.Now().Add(-ago)
	return &models.Document{
		ID:        id,
		Status:    models.StatusProcessing,
		Attempts:  1,
		StartedAt: &started,
	}
}

func TestStalledDocumentsSeverityEscalation(t *testing.T) {
	docs := newFakeDocumentRepository()
	docs.put(processingDocStartedAgo("fresh", 5*time.Minute))
	docs.put(processingDocStartedAgo("medium", 20*time.Minute))
	docs.put(processingDocStartedAgo("high", 45*time.Minute))
	docs.put(processingDocStartedAgo("critical", 90*time.Minute))

	hm := NewHealthMonitor(docs, newFakeChunkRepository(), testThresholds())
	stalled, err := hm.StalledDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, stalled, 3, "documents under the medium threshold are not stalled")

	severities := make(map[string]string)
	for _, s := range stalled {
		severities[s.DocumentID] = s.Severity
	}
	assert.Equal(t, models.StallMedium, severities["medium"])
	assert.Equal(t, models.StallHigh, severities["high"])
	assert.Equal(t, models.StallCritical, severities["critical"])
}

func TestEmbeddingGapsOnlyCompletedDocuments(t *testing.T) {
	docs := newFakeDocumentRepository()
	docs.put(&models.Document{ID: "done", Status: models.StatusCompleted, ChunkCount: 4})
	docs.put(&models.Document{ID: "running", Status: models.StatusProcessing})

	chunks := newFakeChunkRepository()
	chunks.chunks = append(chunks.chunks,
		testChunk("done", 0, []float32{1, 0, 0}),
		testChunk("done", 1, nil), // the gap
		testChunk("done", 2, []float32{0, 1, 0}),
		testChunk("done", 3, nil), // the gap
		testChunk("running", 0, nil),
	)

	hm := NewHealthMonitor(docs, chunks, testThresholds())
	gaps, err := hm.EmbeddingGaps(context.Background())
	require.NoError(t, err)
	require.Len(t, gaps, 1, "in-flight documents are expected to have bare chunks")

	assert.Equal(t, "done", gaps[0].DocumentID)
	assert.Equal(t, 2, gaps[0].MissingEmbeddings)
	assert.Equal(t, 4, gaps[0].TotalChunks)
	assert.InDelta(t, 50.0, gaps[0].GapPercentage, 1e-9)
}

func TestDimensionDiagnosticDetectsDrift(t *testing.T) {
	chunks := newFakeChunkRepository()
	chunks.chunks = append(chunks.chunks,
		testChunk("doc-1", 0, make([]float32, 768)),
		testChunk("doc-1", 1, make([]float32, 768)),
		testChunk("doc-2", 0, make([]float32, 768)),
		testChunk("doc-2", 1, make([]float32, 512)), // drifted
	)

	hm := NewHealthMonitor(newFakeDocumentRepository(), chunks, testThresholds())
	diag, err := hm.DimensionDiagnostic(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, diag.TotalVectors)
	assert.Equal(t, 768, diag.ModalDimension)
	assert.Equal(t, 512, diag.MinDimension)
	assert.Equal(t, 768, diag.MaxDimension)
	assert.False(t, diag.Uniform)
	assert.Equal(t, []string{"doc-2-chunk-1"}, diag.InvalidChunks)
}

func TestDimensionDiagnosticUniformStore(t *testing.T) {
	chunks := newFakeChunkRepository()
	for i := 0; i < 3; i++ {
		chunks.chunks = append(chunks.chunks, testChunk("doc-1", i, make([]float32, 768)))
	}

	hm := NewHealthMonitor(newFakeDocumentRepository(), chunks, testThresholds())
	diag, err := hm.DimensionDiagnostic(context.Background())
	require.NoError(t, err)

	assert.True(t, diag.Uniform)
	assert.Empty(t, diag.InvalidChunks)
	assert.Equal(t, 768, diag.ModalDimension)
}

func TestDimensionDiagnosticEmptyStore(t *testing.T) {
	hm := NewHealthMonitor(newFakeDocumentRepository(), newFakeChunkRepository(), testThresholds())
	diag, err := hm.DimensionDiagnostic(context.Background())
	require.NoError(t, err)
	assert.True(t, diag.Uniform)
	assert.Equal(t, 0, diag.TotalVectors)
}

func TestSystemStatusAggregates(t *testing.T) {
	docs := newFakeDocumentRepository()
	docs.put(&models.Document{ID: "a", Status: models.StatusPending})
	docs.put(&models.Document{ID: "b", Status: models.StatusCompleted, ChunkCount: 1})
	docs.put(processingDocStartedAgo("c", 40*time.Minute))
	docs.put(&models.Document{ID: "d", Status: models.StatusFailed})

	chunks := newFakeChunkRepository()
	chunks.chunks = append(chunks.chunks, testChunk("b", 0, []float32{1, 2, 3}))

	hm := NewHealthMonitor(docs, chunks, testThresholds())
	health, err := hm.SystemStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, health.TotalDocuments)
	assert.Equal(t, 1, health.PendingDocuments)
	assert.Equal(t, 1, health.ProcessingDocuments)
	assert.Equal(t, 1, health.CompletedDocuments)
	assert.Equal(t, 1, health.FailedDocuments)
	assert.Equal(t, 1, health.StalledDocuments)
	assert.Equal(t, 0, health.EmbeddingGaps)
	assert.True(t, health.DimensionUniform)
	assert.False(t, health.Healthy, "a stalled document marks the system unhealthy")
}

func TestSweepCombinedReport(t *testing.T) {
	docs := newFakeDocumentRepository()
	docs.put(&models.Document{ID: "done", Status: models.StatusCompleted, ChunkCount: 1})

	chunks := newFakeChunkRepository()
	chunks.chunks = append(chunks.chunks, testChunk("done", 0, nil))

	hm := NewHealthMonitor(docs, chunks, testThresholds())
	report, err := hm.Sweep(context.Background())
	require.NoError(t, err)

	require.NotNil(t, report.System)
	require.NotNil(t, report.Dimensions)
	assert.Len(t, report.EmbeddingGaps, 1)
	assert.Empty(t, report.Stalled)
	assert.False(t, report.System.Healthy)
}

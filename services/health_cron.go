package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"knowledge-ingest-platform/internal/logger"
)

// HealthSweeper runs the health monitor on a fixed interval and logs what it
// finds. It is the out-of-band counterpart to the on-demand health endpoints.
type HealthSweeper struct {
	scheduler *gocron.Scheduler
	monitor   *HealthMonitor
	interval  time.Duration
}

func NewHealthSweeper(monitor *HealthMonitor, interval time.Duration) *HealthSweeper {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &HealthSweeper{
		scheduler: s,
		monitor:   monitor,
		interval:  interval,
	}
}

// Start schedules the periodic sweep and returns immediately.
func (hs *HealthSweeper) Start() error {
	_, err := hs.scheduler.Every(hs.interval).Tag("health-sweep").Do(hs.runOnce)
	if err != nil {
		return err
	}
	hs.scheduler.StartAsync()
	logger.Info("Health sweeper started", "interval", hs.interval)
	return nil
}

// Stop halts the scheduler. An in-progress sweep finishes on its own.
func (hs *HealthSweeper) Stop() {
	hs.scheduler.Stop()
}

func (hs *HealthSweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := hs.monitor.Sweep(ctx)
	if err != nil {
		logger.Error("Health sweep failed", "error", err)
		return
	}

	for _, stalled := range report.Stalled {
		logger.Warn("Stalled document detected",
			"document_id", stalled.DocumentID,
			"minutes_stuck", stalled.MinutesStuck,
			"severity", stalled.Severity,
			"attempts", stalled.Attempts,
		)
	}
	for _, gap := range report.EmbeddingGaps {
		logger.Warn("Embedding gap detected",
			"document_id", gap.DocumentID,
			"missing", gap.MissingEmbeddings,
			"total", gap.TotalChunks,
		)
	}
	if !report.Dimensions.Uniform {
		logger.Error("Embedding dimension drift detected",
			"modal_dimension", report.Dimensions.ModalDimension,
			"invalid_chunks", len(report.Dimensions.InvalidChunks),
		)
	}

	logger.Info("Health sweep completed",
		"total_documents", report.System.TotalDocuments,
		"processing", report.System.ProcessingDocuments,
		"stalled", len(report.Stalled),
		"healthy", report.System.Healthy,
	)
}

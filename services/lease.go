package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"knowledge-ingest-platform/internal/logger"
	"knowledge-ingest-platform/models"
)

// LeaseManager hands out exclusive processing leases on documents. All state
// lives in the document record itself; a restarted worker sees exactly what
// the last persisted transition left behind.
type LeaseManager struct {
	docs        DocumentRepository
	maxAttempts int
	leaseWindow time.Duration
}

func NewLeaseManager(docs DocumentRepository, maxAttempts int, leaseWindow time.Duration) *LeaseManager {
	return &LeaseManager{
		docs:        docs,
		maxAttempts: maxAttempts,
		leaseWindow: leaseWindow,
	}
}

// Claim acquires the processing lease for a document. Only a pending document
// can be claimed; the conditional write in the repository is the sole
// concurrency control, so two workers racing for the same document resolve to
// exactly one winner.
func (lm *LeaseManager) Claim(ctx context.Context, documentID string) (*models.Document, error) {
	doc, err := lm.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if doc.Status != models.StatusPending {
		return nil, fmt.Errorf("document %s is %s: %w", documentID, doc.Status, ErrClaimConflict)
	}

	// A document that already burned every attempt while pending (worker
	// crashed before reporting) is failed permanently on the next claim.
	if doc.Attempts >= lm.maxAttempts {
		perr := models.ProcessingError{
			Code:       "max_attempts",
			Message:    fmt.Sprintf("exceeded %d processing attempts", lm.maxAttempts),
			OccurredAt: time.Now(),
		}
		if ferr := lm.docs.MarkFailed(ctx, documentID, perr); ferr != nil {
			return nil, ferr
		}
		logger.Warn("Document failed permanently", "document_id", documentID, "attempts", doc.Attempts)
		return nil, ErrMaxAttempts
	}

	now := time.Now()
	claimed, err := lm.docs.ClaimPending(ctx, documentID, now, now.Add(lm.leaseWindow))
	if err != nil {
		if errors.Is(err, ErrClaimConflict) {
			// Lost the race between the status check and the write.
			return nil, fmt.Errorf("document %s: %w", documentID, ErrClaimConflict)
		}
		return nil, err
	}

	logger.Info("Claimed document",
		"document_id", documentID,
		"attempt", claimed.Attempts,
		"deadline_at", claimed.DeadlineAt,
	)
	return claimed, nil
}

// MarkCompleted finalizes a successful run. Idempotent: re-marking a
// completed document rewrites the same terminal state.
func (lm *LeaseManager) MarkCompleted(ctx context.Context, documentID string, chunkCount int) error {
	return lm.docs.MarkCompleted(ctx, documentID, chunkCount)
}

// MarkFailed records a failure reason and moves the document to failed.
func (lm *LeaseManager) MarkFailed(ctx context.Context, documentID, code, message string) error {
	return lm.docs.MarkFailed(ctx, documentID, models.ProcessingError{
		Code:       code,
		Message:    message,
		OccurredAt: time.Now(),
	})
}

// Release returns a claimed document to pending so a later attempt can pick
// it up. The attempt already spent stays spent; once the cap is reached the
// next Claim fails it permanently.
func (lm *LeaseManager) Release(ctx context.Context, documentID, code, message string) error {
	return lm.docs.ReturnToPending(ctx, documentID, models.ProcessingError{
		Code:       code,
		Message:    message,
		OccurredAt: time.Now(),
	})
}

// SetProgress persists pipeline progress, clamped to 0-100.
func (lm *LeaseManager) SetProgress(ctx context.Context, documentID string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return lm.docs.SetProgress(ctx, documentID, progress)
}

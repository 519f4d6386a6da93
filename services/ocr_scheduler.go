package services

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"knowledge-ingest-platform/internal/logger"
)

// PageTask is one page awaiting OCR. Render produces the page image on
// demand; Fallback is the weak text layer used when OCR cannot run or fails.
type PageTask struct {
	PageIndex int
	Render    func(ctx context.Context) ([]byte, error)
	Format    string // image encoding, defaults to "png"
	Fallback  string
}

// OCRClient is the vision call the scheduler dispatches. Implemented by the
// shared Gemini client in production and by fakes in tests.
type OCRClient interface {
	OCRImage(ctx context.Context, model string, image []byte, format string) (string, error)
}

// OCRScheduler dispatches per-page OCR calls with a bounded in-flight set and
// a throttle between task starts. The two limits are independent: the
// semaphore caps concurrency, the limiter spaces out dispatches.
type OCRScheduler struct {
	client         OCRClient
	model          string
	maxConcurrency int
	limiter        *rate.Limiter
}

func NewOCRScheduler(client OCRClient, model string, maxConcurrency int, throttle rate.Limit) *OCRScheduler {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &OCRScheduler{
		client:         client,
		model:          model,
		maxConcurrency: maxConcurrency,
		limiter:        rate.NewLimiter(throttle, 1),
	}
}

// RunQueue processes all queued pages and returns text keyed by page index.
// The context carries the pipeline deadline: once it expires no new task
// starts, but tasks already dispatched run to completion on their own
// (cooperative cancellation, never killed). A page whose render or OCR call
// fails resolves to its fallback text; one page can never fail the queue.
// The returned map may be partial when the deadline fires mid-queue.
func (s *OCRScheduler) RunQueue(ctx context.Context, pages []PageTask) map[int]string {
	results := make(map[int]string, len(pages))
	if len(pages) == 0 {
		return results
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.maxConcurrency)

	for _, page := range pages {
		// Throttle between starts. A deadline here means the remaining
		// pages never start; their fallbacks are still usable.
		if err := s.limiter.Wait(ctx); err != nil {
			mu.Lock()
			results[page.PageIndex] = page.Fallback
			mu.Unlock()
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			mu.Lock()
			results[page.PageIndex] = page.Fallback
			mu.Unlock()
			continue
		}

		// A task that made it past the deadline gate runs to completion:
		// its context keeps the trace but sheds the deadline.
		taskCtx := context.WithoutCancel(ctx)

		wg.Add(1)
		go func(page PageTask) {
			defer wg.Done()
			defer func() { <-sem }()

			text := s.processPage(taskCtx, page)
			mu.Lock()
			results[page.PageIndex] = text
			mu.Unlock()
		}(page)
	}

	wg.Wait()
	return results
}

func (s *OCRScheduler) processPage(ctx context.Context, page PageTask) string {
	png, err := page.Render(ctx)
	if err != nil {
		logger.Warn("Page render failed, using fallback text", "page", page.PageIndex, "error", err)
		return page.Fallback
	}

	format := page.Format
	if format == "" {
		format = "png"
	}

	text, err := s.client.OCRImage(ctx, s.model, png, format)
	if err != nil {
		logger.Warn("Page OCR failed, using fallback text", "page", page.PageIndex, "error", err)
		return page.Fallback
	}
	if text == "" {
		return page.Fallback
	}
	return text
}

package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderBytes(data string) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		return []byte(data), nil
	}
}

func TestRunQueueConcurrencyBound(t *testing.T) {
	client := &fakeOCRClient{delay: 30 * time.Millisecond}
	s := NewOCRScheduler(client, "vision-model", 3, rate.Inf)

	pages := make([]PageTask, 12)
	for i := range pages {
		pages[i] = PageTask{
			PageIndex: i,
			Render:    renderBytes(fmt.Sprintf("page-%d", i)),
			Fallback:  "weak",
		}
	}

	results := s.RunQueue(context.Background(), pages)

	require.Len(t, results, 12)
	assert.LessOrEqual(t, client.maxSeen, 3,
		"no more than maxConcurrency OCR calls may be in flight")
	assert.Equal(t, 12, client.callCount)
	for i := 0; i < 12; i++ {
		assert.Equal(t, fmt.Sprintf("ocr:page-%d", i), results[i])
	}
}

func TestRunQueueThrottleSpacesStarts(t *testing.T) {
	client := &fakeOCRClient{}
	s := NewOCRScheduler(client, "vision-model", 5, rate.Every(20*time.Millisecond))

	pages := make([]PageTask, 4)
	for i := range pages {
		pages[i] = PageTask{PageIndex: i, Render: renderBytes("p"), Fallback: ""}
	}

	start := time.Now()
	s.RunQueue(context.Background(), pages)
	elapsed := time.Since(start)

	// 4 starts with 20ms spacing need at least 3 gaps.
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestRunQueueFailedPageFallsBack(t *testing.T) {
	client := &fakeOCRClient{
		text: func(image []byte) (string, error) {
			if string(image) == "page-1" {
				return "", errors.New("vision API unavailable")
			}
			return "ocr:" + string(image), nil
		},
	}
	s := NewOCRScheduler(client, "vision-model", 2, rate.Inf)

	pages := []PageTask{
		{PageIndex: 0, Render: renderBytes("page-0"), Fallback: "weak-0"},
		{PageIndex: 1, Render: renderBytes("page-1"), Fallback: "weak-1"},
		{PageIndex: 2, Render: renderBytes("page-2"), Fallback: "weak-2"},
	}

	results := s.RunQueue(context.Background(), pages)

	require.Len(t, results, 3)
	assert.Equal(t, "ocr:page-0", results[0])
	assert.Equal(t, "weak-1", results[1], "failed page must resolve to its fallback")
	assert.Equal(t, "ocr:page-2", results[2])
}

func TestRunQueueRenderFailureFallsBack(t *testing.T) {
	client := &fakeOCRClient{}
	s := NewOCRScheduler(client, "vision-model", 2, rate.Inf)

	pages := []PageTask{
		{
			PageIndex: 0,
			Render: func(ctx context.Context) ([]byte, error) {
				return nil, errors.New("pdftoppm crashed")
			},
			Fallback: "weak-0",
		},
	}

	results := s.RunQueue(context.Background(), pages)
	assert.Equal(t, "weak-0", results[0])
	assert.Equal(t, 0, client.callCount, "render failure must not reach the OCR API")
}

func TestRunQueueDeadlineStopsNewStarts(t *testing.T) {
	client := &fakeOCRClient{delay: 10 * time.Millisecond}
	s := NewOCRScheduler(client, "vision-model", 1, rate.Every(25*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	pages := make([]PageTask, 10)
	for i := range pages {
		pages[i] = PageTask{
			PageIndex: i,
			Render:    renderBytes(fmt.Sprintf("page-%d", i)),
			Fallback:  fmt.Sprintf("weak-%d", i),
		}
	}

	results := s.RunQueue(ctx, pages)

	// Every page resolves: started pages with OCR text, the rest with
	// their fallback.
	require.Len(t, results, 10)
	assert.Less(t, client.callCount, 10, "deadline must prevent some starts")
	for i := 0; i < 10; i++ {
		text, ok := results[i]
		require.True(t, ok)
		assert.NotEmpty(t, text)
	}
}

// ctxCheckingOCRClient fails when called with an expired context, so a test
// can tell a finished task apart from one that was cancelled mid-flight.
type ctxCheckingOCRClient struct {
	delay time.Duration
}

func (c *ctxCheckingOCRClient) OCRImage(ctx context.Context, _ string, image []byte, _ string) (string, error) {
	time.Sleep(c.delay)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "ocr:" + string(image), nil
}

func TestRunQueueInFlightTaskFinishesPastDeadline(t *testing.T) {
	client := &ctxCheckingOCRClient{delay: 80 * time.Millisecond}
	s := NewOCRScheduler(client, "vision-model", 1, rate.Inf)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	pages := []PageTask{
		{PageIndex: 0, Render: renderBytes("page-0"), Fallback: "weak-0"},
		{PageIndex: 1, Render: renderBytes("page-1"), Fallback: "weak-1"},
		{PageIndex: 2, Render: renderBytes("page-2"), Fallback: "weak-2"},
	}

	results := s.RunQueue(ctx, pages)

	// Page 0 started before the deadline and outlives it; it must still
	// deliver OCR text. The pages queued behind it never start.
	require.Len(t, results, 3)
	assert.Equal(t, "ocr:page-0", results[0])
	assert.Equal(t, "weak-1", results[1])
	assert.Equal(t, "weak-2", results[2])
}

func TestRunQueueEmpty(t *testing.T) {
	client := &fakeOCRClient{}
	s := NewOCRScheduler(client, "vision-model", 5, rate.Inf)
	assert.Empty(t, s.RunQueue(context.Background(), nil))
}

package ai

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"knowledge-ingest-platform/internal/logger"
)

// GeminiClient wraps the generative-ai SDK with the resilience layer every
// caller needs: a circuit breaker, a client-side rate limiter, and a token
// budget tracking the tier's quota windows.
type GeminiClient struct {
	client  *genai.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	budget  *TokenBudget
	tier    string
}

// TierQuota is the provider-side quota for an API tier.
type TierQuota struct {
	RPM int // requests per minute
	TPM int // tokens per minute
	RPD int // requests per day
}

func quotaForTier(tier string) TierQuota {
	switch tier {
	case "tier1":
		return TierQuota{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return TierQuota{RPM: 2000, TPM: 4000000, RPD: 50000}
	default: // free
		return TierQuota{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// TokenBudget tracks request and token spend against per-minute and
// per-day quota windows. It rejects work that would exceed the quota
// before the API does.
type TokenBudget struct {
	mu    sync.Mutex
	quota TierQuota

	minuteTokens   int
	minuteRequests int
	minuteStart    time.Time

	dayRequests int
	dayStart    time.Time
}

func (tb *TokenBudget) Allow(tokens, requests int) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	if now.Sub(tb.minuteStart) >= time.Minute {
		tb.minuteTokens, tb.minuteRequests = 0, 0
		tb.minuteStart = now
	}
	if now.Sub(tb.dayStart) >= 24*time.Hour {
		tb.dayRequests = 0
		tb.dayStart = now
	}

	return tb.minuteRequests+requests <= tb.quota.RPM &&
		tb.minuteTokens+tokens <= tb.quota.TPM &&
		tb.dayRequests+requests <= tb.quota.RPD
}

func (tb *TokenBudget) Spend(tokens, requests int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.minuteTokens += tokens
	tb.minuteRequests += requests
	tb.dayRequests += requests
}

func NewGeminiClient(apiKey string, tier string) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	quota := quotaForTier(tier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// Pace a little under the provider RPM so bursts of OCR pages don't
	// trip server-side limits.
	limiter := rate.NewLimiter(rate.Limit(float64(quota.RPM)*0.9/60.0), quota.RPM/10)

	return &GeminiClient{
		client:  client,
		breaker: breaker,
		limiter: limiter,
		budget:  &TokenBudget{quota: quota},
		tier:    tier,
	}, nil
}

// Rough estimation: 1 token is about 4 characters for Gemini models.
func estimateTokens(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += len(t)
	}
	if total < 4 {
		return 1
	}
	return total / 4
}

func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}

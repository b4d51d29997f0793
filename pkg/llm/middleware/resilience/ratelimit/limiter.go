// Package ratelimit provides per-provider token-bucket and concurrency limiting for model clients.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"advisor/pkg/config"
	"advisor/pkg/llm"
	"advisor/pkg/logx"
	"advisor/pkg/utils"
)

// BufferFactor keeps the bucket below the provider quota to absorb estimation error.
const BufferFactor = 0.9

// Limiter defines the interface for rate limiting implementations.
type Limiter interface {
	// Acquire blocks until tokens and a concurrency slot are both available.
	// The returned release function must be called to return the slot.
	Acquire(ctx context.Context, tokens int, owner string) (release func(), err error)

	// GetStats returns current limiter statistics.
	GetStats() LimiterStats
}

// TokenEstimator estimates the number of tokens needed for a request.
type TokenEstimator interface {
	EstimatePrompt(req llm.CompletionRequest) int
}

// Config defines rate limiting configuration for a provider.
type Config struct {
	TokensPerMinute int
	MaxConcurrency  int
}

// DefaultTokenEstimator estimates prompt size with tiktoken.
type DefaultTokenEstimator struct{}

// EstimatePrompt estimates prompt tokens for every message in req.
func (DefaultTokenEstimator) EstimatePrompt(req llm.CompletionRequest) int {
	total := 0
	for i := range req.Messages {
		total += utils.CountTokensSimple(req.Messages[i].Content)
	}
	return total
}

type acquisition struct {
	timestamp time.Time
	owner     string
}

// TokenBucketLimiter combines a token bucket with a concurrency semaphore.
//
//nolint:govet // fieldalignment: Struct layout optimized for readability over memory
type TokenBucketLimiter struct {
	mu sync.Mutex

	provider string

	availableTokens int
	tokensPerRefill int // tokens_per_minute / 10, added every 6s
	maxCapacity     int

	activeRequests int
	maxConcurrency int
	acquisitions   []*acquisition
	releaseTimeout time.Duration // stale slots are reclaimed after this long
	maxWait        time.Duration

	tokenLimitHits  int64
	concurrencyHits int64
}

// LimiterStats represents current rate limiter statistics.
type LimiterStats struct {
	Provider        string `json:"provider"`
	AvailableTokens int    `json:"available_tokens"`
	MaxCapacity     int    `json:"max_capacity"`
	ActiveRequests  int    `json:"active_requests"`
	MaxConcurrency  int    `json:"max_concurrency"`
	TokenLimitHits  int64  `json:"token_limit_hits"`
	ConcurrencyHits int64  `json:"concurrency_hits"`
}

// NewTokenBucketLimiter creates a limiter for provider. requestTimeout bounds how long
// a slot may be held before it is considered leaked.
func NewTokenBucketLimiter(provider string, cfg Config, requestTimeout time.Duration) *TokenBucketLimiter {
	maxCapacity := int(float64(cfg.TokensPerMinute) * BufferFactor)
	concurrency := cfg.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &TokenBucketLimiter{
		provider:        provider,
		availableTokens: maxCapacity,
		tokensPerRefill: cfg.TokensPerMinute / 10,
		maxCapacity:     maxCapacity,
		maxConcurrency:  concurrency,
		releaseTimeout:  requestTimeout * 2,
		maxWait:         2 * time.Minute,
	}
}

// Acquire atomically takes tokens and a concurrency slot.
// Requests larger than the bucket are clamped so they wait for a full bucket instead of forever.
func (l *TokenBucketLimiter) Acquire(ctx context.Context, tokens int, owner string) (func(), error) {
	firstAttempt := true
	start := time.Now()

	for {
		l.mu.Lock()

		if tokens > l.maxCapacity {
			tokens = l.maxCapacity
		}
		if l.activeRequests >= l.maxConcurrency {
			l.cleanStaleAcquisitions()
		}

		hasTokens := l.availableTokens >= tokens
		hasSlot := l.activeRequests < l.maxConcurrency

		if hasTokens && hasSlot {
			l.availableTokens -= tokens
			l.activeRequests++

			acq := &acquisition{timestamp: time.Now(), owner: owner}
			l.acquisitions = append(l.acquisitions, acq)

			l.mu.Unlock()
			return func() { l.release(acq) }, nil
		}

		if elapsed := time.Since(start); elapsed > l.maxWait {
			l.mu.Unlock()
			return nil, fmt.Errorf("rate limit acquisition timeout after %v (requested %d tokens, provider %s)",
				elapsed.Round(time.Second), tokens, l.provider)
		}

		if firstAttempt {
			if !hasTokens {
				l.tokenLimitHits++
				logx.Infof("RATELIMIT: %s token limit hit, waiting for refill (need %d, have %d, owner %s)",
					l.provider, tokens, l.availableTokens, owner)
			}
			if !hasSlot {
				l.concurrencyHits++
				logx.Infof("RATELIMIT: %s concurrency limit hit (active %d/%d, owner %s)",
					l.provider, l.activeRequests, l.maxConcurrency, owner)
			}
			firstAttempt = false
		}

		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err() //nolint:wrapcheck // Context error propagated as-is
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// release returns a concurrency slot; consumed tokens are not refunded.
func (l *TokenBucketLimiter) release(acq *acquisition) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, a := range l.acquisitions {
		if a == acq {
			l.acquisitions = append(l.acquisitions[:i], l.acquisitions[i+1:]...)
			l.activeRequests--
			return
		}
	}
	// Already reclaimed as stale.
}

// cleanStaleAcquisitions must be called with l.mu held.
func (l *TokenBucketLimiter) cleanStaleAcquisitions() {
	now := time.Now()
	valid := l.acquisitions[:0]
	for _, acq := range l.acquisitions {
		if now.Sub(acq.timestamp) > l.releaseTimeout {
			l.activeRequests--
			logx.Warnf("RATELIMIT: force-released stale slot after %v (provider %s, owner %s)",
				l.releaseTimeout, l.provider, acq.owner)
			continue
		}
		valid = append(valid, acq)
	}
	l.acquisitions = valid
}

func (l *TokenBucketLimiter) startRefillTimer(ctx context.Context) {
	ticker := time.NewTicker(6 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.refill()
			}
		}
	}()
}

func (l *TokenBucketLimiter) refill() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.availableTokens += l.tokensPerRefill
	if l.availableTokens > l.maxCapacity {
		l.availableTokens = l.maxCapacity
	}
}

// GetStats returns current limiter statistics.
func (l *TokenBucketLimiter) GetStats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LimiterStats{
		Provider:        l.provider,
		AvailableTokens: l.availableTokens,
		MaxCapacity:     l.maxCapacity,
		ActiveRequests:  l.activeRequests,
		MaxConcurrency:  l.maxConcurrency,
		TokenLimitHits:  l.tokenLimitHits,
		ConcurrencyHits: l.concurrencyHits,
	}
}

// ProviderLimiterMap manages one limiter per provider.
type ProviderLimiterMap struct {
	limiters map[string]*TokenBucketLimiter
	cancel   context.CancelFunc
}

// NewProviderLimiterMap starts refill timers for every configured provider. Call Stop to release them.
func NewProviderLimiterMap(ctx context.Context, configs map[string]Config, requestTimeout time.Duration) *ProviderLimiterMap {
	ctx, cancel := context.WithCancel(ctx)

	limiters := make(map[string]*TokenBucketLimiter, len(configs))
	for provider, cfg := range configs {
		limiter := NewTokenBucketLimiter(provider, cfg, requestTimeout)
		limiter.startRefillTimer(ctx)
		limiters[provider] = limiter
	}

	return &ProviderLimiterMap{limiters: limiters, cancel: cancel}
}

// Stop cancels all refill timers.
func (p *ProviderLimiterMap) Stop() {
	p.cancel()
}

// GetLimiter returns the limiter for the provider serving modelName.
func (p *ProviderLimiterMap) GetLimiter(modelName string) (Limiter, error) {
	provider, err := config.GetModelProvider(modelName)
	if err != nil {
		return nil, fmt.Errorf("cannot determine provider for model %s: %w", modelName, err)
	}

	limiter, exists := p.limiters[provider]
	if !exists {
		return nil, fmt.Errorf("no rate limiter configured for provider %s", provider)
	}
	return limiter, nil
}

// GetAllStats returns statistics for all provider limiters.
func (p *ProviderLimiterMap) GetAllStats() map[string]LimiterStats {
	stats := make(map[string]LimiterStats, len(p.limiters))
	for provider, limiter := range p.limiters {
		stats[provider] = limiter.GetStats()
	}
	return stats
}

package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/ansuz/internal/apperr"
)

// Relatedness results below this score are dropped by the gateway.
const minRelevance = 0.5

// maxRelated caps how many relatedness results FindRelated returns.
const maxRelated = 5

// RetryConfig configures the retry behavior for classifier calls.
type RetryConfig struct {
	MaxRetries      int           // retry attempts after the first call
	InitialInterval time.Duration // first backoff, doubled per attempt
	MaxInterval     time.Duration // backoff ceiling
}

// DefaultRetryConfig returns sensible defaults for generative-AI API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Gateway wraps a Client with the call discipline the core depends on:
// calls are globally serialized, spaced by a minimum interval, and retried
// with exponential backoff on rate-limit and other transient errors. When
// retries are exhausted the whole operation fails; there are no partial
// results. Gateway itself implements Client.
type Gateway struct {
	inner   Client
	limiter *rate.Limiter
	retry   RetryConfig
	logger  *slog.Logger

	mu sync.Mutex // serializes all outbound calls
}

// NewGateway creates a Gateway enforcing minInterval between calls.
func NewGateway(inner Client, minInterval time.Duration, retry RetryConfig, logger *slog.Logger) *Gateway {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		retry:   retry,
		logger:  logger,
	}
}

// retryableError determines if an error should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperr.ErrRateLimited) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	// Rate limit errors - always retry.
	if containsAny(errStr, "rate limit", "quota exceeded", "resource exhausted", "429") {
		return true
	}
	// Transient server errors - retry.
	if containsAny(errStr, "500", "502", "503", "504", "unavailable") {
		return true
	}
	// Network errors - retry.
	if containsAny(errStr, "connection reset", "timeout", "temporary") {
		return true
	}
	return false
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// call runs fn under the global lock with pacing and exponential backoff.
func (g *Gateway) call(ctx context.Context, op string, fn func(context.Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var lastErr error
	delay := g.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= g.retry.MaxRetries; attempt++ {
		// Pace EACH attempt, not just the first.
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("classifier: rate limit wait: %w", err)
		}

		err := fn(ctx)
		if err == nil {
			g.logger.Debug("classifier: call succeeded",
				slog.String("op", op),
				slog.Int("attempts", attempt+1),
				slog.Duration("elapsed", time.Since(start)))
			return nil
		}
		lastErr = err

		if !retryableError(err) {
			return fmt.Errorf("classifier: %s: %w", op, err)
		}
		if attempt == g.retry.MaxRetries {
			break
		}

		g.logger.Debug("classifier: retrying after error",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return fmt.Errorf("classifier: canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, g.retry.MaxInterval)
		}
	}

	return fmt.Errorf("classifier: %s after %d retries (elapsed %v): %w",
		op, g.retry.MaxRetries, time.Since(start), lastErr)
}

// ExtractKeywords implements Client.
func (g *Gateway) ExtractKeywords(ctx context.Context, text string) ([]string, error) {
	var out []string
	err := g.call(ctx, "extract_keywords", func(ctx context.Context) error {
		var callErr error
		out, callErr = g.inner.ExtractKeywords(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindRelated implements Client. On top of the raw scores it applies the
// gateway contract: results below the relevance floor are dropped, the rest
// are sorted by descending relevance and truncated.
func (g *Gateway) FindRelated(ctx context.Context, title string, keywords []string, candidates []Candidate) ([]Related, error) {
	var raw []Related
	err := g.call(ctx, "find_related", func(ctx context.Context) error {
		var callErr error
		raw, callErr = g.inner.FindRelated(ctx, title, keywords, candidates)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	out := make([]Related, 0, len(raw))
	for _, r := range raw {
		if r.Relevance >= minRelevance {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })
	if len(out) > maxRelated {
		out = out[:maxRelated]
	}
	return out, nil
}

// DetectProject implements Client.
func (g *Gateway) DetectProject(ctx context.Context, title string, keywords []string, projects []string) (ProjectDetection, error) {
	var out ProjectDetection
	err := g.call(ctx, "detect_project", func(ctx context.Context) error {
		var callErr error
		out, callErr = g.inner.DetectProject(ctx, title, keywords, projects)
		return callErr
	})
	if err != nil {
		return ProjectDetection{}, err
	}
	return out, nil
}

// ClassifyDestination implements Client.
func (g *Gateway) ClassifyDestination(ctx context.Context, text string, projects []string) (Destination, error) {
	var out Destination
	err := g.call(ctx, "classify_destination", func(ctx context.Context) error {
		var callErr error
		out, callErr = g.inner.ClassifyDestination(ctx, text, projects)
		return callErr
	})
	if err != nil {
		return Destination{}, err
	}
	return out, nil
}

// ExtractZettels implements Client.
func (g *Gateway) ExtractZettels(ctx context.Context, text string) ([]ZkCandidate, error) {
	var out []ZkCandidate
	err := g.call(ctx, "extract_zettels", func(ctx context.Context) error {
		var callErr error
		out, callErr = g.inner.ExtractZettels(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var _ Client = (*Gateway)(nil)

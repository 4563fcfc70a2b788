package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"jarvis/internal/domain"
	"jarvis/internal/infra/config"
)

// Breaker settings used when the config leaves them zero.
const (
	defaultCBMaxFailures uint32 = 5
	defaultCBTimeout            = 30 * time.Second
	defaultCBInterval           = time.Minute
)

// CircuitBreakerProvider fails fast with domain.ErrProviderUnavailable after
// repeated upstream failures, then lets a single probe through once the
// open timeout expires.
type CircuitBreakerProvider struct {
	inner   domain.LLMProvider
	breaker *gobreaker.CircuitBreaker[*domain.ChatResponse]
}

func NewCircuitBreakerProvider(inner domain.LLMProvider, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	if logger == nil {
		logger = slog.Default()
	}
	maxFailures := positive(cfg.MaxFailures, defaultCBMaxFailures)

	settings := gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: 1,
		Interval:    positive(cfg.Interval, defaultCBInterval),
		Timeout:     positive(cfg.Timeout, defaultCBTimeout),
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: isBreakerSuccess,
	}
	return &CircuitBreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[*domain.ChatResponse](settings),
	}
}

// isBreakerSuccess treats caller-side failures as successes: a cancelled
// request or an oversized prompt says nothing about upstream health.
func isBreakerSuccess(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrContextOverflow)
}

var (
	_ domain.LLMProvider          = (*CircuitBreakerProvider)(nil)
	_ domain.StreamingLLMProvider = (*CircuitBreakerProvider)(nil)
)

func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

func (p *CircuitBreakerProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := p.breaker.Execute(func() (*domain.ChatResponse, error) {
		return p.inner.Chat(ctx, req)
	})
	return resp, p.unavailable(err)
}

// ChatStream counts only stream setup against the breaker. Errors that
// arrive mid-stream are delivered on the channel.
func (p *CircuitBreakerProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	sp, ok := p.inner.(domain.StreamingLLMProvider)
	if !ok {
		return nil, fmt.Errorf("provider %q does not support streaming", p.inner.Name())
	}

	var deltas <-chan domain.StreamDelta
	_, err := p.breaker.Execute(func() (*domain.ChatResponse, error) {
		var err error
		deltas, err = sp.ChatStream(ctx, req)
		return nil, err
	})
	if err != nil {
		return nil, p.unavailable(err)
	}
	return deltas, nil
}

// unavailable maps a rejected call to domain.ErrProviderUnavailable and
// passes every other error through.
func (p *CircuitBreakerProvider) unavailable(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("provider %q circuit open: %w", p.inner.Name(), domain.ErrProviderUnavailable)
	}
	return err
}

func (p *CircuitBreakerProvider) State() gobreaker.State { return p.breaker.State() }
func (p *CircuitBreakerProvider) Counts() gobreaker.Counts { return p.breaker.Counts() }

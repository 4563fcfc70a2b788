package llm

import (
	"log/slog"

	"jarvis/internal/domain"
	"jarvis/internal/infra/config"
)

// New builds the configured provider: the OpenAI-compatible client, optionally
// paced by a rate limiter and guarded by a circuit breaker.
func New(cfg config.LLMConfig, logger *slog.Logger) domain.StreamingLLMProvider {
	var p domain.StreamingLLMProvider = NewOpenAIProvider(cfg, logger)
	if cfg.RequestsPerSecond > 0 {
		p = NewRateLimitedProvider(p, cfg.RequestsPerSecond, max(1, int(cfg.RequestsPerSecond)))
	}
	if cfg.CircuitBreaker.Enabled {
		p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
	}
	return p
}

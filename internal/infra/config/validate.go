package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// DefaultOpenAIBaseURL is the hosted OpenAI endpoint. It requires an API key;
// self-hosted compatible endpoints may not.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAgent(cfg, ve)
	validateLLM(cfg, ve)
	validateStore(cfg, ve)
	validateAuth(cfg, ve)
	validateGateway(cfg, ve)
	validateTools(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAgent(cfg *Config, ve *ValidationError) {
	if cfg.Agent.HistoryWindow < 0 {
		ve.Add("agent.history_window must be >= 0")
	}
	if cfg.Agent.MaxToolSteps < 0 {
		ve.Add("agent.max_tool_steps must be >= 0")
	}
	if strings.TrimSpace(cfg.Agent.SessionID) == "" {
		ve.Add("agent.session_id must not be empty")
	}
	if cfg.Agent.EngineCacheSize <= 0 {
		ve.Add("agent.engine_cache_size must be > 0")
	}
}

func validateLLM(cfg *Config, ve *ValidationError) {
	llm := cfg.LLM
	if llm.Model == "" {
		ve.Add("llm.model must not be empty")
	}
	if llm.BaseURL == "" {
		ve.Add("llm.base_url must not be empty")
	} else if u, err := url.Parse(llm.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		ve.Add("llm.base_url %q is not a valid URL", llm.BaseURL)
	}
	if llm.APIKey == "" && strings.TrimRight(llm.BaseURL, "/") == DefaultOpenAIBaseURL {
		ve.Add("llm.api_key is required (set OPENAI_API_KEY)")
	}
	if llm.Temperature < 0 || llm.Temperature > 2 {
		ve.Add("llm.temperature must be between 0 and 2")
	}
	if llm.MaxTokens < 0 {
		ve.Add("llm.max_tokens must be >= 0")
	}
	if llm.RequestsPerSecond < 0 {
		ve.Add("llm.requests_per_second must be >= 0")
	}
	if llm.ConnTimeout < 0 || llm.RespTimeout < 0 {
		ve.Add("llm timeouts must be >= 0")
	}
	if llm.CircuitBreaker.Enabled {
		if llm.CircuitBreaker.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if llm.CircuitBreaker.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

var validStoreBackends = map[string]bool{
	StoreSQLite: true,
	StoreFile:   true,
	StoreMemory: true,
}

func validateStore(cfg *Config, ve *ValidationError) {
	st := cfg.Store
	if !validStoreBackends[st.Backend] {
		ve.Add("store.backend %q is invalid (want: sqlite, file, memory)", st.Backend)
	}
	if st.Backend == StoreSQLite && st.Path == "" {
		ve.Add("store.path is required for the sqlite backend")
	}
	if st.Backend == StoreFile && st.MemoryFile == "" {
		ve.Add("store.memory_file is required for the file backend")
	}
	if st.Retention.Enabled {
		if st.Retention.MaxAge <= 0 {
			ve.Add("store.retention.max_age must be > 0 when retention is enabled")
		}
		if _, err := cron.ParseStandard(st.Retention.Schedule); err != nil {
			ve.Add("store.retention.schedule %q is invalid: %v", st.Retention.Schedule, err)
		}
	}
}

func validateAuth(cfg *Config, ve *ValidationError) {
	a := cfg.Auth
	if a.JWTSecret == "" {
		ve.Add("auth.jwt_secret must not be empty")
	}
	if a.AccessTTL <= 0 {
		ve.Add("auth.access_ttl must be > 0")
	}
	if a.RefreshTTL <= 0 {
		ve.Add("auth.refresh_ttl must be > 0")
	}
	if a.DBPath == "" {
		ve.Add("auth.db_path must not be empty")
	}
	if a.Admin.Username == "" || a.Admin.Password == "" {
		ve.Add("auth.admin.username and auth.admin.password must not be empty")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	g := cfg.Gateway
	if g.Addr == "" {
		ve.Add("gateway.addr must not be empty")
	} else if _, _, err := net.SplitHostPort(g.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", g.Addr)
	}
	if g.RateLimit.Enabled {
		if g.RateLimit.RequestsPerSecond <= 0 {
			ve.Add("gateway.rate_limit.requests_per_second must be > 0 when enabled")
		}
		if g.RateLimit.Burst <= 0 {
			ve.Add("gateway.rate_limit.burst must be > 0 when enabled")
		}
	}
}

func validateTools(cfg *Config, ve *ValidationError) {
	if cfg.Tools.Timeout < 0 {
		ve.Add("tools.timeout must be >= 0")
	}
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
	validExporters  = map[string]bool{"noop": true, "stdout": true}
)

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if cfg.Tracer.Enabled && !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}

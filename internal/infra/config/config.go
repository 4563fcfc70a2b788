package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is the assistant persona used when none is configured.
const DefaultSystemPrompt = "Voce e um assistente tecnico, direto e didatico. " +
	"Use as ferramentas disponiveis quando a pergunta exigir calculos ou data/hora."

// DefaultJWTSecret is the placeholder signing secret. Servers started with it
// log a warning.
const DefaultJWTSecret = "change-me-in-production"

// Config is the root configuration.
type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	LLM     LLMConfig     `yaml:"llm"`
	Store   StoreConfig   `yaml:"store"`
	Auth    AuthConfig    `yaml:"auth"`
	Gateway GatewayConfig `yaml:"gateway"`
	Tools   ToolsConfig   `yaml:"tools"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// AgentConfig holds the conversation defaults.
type AgentConfig struct {
	SystemPrompt    string         `yaml:"system_prompt"`
	HistoryWindow   int            `yaml:"history_window"`
	MaxToolSteps    int            `yaml:"max_tool_steps"`
	SessionID       string         `yaml:"session_id"`
	EngineCacheSize int            `yaml:"engine_cache_size"`
	Sentinels       SentinelConfig `yaml:"sentinels"`
}

// SentinelConfig overrides the fallback texts shown for degraded turns.
// Empty fields keep the built-in texts.
type SentinelConfig struct {
	ToolLimit string `yaml:"tool_limit,omitempty"`
	NoAnswer  string `yaml:"no_answer,omitempty"`
}

// LLMConfig holds the OpenAI-compatible provider settings.
type LLMConfig struct {
	Name              string               `yaml:"name"`
	BaseURL           string               `yaml:"base_url"`
	APIKey            string               `yaml:"api_key"`
	Model             string               `yaml:"model"`
	Temperature       float64              `yaml:"temperature"`
	MaxTokens         int                  `yaml:"max_tokens,omitempty"`
	ConnTimeout       time.Duration        `yaml:"conn_timeout"`
	RespTimeout       time.Duration        `yaml:"resp_timeout"`
	RequestsPerSecond float64              `yaml:"requests_per_second,omitempty"` // 0 = unlimited
	Retry             bool                 `yaml:"retry"`
	Pool              PoolConfig           `yaml:"pool"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for the LLM provider.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for the LLM provider.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// Session store backends.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
	StoreMemory = "memory"
)

// StoreConfig selects where conversation logs live.
type StoreConfig struct {
	Backend    string          `yaml:"backend"` // "sqlite", "file" or "memory"
	Path       string          `yaml:"path"`    // SQLite database
	MemoryFile string          `yaml:"memory_file"`
	Retention  RetentionConfig `yaml:"retention"`
}

// RetentionConfig controls pruning of idle threads.
type RetentionConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Schedule string        `yaml:"schedule"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	JWTSecret  string          `yaml:"jwt_secret"`
	AccessTTL  time.Duration   `yaml:"access_ttl"`
	RefreshTTL time.Duration   `yaml:"refresh_ttl"`
	DBPath     string          `yaml:"db_path"`
	Admin      AdminSeedConfig `yaml:"admin"`
}

// AdminSeedConfig is the account created when no admin exists.
type AdminSeedConfig struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// GatewayConfig holds HTTP/WebSocket server settings.
type GatewayConfig struct {
	Addr           string          `yaml:"addr"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	ReadTimeout    time.Duration   `yaml:"read_timeout"`
	WriteTimeout   time.Duration   `yaml:"write_timeout"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ToolsConfig enables the built-in tools.
type ToolsConfig struct {
	Calculator bool          `yaml:"calculator"`
	Clock      bool          `yaml:"clock"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			SystemPrompt:    DefaultSystemPrompt,
			HistoryWindow:   3,
			MaxToolSteps:    5,
			SessionID:       "default",
			EngineCacheSize: 16,
		},
		LLM: LLMConfig{
			Name:        "openai",
			BaseURL:     DefaultOpenAIBaseURL,
			Model:       "gpt-4.1-mini",
			ConnTimeout: 30 * time.Second,
			RespTimeout: 120 * time.Second,
			Retry:       true,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Store: StoreConfig{
			Backend:    StoreSQLite,
			Path:       ".jarvis.db",
			MemoryFile: ".jarvis_memory.json",
			Retention: RetentionConfig{
				Schedule: "@daily",
				MaxAge:   30 * 24 * time.Hour,
			},
		},
		Auth: AuthConfig{
			JWTSecret:  DefaultJWTSecret,
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			DBPath:     ".jarvis-auth.db",
			Admin: AdminSeedConfig{
				Username: "admin",
				Email:    "admin@jarvis.local",
				Password: "admin",
			},
		},
		Gateway: GatewayConfig{
			Addr:           ":8000",
			AllowedOrigins: []string{"http://localhost:5173"},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 10,
				Burst:             20,
			},
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Tools: ToolsConfig{
			Calculator: true,
			Clock:      true,
			Timeout:    10 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, decrypts secrets
// and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if passphrase := os.Getenv("JARVIS_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envReader collects parse failures while mapping env vars to fields.
type envReader struct {
	errs []error
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (r *envReader) nonNegInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be an integer", key))
		return
	}
	if n < 0 {
		r.errs = append(r.errs, fmt.Errorf("%s must not be negative", key))
		return
	}
	*dst = n
}

// durationUnit reads a non-negative integer count of unit.
func (r *envReader) durationUnit(key string, unit time.Duration, dst *time.Duration) {
	n := -1
	r.nonNegInt(key, &n)
	if n >= 0 {
		*dst = time.Duration(n) * unit
	}
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a duration: %w", key, err))
		return
	}
	*dst = d
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		r.errs = append(r.errs, fmt.Errorf("%s must be a boolean (true/false)", key))
	}
}

func (r *envReader) float(key string, dst *float64) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a number", key))
		return
	}
	*dst = f
}

// ApplyEnvOverrides maps JARVIS_* and OPENAI_* env vars to config fields.
// Malformed numbers, booleans and durations are reported together.
func ApplyEnvOverrides(cfg *Config) error {
	r := &envReader{}

	r.str("JARVIS_SYSTEM_PROMPT", &cfg.Agent.SystemPrompt)
	r.nonNegInt("JARVIS_HISTORY_WINDOW", &cfg.Agent.HistoryWindow)
	r.nonNegInt("JARVIS_MAX_TOOL_STEPS", &cfg.Agent.MaxToolSteps)
	r.str("JARVIS_SESSION_ID", &cfg.Agent.SessionID)
	r.nonNegInt("JARVIS_ENGINE_CACHE_SIZE", &cfg.Agent.EngineCacheSize)

	r.str("OPENAI_API_KEY", &cfg.LLM.APIKey)
	r.str("OPENAI_MODEL", &cfg.LLM.Model)
	r.str("OPENAI_BASE_URL", &cfg.LLM.BaseURL)
	r.float("JARVIS_LLM_TEMPERATURE", &cfg.LLM.Temperature)
	r.float("JARVIS_LLM_REQUESTS_PER_SECOND", &cfg.LLM.RequestsPerSecond)

	r.str("JARVIS_DB_PATH", &cfg.Store.Path)
	r.str("JARVIS_MEMORY_FILE", &cfg.Store.MemoryFile)
	r.str("JARVIS_STORE_BACKEND", &cfg.Store.Backend)
	persist := cfg.Store.Backend != StoreMemory
	r.boolean("JARVIS_PERSIST_MEMORY", &persist)
	if !persist {
		cfg.Store.Backend = StoreMemory
	}
	r.boolean("JARVIS_RETENTION_ENABLED", &cfg.Store.Retention.Enabled)
	r.duration("JARVIS_RETENTION_MAX_AGE", &cfg.Store.Retention.MaxAge)

	r.str("JARVIS_JWT_SECRET", &cfg.Auth.JWTSecret)
	r.durationUnit("JARVIS_JWT_ACCESS_EXPIRY_MINUTES", time.Minute, &cfg.Auth.AccessTTL)
	r.durationUnit("JARVIS_JWT_REFRESH_EXPIRY_DAYS", 24*time.Hour, &cfg.Auth.RefreshTTL)
	r.str("JARVIS_AUTH_DB_PATH", &cfg.Auth.DBPath)
	r.str("JARVIS_ADMIN_USERNAME", &cfg.Auth.Admin.Username)
	r.str("JARVIS_ADMIN_EMAIL", &cfg.Auth.Admin.Email)
	r.str("JARVIS_ADMIN_PASSWORD", &cfg.Auth.Admin.Password)

	r.str("JARVIS_GATEWAY_ADDR", &cfg.Gateway.Addr)
	if v := os.Getenv("JARVIS_ALLOWED_ORIGINS"); v != "" {
		cfg.Gateway.AllowedOrigins = splitAndTrim(v, ",")
	}
	r.boolean("JARVIS_RATE_LIMIT_ENABLED", &cfg.Gateway.RateLimit.Enabled)

	r.str("JARVIS_LOGGER_LEVEL", &cfg.Logger.Level)
	r.str("JARVIS_LOGGER_FORMAT", &cfg.Logger.Format)
	r.boolean("JARVIS_TRACER_ENABLED", &cfg.Tracer.Enabled)
	r.str("JARVIS_TRACER_EXPORTER", &cfg.Tracer.Exporter)

	return errors.Join(r.errs...)
}

// CLIOverrides are the command-line flags that replace config values.
// Nil fields were not given.
type CLIOverrides struct {
	MaxTurns     *int
	MaxToolSteps *int
	SessionID    *string
	MemoryFile   *string
	NoMemory     bool
}

// ApplyCLIOverrides validates and applies command-line overrides.
func ApplyCLIOverrides(cfg *Config, o CLIOverrides) error {
	if o.MaxTurns != nil {
		if *o.MaxTurns < 0 {
			return errors.New("--max-turns must not be negative")
		}
		cfg.Agent.HistoryWindow = *o.MaxTurns
	}
	if o.MaxToolSteps != nil {
		if *o.MaxToolSteps < 0 {
			return errors.New("--max-tool-steps must not be negative")
		}
		cfg.Agent.MaxToolSteps = *o.MaxToolSteps
	}
	if o.SessionID != nil {
		id := strings.TrimSpace(*o.SessionID)
		if id == "" {
			return errors.New("--session-id must not be empty")
		}
		cfg.Agent.SessionID = id
	}
	if o.MemoryFile != nil {
		path := strings.TrimSpace(*o.MemoryFile)
		if path == "" {
			return errors.New("--memory-file must not be empty")
		}
		cfg.Store.MemoryFile = path
		if cfg.Store.Backend != StoreMemory {
			cfg.Store.Backend = StoreFile
		}
	}
	if o.NoMemory {
		cfg.Store.Backend = StoreMemory
	}
	return nil
}

// splitAndTrim splits s by sep and drops blank elements.
func splitAndTrim(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decryptSecrets replaces "enc:..." values with their plaintext.
func decryptSecrets(cfg *Config, passphrase string) error {
	secrets := []struct {
		name  string
		field *string
	}{
		{"llm.api_key", &cfg.LLM.APIKey},
		{"auth.jwt_secret", &cfg.Auth.JWTSecret},
		{"auth.admin.password", &cfg.Auth.Admin.Password},
	}
	for _, s := range secrets {
		if !strings.HasPrefix(*s.field, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*s.field, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		*s.field = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", errors.New("invalid encrypted format")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}

package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"jarvis/internal/domain"
	"jarvis/internal/infra/config"
)

const (
	// maxResponseBody caps a non-streamed completion body.
	maxResponseBody = 10 << 20
	// maxErrorBody caps the provider text carried into error messages.
	maxErrorBody = 4096
)

// poolDefaults apply to any zero PoolConfig field. A chat backend is
// usually a single host reached over long-lived connections.
var poolDefaults = config.PoolConfig{
	MaxIdleConns:        20,
	MaxIdleConnsPerHost: 10,
	MaxConnsPerHost:     20,
	IdleConnTimeout:     2 * time.Minute,
}

const (
	defaultConnTimeout = 30 * time.Second
	defaultRespTimeout = 2 * time.Minute
)

func positive[T ~int | ~int64 | ~uint32](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

// NewPooledTransport builds the transport shared by every request to one
// backend. respTimeout bounds the wait for response headers only.
func NewPooledTransport(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   positive(connTimeout, defaultConnTimeout),
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: positive(respTimeout, defaultRespTimeout),
		MaxIdleConns:          positive(pool.MaxIdleConns, poolDefaults.MaxIdleConns),
		MaxIdleConnsPerHost:   positive(pool.MaxIdleConnsPerHost, poolDefaults.MaxIdleConnsPerHost),
		MaxConnsPerHost:       positive(pool.MaxConnsPerHost, poolDefaults.MaxConnsPerHost),
		IdleConnTimeout:       positive(pool.IdleConnTimeout, poolDefaults.IdleConnTimeout),
	}
}

// NewHTTPClient returns a client without an overall Timeout so streamed
// completions of any length can finish.
func NewHTTPClient(cfg config.LLMConfig) *http.Client {
	return &http.Client{Transport: NewPooledTransport(cfg.ConnTimeout, cfg.RespTimeout, cfg.Pool)}
}

// endpoint is a chat completions URL plus the credentials sent to it.
type endpoint struct {
	url    string
	apiKey string
	client *http.Client
}

// post sends body and returns the open response when the status is 200.
// Any other status is drained, closed and turned into a domain error.
func (e endpoint) post(ctx context.Context, body []byte, stream bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(resp.StatusCode, text)
	}
	return resp, nil
}

// postJSON is post for a non-streamed completion; it returns the whole body.
func (e endpoint) postJSON(ctx context.Context, body []byte) ([]byte, error) {
	resp, err := e.post(ctx, body, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// statusError classifies a non-200 response. The "API error <code>:" prefix
// is matched by the retry classifier.
func statusError(code int, body []byte) error {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}

	sentinel := domain.ErrProviderError
	switch code {
	case http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = domain.ErrAuthInvalid
	case http.StatusRequestEntityTooLarge:
		sentinel = domain.ErrContextOverflow
	}
	return fmt.Errorf("%w: API error %d: %s", sentinel, code, text)
}

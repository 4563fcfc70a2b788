package gateway

import (
	"net/http"
	"time"

	"jarvis/internal/usecase"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service       string                    `json:"service"`
	Version       string                    `json:"version"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
	Tools         []string                  `json:"tools"`
	EngineCache   *usecase.EngineCacheStats `json:"engine_cache,omitempty"`
	Turns         *usecase.MetricsSnapshot  `json:"turns,omitempty"`
}

func (a *api) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Service:       "jarvis",
		Version:       a.deps.Version,
		UptimeSeconds: int64(time.Since(a.started).Seconds()),
		Tools:         []string{},
	}
	if a.deps.Tools != nil {
		resp.Tools = a.deps.Tools.Names()
	}
	if a.deps.Engines != nil {
		stats := a.deps.Engines.Stats()
		resp.EngineCache = &stats
	}
	if a.deps.Metrics != nil {
		snap := a.deps.Metrics.Snapshot()
		resp.Turns = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

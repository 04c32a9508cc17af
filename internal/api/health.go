package api

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/fetch"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	dataDir   string
	tokens    fetch.TokenSource
	providers []string
	rewriter  bool
	version   string
	startTime time.Time
}

func NewHealthHandler(dataDir string, tokens fetch.TokenSource, providers []string, rewriterConfigured bool, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		dataDir:   dataDir,
		tokens:    tokens,
		providers: providers,
		rewriter:  rewriterConfigured,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// Data directory must be writable; nothing works without it.
	if err := h.checkDataDir(); err != nil {
		checks["data_dir"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["data_dir"] = "ok"
	}

	// A missing session token only degrades: cached chunks still serve.
	if h.tokens == nil {
		checks["session_token"] = "not_configured"
	} else if _, err := h.tokens.Token(); err != nil {
		checks["session_token"] = "missing"
		if status == "healthy" {
			status = "degraded"
		}
	} else {
		checks["session_token"] = "ok"
	}

	if len(h.providers) == 0 {
		checks["synthesis_providers"] = "not_configured"
		if status == "healthy" {
			status = "degraded"
		}
	} else {
		checks["synthesis_providers"] = strings.Join(h.providers, ",")
	}

	if h.rewriter {
		checks["rewriter"] = "ok"
	} else {
		checks["rewriter"] = "not_configured"
	}

	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}

func (h *HealthHandler) checkDataDir() error {
	f, err := os.CreateTemp(h.dataDir, ".healthcheck-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

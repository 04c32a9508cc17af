package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/fetch"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/pipeline"
)

// PipelineRunner is what the playback endpoint needs from the orchestrator.
type PipelineRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// PlaybackRequest is the POST /playback body.
type PlaybackRequest struct {
	ASIN                  string `json:"asin"`
	StartingPosition      int    `json:"starting_position"`
	Provider              string `json:"synthesis_provider"`
	SkipRewrite           bool   `json:"skip_rewrite,omitempty"`
	TargetDurationMinutes int    `json:"target_duration_minutes,omitempty"`
}

type PlaybackHandler struct {
	runner PipelineRunner
}

func NewPlaybackHandler(runner PipelineRunner) *PlaybackHandler {
	return &PlaybackHandler{runner: runner}
}

func (h *PlaybackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req PlaybackRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.ASIN == "" {
		WriteError(w, http.StatusBadRequest, "asin is required")
		return
	}

	res, err := h.runner.Run(r.Context(), pipeline.Request{
		ASIN:                  req.ASIN,
		StartingPosition:      req.StartingPosition,
		Provider:              req.Provider,
		SkipRewrite:           req.SkipRewrite,
		TargetDurationMinutes: req.TargetDurationMinutes,
	})
	if err != nil {
		writePipelineError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// writePipelineError maps orchestrator failures to HTTP statuses. An expired
// session token is surfaced as 401 so the client can prompt for credential
// capture instead of retrying.
func writePipelineError(w http.ResponseWriter, err error) {
	var se *pipeline.StageError
	switch {
	case errors.Is(err, fetch.ErrUnauthorized):
		WriteErrorDetail(w, http.StatusUnauthorized, "session token rejected", err.Error())
	case errors.As(err, &se):
		WriteErrorDetail(w, http.StatusBadGateway, "pipeline stage failed: "+se.Stage, se.Err.Error())
	case errors.Is(err, pipeline.ErrUnknownProvider):
		WriteError(w, http.StatusBadRequest, err.Error())
	default:
		WriteError(w, http.StatusBadRequest, err.Error())
	}
}

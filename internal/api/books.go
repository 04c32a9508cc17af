package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/coverage"
	"github.com/ryanbbrown/kindle-storyteller-sub000/internal/storage"
)

// BookHandler serves coverage metadata and stored artifacts for one book.
type BookHandler struct {
	coverage *coverage.Store
	data     *storage.LocalStore
}

func NewBookHandler(cov *coverage.Store, data *storage.LocalStore) *BookHandler {
	return &BookHandler{coverage: cov, data: data}
}

// ListChunks returns the book's coverage ranges.
func (h *BookHandler) ListChunks(w http.ResponseWriter, r *http.Request) {
	asin := chi.URLParam(r, "asin")
	WriteJSON(w, http.StatusOK, h.coverage.Load(asin))
}

// GetBenchmarks serves the benchmarks file of a matching audio artifact.
// Optional provider/start_position/end_position params narrow the match;
// without them the first artifact of the chunk wins.
func (h *BookHandler) GetBenchmarks(w http.ResponseWriter, r *http.Request) {
	asin := chi.URLParam(r, "asin")
	chunkID := chi.URLParam(r, "chunkID")

	rng := h.coverage.Load(asin).FindRange(chunkID)
	if rng == nil {
		WriteError(w, http.StatusNotFound, "chunk not found")
		return
	}

	art := matchArtifact(rng, r)
	if art == nil {
		WriteError(w, http.StatusNotFound, "no matching audio artifact")
		return
	}

	raw, err := h.data.Load(art.BenchmarksPath)
	if err != nil {
		WriteErrorDetail(w, http.StatusInternalServerError, "benchmarks file unreadable", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

// GetAudio streams a stored audio file.
func (h *BookHandler) GetAudio(w http.ResponseWriter, r *http.Request) {
	asin := chi.URLParam(r, "asin")
	chunkID := chi.URLParam(r, "chunkID")
	artifactID := chi.URLParam(r, "artifactID")

	rng := h.coverage.Load(asin).FindRange(chunkID)
	if rng == nil {
		WriteError(w, http.StatusNotFound, "chunk not found")
		return
	}
	art := rng.FindAudio(artifactID)
	if art == nil {
		WriteError(w, http.StatusNotFound, "audio artifact not found")
		return
	}
	http.ServeFile(w, r, h.data.Path(art.AudioPath))
}

// DeleteAudio removes a single audio artifact; sibling artifacts and the
// chunk's text artifacts stay untouched.
func (h *BookHandler) DeleteAudio(w http.ResponseWriter, r *http.Request) {
	asin := chi.URLParam(r, "asin")
	chunkID := chi.URLParam(r, "chunkID")
	artifactID := chi.URLParam(r, "artifactID")

	unlock := h.coverage.Lock(asin)
	defer unlock()

	cov := h.coverage.Load(asin)
	if err := h.coverage.DeleteAudio(cov, chunkID, artifactID); err != nil {
		writeDeleteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteChunk removes a whole coverage range and its artifact directory.
func (h *BookHandler) DeleteChunk(w http.ResponseWriter, r *http.Request) {
	asin := chi.URLParam(r, "asin")
	chunkID := chi.URLParam(r, "chunkID")

	unlock := h.coverage.Lock(asin)
	defer unlock()

	cov := h.coverage.Load(asin)
	if err := h.coverage.DeleteRange(cov, chunkID); err != nil {
		writeDeleteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeDeleteError(w http.ResponseWriter, err error) {
	if errors.Is(err, coverage.ErrNotFound) {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteErrorDetail(w, http.StatusInternalServerError, "delete failed", err.Error())
}

func matchArtifact(rng *coverage.CoverageRange, r *http.Request) *coverage.AudioArtifact {
	provider, _ := QueryString(r, "provider")
	startPos, hasStart := QueryInt(r, "start_position")
	endPos, hasEnd := QueryInt(r, "end_position")

	for i := range rng.Audio {
		art := &rng.Audio[i]
		if provider != "" && art.Provider != provider {
			continue
		}
		if hasStart && art.StartPositionID != startPos {
			continue
		}
		if hasEnd && art.EndPositionID != endPos {
			continue
		}
		return art
	}
	return nil
}

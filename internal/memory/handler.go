package memory

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aiox-platform/gloser/internal/api"
	"github.com/aiox-platform/gloser/internal/auth"
)

// Handler handles session memory HTTP endpoints.
type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

type statsResponse struct {
	Found bool `json:"found"`
	Stats
}

type clearResponse struct {
	SessionID string `json:"session_id"`
	Found     bool   `json:"found"`
	Cleared   bool   `json:"cleared"`
}

// Stats reports the session's memory. Unknown sessions answer found=false.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if id == "" {
		api.HandleError(w, api.NewBadRequestError("session id is required"))
		return
	}

	stats, found := h.store.Stats(auth.SessionKey(r.Context(), id))
	stats.SessionID = id
	api.JSON(w, http.StatusOK, statsResponse{Found: found, Stats: stats})
}

// Clear drops the session's memory.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if id == "" {
		api.HandleError(w, api.NewBadRequestError("session id is required"))
		return
	}

	found := h.store.Clear(auth.SessionKey(r.Context(), id))
	api.JSON(w, http.StatusOK, clearResponse{SessionID: id, Found: found, Cleared: found})
}

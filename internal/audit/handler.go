package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aiox-platform/gloser/internal/api"
	"github.com/aiox-platform/gloser/internal/auth"
)

// Lister reads executions for a session.
type Lister interface {
	ListBySession(ctx context.Context, sessionID string, params ListParams) ([]Execution, int64, error)
}

type Handler struct {
	store Lister
}

func NewHandler(store Lister) *Handler {
	return &Handler{store: store}
}

// List handles GET /sessions/{sessionID}/executions?page=&page_size=&status=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		api.HandleError(w, api.NewBadRequestError("session id is required"))
		return
	}

	params := DefaultListParams()
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			params.Page = p
		}
	}
	if v := q.Get("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil {
			params.PageSize = ps
		}
	}
	if v := q.Get("status"); v == "ok" || v == "failed" {
		params.Status = v
	}
	params = params.normalized()

	executions, total, err := h.store.ListBySession(r.Context(), auth.SessionKey(r.Context(), sessionID), params)
	if err != nil {
		slog.Error("audit: listing executions", "error", err, "session_id", sessionID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSONPaginated(w, http.StatusOK, executions, total, params.Page, params.PageSize)
}

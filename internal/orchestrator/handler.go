package orchestrator

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aiox-platform/gloser/internal/api"
	"github.com/aiox-platform/gloser/internal/auth"
	"github.com/aiox-platform/gloser/internal/middleware"
	"github.com/aiox-platform/gloser/internal/synthesizer"
)

// SessionHeader may carry the session id when the body does not.
const SessionHeader = "X-Session-ID"

// QueryBody is the JSON body of the query, plan and stream endpoints.
type QueryBody struct {
	Query string `json:"query" validate:"required,max=4000"`
	// InputQuery is accepted for older clients.
	InputQuery string `json:"input_query,omitempty"`
	SessionID  string `json:"session_id,omitempty" validate:"omitempty,max=128"`
	PlanOnly   bool   `json:"plan_only,omitempty"`
}

func (b *QueryBody) normalize() {
	if strings.TrimSpace(b.Query) == "" {
		b.Query = b.InputQuery
	}
	b.Query = strings.TrimSpace(b.Query)
	b.SessionID = strings.TrimSpace(b.SessionID)
}

// Handler serves the pipeline over HTTP.
type Handler struct {
	engine         *Engine
	validate       *Validator
	allowedOrigins []string
}

func NewHandler(engine *Engine, allowedOrigins []string) *Handler {
	return &Handler{
		engine:         engine,
		validate:       NewValidator(),
		allowedOrigins: allowedOrigins,
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (QueryBody, error) {
	var body QueryBody
	if err := api.DecodeJSON(w, r, &body); err != nil {
		return body, api.NewBadRequestError("No query provided. Send JSON with 'query' field.")
	}
	body.normalize()
	if body.SessionID == "" {
		body.SessionID = strings.TrimSpace(r.Header.Get(SessionHeader))
	}
	if err := h.validate.Validate(body); err != nil {
		return body, api.NewValidationError(err.Error())
	}
	return body, nil
}

func (h *Handler) input(r *http.Request, body QueryBody) Input {
	in := Input{
		Query:     body.Query,
		SessionID: body.SessionID,
		RequestID: middleware.GetRequestID(r.Context()),
		PlanOnly:  body.PlanOnly,
	}
	in = h.engine.normalize(in)
	in.SessionKey = auth.SessionKey(r.Context(), in.SessionID)
	return in
}

// Query runs the full pipeline, or only the planner when plan_only is set.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	body, err := h.decode(w, r)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	in := h.input(r, body)
	w.Header().Set(SessionHeader, in.SessionID)

	resp, err := h.engine.Handle(r.Context(), in, nil)
	if err != nil {
		slog.Error("orchestrator: query failed", "error", err, "session_id", in.SessionID, "request_id", in.RequestID)
		api.HandleError(w, httpError(err))
		return
	}
	api.JSON(w, http.StatusOK, resp)
}

// Plan returns the plan for a query without running it.
func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	body, err := h.decode(w, r)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	in := h.input(r, body)
	w.Header().Set(SessionHeader, in.SessionID)
	api.JSON(w, http.StatusOK, h.engine.Plan(r.Context(), in))
}

func httpError(err error) error {
	if errors.Is(err, synthesizer.ErrSynthesis) {
		return api.ErrUpstream
	}
	return api.ErrInternalServer
}

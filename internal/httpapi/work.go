package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/queue"
)

// submitRequest mirrors the §6.1 submission API body.
type submitRequest struct {
	Repo          string         `json:"repo"`
	Description   *string        `json:"description,omitempty"`
	Spec          *string        `json:"spec,omitempty"`
	Branch        *string        `json:"branch,omitempty"`
	Priority      string         `json:"priority,omitempty"`
	MaxIterations int            `json:"maxIterations,omitempty"`
	Source        *string        `json:"source,omitempty"`
	SourceRef     *string        `json:"sourceRef,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// POST /api/work
func (h *Handler) submitWork(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON")
		return
	}

	item, err := h.queue.Submit(r.Context(), queue.SubmitRequest{
		Repo:          req.Repo,
		Description:   req.Description,
		Spec:          req.Spec,
		Branch:        req.Branch,
		Priority:      domain.Priority(req.Priority),
		MaxIterations: req.MaxIterations,
		Source:        req.Source,
		SourceRef:     req.SourceRef,
		Metadata:      req.Metadata,
	})
	if err != nil {
		FromDomainError(w, r, err)
		return
	}

	if item.Status == domain.StatusGenerating && h.specgen != nil {
		h.specgen.Start(r.Context(), item)
	}

	Created(w, item)
}

// GET /api/work/{id}
func (h *Handler) getWork(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := h.queue.Get(r.Context(), id)
	if err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, item)
}

// POST /api/work/{id}/cancel
func (h *Handler) cancelWork(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.specgen != nil && h.specgen.IsGenerating(id) {
		h.specgen.Cancel(id)
	}
	cancelled, err := h.queue.Cancel(r.Context(), id)
	if err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, map[string]bool{"cancelled": cancelled})
}

package httpapi

import (
	"net/http"

	"github.com/skylarbarrera/whim/internal/domain"
)

// GET /api/queue
func (h *Handler) getQueue(w http.ResponseWriter, r *http.Request) {
	var typeFilter *domain.WorkItemType
	if tf := r.URL.Query().Get("type"); tf != "" {
		t := domain.WorkItemType(tf)
		typeFilter = &t
	}
	items, err := h.queue.List(r.Context(), typeFilter)
	if err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, items)
}

// GET /api/queue/dlq — work items in the failed (dead-letter) state,
// a CLI convenience view over the existing terminal status rather than
// a distinct entity.
func (h *Handler) getDeadLetterQueue(w http.ResponseWriter, r *http.Request) {
	items, err := h.queue.ListByStatus(r.Context(), domain.StatusFailed)
	if err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, items)
}

// GET /api/workers
func (h *Handler) listWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.registry.ListWorkers(r.Context())
	if err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, workers)
}

// statusResponse is the denormalized snapshot backing /api/status.
type statusResponse struct {
	Queue             any      `json:"queue"`
	Workers           int      `json:"activeWorkers"`
	GeneratingItemIDs []string `json:"generatingItemIds"`
}

// GET /api/status
func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		FromDomainError(w, r, err)
		return
	}
	workers, err := h.registry.ListWorkers(r.Context())
	if err != nil {
		FromDomainError(w, r, err)
		return
	}

	active := 0
	for _, wk := range workers {
		if !wk.Status.IsTerminal() {
			active++
		}
	}

	var generating []string
	if h.specgen != nil {
		generating = h.specgen.InFlightIDs()
	}

	OK(w, statusResponse{Queue: stats, Workers: active, GeneratingItemIDs: generating})
}

// GET /api/metrics
func (h *Handler) getMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.ListWorkerMetrics(r.Context())
	if err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, metrics)
}

// GET /api/learnings?repo=&spec=
func (h *Handler) getLearnings(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	spec := r.URL.Query().Get("spec")
	learnings, err := h.store.ListLearnings(r.Context(), repo, spec)
	if err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, learnings)
}

// GET /api/reviews
func (h *Handler) getReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.store.ListPRReviews(r.Context())
	if err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, reviews)
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skylarbarrera/whim/internal/domain"
	"github.com/skylarbarrera/whim/internal/workerreg"
)

func durationFromMillis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

type heartbeatRequest struct {
	Iteration int    `json:"iteration"`
	Status    string `json:"status,omitempty"`
	TokensIn  int64  `json:"tokensIn,omitempty"`
	TokensOut int64  `json:"tokensOut,omitempty"`
}

// POST /api/worker/{workerId}/heartbeat
func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerId")
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON")
		return
	}
	if err := h.registry.Heartbeat(r.Context(), workerID, req.Iteration, req.TokensIn, req.TokensOut); err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, map[string]bool{"ok": true})
}

type lockRequest struct {
	Repo  string   `json:"repo"`
	Files []string `json:"files"`
}

type lockResponse struct {
	Acquired          bool   `json:"acquired"`
	ConflictingWorker string `json:"conflictingWorker,omitempty"`
}

// POST /api/worker/{workerId}/lock
func (h *Handler) lock(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerId")
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON")
		return
	}
	result, err := h.locks.Acquire(r.Context(), workerID, req.Repo, req.Files)
	if err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, lockResponse{Acquired: result.Acquired, ConflictingWorker: result.ConflictingWorker})
}

// POST /api/worker/{workerId}/unlock
func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerId")
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON")
		return
	}
	if err := h.locks.Release(r.Context(), workerID, req.Repo, req.Files); err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, map[string]bool{"ok": true})
}

// completeRequest mirrors §6.2's overloaded /complete body: the
// execution-complete form carries prUrl/prNumber/metrics/learnings/
// review/verificationEnabled; the verification-complete form carries
// only verificationPassed, distinguished by the absence of the others.
type completeRequest struct {
	PRURL               *string               `json:"prUrl,omitempty"`
	PRNumber            *int                  `json:"prNumber,omitempty"`
	Metrics             []workerMetricPayload `json:"metrics,omitempty"`
	Learnings           []learningPayload     `json:"learnings,omitempty"`
	Review              *reviewPayload        `json:"review,omitempty"`
	VerificationEnabled bool                  `json:"verificationEnabled,omitempty"`
	VerificationPassed  *bool                 `json:"verificationPassed,omitempty"`
}

type workerMetricPayload struct {
	Iteration     int   `json:"iteration"`
	TokensIn      int64 `json:"tokensIn"`
	TokensOut     int64 `json:"tokensOut"`
	DurationMS    int64 `json:"durationMs"`
	FilesModified int   `json:"filesModified"`
	TestsRun      int   `json:"testsRun"`
	TestsPassed   int   `json:"testsPassed"`
}

type learningPayload struct {
	Spec    string `json:"spec"`
	Content string `json:"content"`
}

type reviewPayload struct {
	SpecAlignment  string         `json:"specAlignment"`
	CodeQuality    string         `json:"codeQuality"`
	OverallSummary *string        `json:"overallSummary,omitempty"`
	Findings       map[string]any `json:"findings,omitempty"`
}

// POST /api/worker/{workerId}/complete
func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerId")
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON")
		return
	}

	if req.VerificationPassed != nil {
		h.completeVerificationFor(w, r, workerID, *req.VerificationPassed)
		return
	}

	metrics := make([]domain.WorkerMetric, len(req.Metrics))
	for i, m := range req.Metrics {
		metrics[i] = domain.WorkerMetric{
			WorkerID:      workerID,
			Iteration:     m.Iteration,
			TokensIn:      m.TokensIn,
			TokensOut:     m.TokensOut,
			Duration:      durationFromMillis(m.DurationMS),
			FilesModified: m.FilesModified,
			TestsRun:      m.TestsRun,
			TestsPassed:   m.TestsPassed,
		}
	}
	learnings := make([]domain.Learning, len(req.Learnings))
	for i, l := range req.Learnings {
		learnings[i] = domain.Learning{Spec: l.Spec, Content: l.Content}
	}
	var review *domain.PRReview
	if req.Review != nil {
		review = &domain.PRReview{
			SpecAlignment:  req.Review.SpecAlignment,
			CodeQuality:    req.Review.CodeQuality,
			OverallSummary: req.Review.OverallSummary,
			Findings:       req.Review.Findings,
		}
	}

	item, err := h.registry.Complete(r.Context(), workerID, workerreg.CompleteRequest{
		PRURL:               req.PRURL,
		PRNumber:            req.PRNumber,
		VerificationEnabled: req.VerificationEnabled,
		Metrics:             metrics,
		Learnings:           learnings,
		Review:              review,
	})
	if err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, item)
}

type completeVerificationRequest struct {
	VerificationPassed bool `json:"verificationPassed"`
}

// POST /api/worker/{workerId}/complete-verification
func (h *Handler) completeVerification(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerId")
	var req completeVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON")
		return
	}
	h.completeVerificationFor(w, r, workerID, req.VerificationPassed)
}

func (h *Handler) completeVerificationFor(w http.ResponseWriter, r *http.Request, workerID string, passed bool) {
	if err := h.registry.CompleteVerification(r.Context(), workerID, passed); err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, map[string]bool{"ok": true})
}

type failRequest struct {
	Error     string `json:"error"`
	Iteration int    `json:"iteration"`
}

// POST /api/worker/{workerId}/fail
func (h *Handler) fail(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerId")
	var req failRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON")
		return
	}
	item, err := h.registry.Fail(r.Context(), workerID, req.Error, req.Iteration)
	if err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, item)
}

type stuckRequest struct {
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

// POST /api/worker/{workerId}/stuck
func (h *Handler) stuck(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerId")
	var req stuckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON")
		return
	}
	item, err := h.registry.Stuck(r.Context(), workerID, req.Reason, req.Attempts)
	if err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, item)
}

// POST /api/workers/{workerId}/kill
func (h *Handler) kill(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerId")
	if err := h.registry.Kill(r.Context(), workerID); err != nil {
		FromDomainError(w, r, err)
		return
	}
	OK(w, map[string]bool{"ok": true})
}

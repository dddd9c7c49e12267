// Package httpapi is the HTTP Surface: a thin chi-routed adapter over the
// Queue Manager, Worker Registry, and File-Lock Service implementing the
// submission API, worker RPCs, and read surfaces. Grounded on the
// teacher's internal/infrastructure/http and internal/http/response
// packages.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/skylarbarrera/whim/internal/domain"
)

// ErrorResponse is the standard error response envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code and a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK sends a 200 OK response with JSON data.
func OK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, data)
}

// Created sends a 201 Created response with JSON data.
func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, data)
}

// NoContent sends a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// BadRequest sends a 400 Bad Request error.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, "INVALID_REQUEST", message, http.StatusBadRequest)
}

// NotFound sends a 404 Not Found error.
func NotFound(w http.ResponseWriter, resource string) {
	Error(w, "NOT_FOUND", resource+" not found", http.StatusNotFound)
}

// Conflict sends a 409 Conflict error.
func Conflict(w http.ResponseWriter, message string) {
	Error(w, "CONFLICT", message, http.StatusConflict)
}

// InternalError logs err server-side and returns a generic 500 to the
// client to avoid leaking internal detail.
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		slog.ErrorContext(r.Context(), "internal server error", "error", err)
	}
	Error(w, "INTERNAL_ERROR", "an internal error occurred", http.StatusInternalServerError)
}

// Error sends a generic error response.
func Error(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// FromDomainError maps a domain sentinel error to its HTTP status.
func FromDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		NotFound(w, "work item")
	case errors.Is(err, domain.ErrAlreadyExists):
		Conflict(w, "resource already exists")
	case errors.Is(err, domain.ErrOwnershipLost):
		Conflict(w, "worker no longer owns this work item")
	case errors.Is(err, domain.ErrInvalidTransition):
		BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrFileLocked):
		Conflict(w, "one or more paths are locked by another worker")
	case errors.Is(err, domain.ErrQueueEmpty):
		NotFound(w, "claimable work item")
	default:
		InternalError(w, r, err)
	}
}

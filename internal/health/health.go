// Package health provides HTTP health and readiness check handlers.
//
// The package exposes two endpoints:
//
//   - /healthz — liveness probe; always returns 200 OK.
//   - /readyz  — readiness probe; returns 200 only when no registered
//     [Checker] reports a hard failure.
//
// Checks distinguish failure from degradation. A checker that wraps
// [ErrDegraded] signals reduced quality (a stream session running on poor
// network, for instance) without taking the agent out of rotation: the
// probe stays 200 and the condition is surfaced in the response body.
//
// Responses are JSON objects with a top-level "status" field ("ok",
// "degraded" or "fail") and a "checks" map containing the result of each
// named checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// ErrDegraded marks a check result as degraded rather than failed. Wrap it
// with context: fmt.Errorf("%w: high latency", health.ErrDegraded).
var ErrDegraded = errors.New("degraded")

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy, an error wrapping [ErrDegraded] when it
// works at reduced quality, and any other non-nil error on hard failure.
type Checker struct {
	// Name is a short, human-readable label for this check (e.g. "engine",
	// "transport"). It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz endpoints. It is safe for concurrent
// use; the checker list is fixed at construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request. The checkers are evaluated sequentially in the order provided.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe. It returns 503 when any registered [Checker]
// reports a hard failure and 200 otherwise, with degraded checks reflected
// in the body. Each checker is given a context with a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	overall := "ok"

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		switch {
		case err == nil:
			checks[c.Name] = "ok"
		case errors.Is(err, ErrDegraded):
			// The sentinel text already carries the "degraded" prefix.
			checks[c.Name] = err.Error()
			if overall == "ok" {
				overall = "degraded"
			}
		default:
			checks[c.Name] = "fail: " + err.Error()
			overall = "fail"
		}
	}

	status := http.StatusOK
	if overall == "fail" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, result{Status: overall, Checks: checks})
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

// Package health serves the engine's liveness and readiness probes on the
// sidecar HTTP mux it shares with /metrics.
//
// /healthz answers 200 whenever the process can serve HTTP at all. /readyz
// answers 200 only while every registered [Probe] passes — the engine
// registers a probe that fails while no conversation is live, so an
// orchestrator can tell "process up" from "conversation up" and avoid
// routing traffic at a binary that is merely idling.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness probe. Probes touch in-process
// state (session phase, transport handle), so anything slower is itself a
// failure.
const probeTimeout = 2 * time.Second

// Probe is a named readiness condition. Check returns nil while the
// condition holds and a descriptive error otherwise.
type Probe struct {
	// Name keys the probe's verdict in the /readyz response body,
	// e.g. "session".
	Name string

	// Check evaluates the condition. It must honor ctx cancellation.
	Check func(ctx context.Context) error
}

// report is the response body for both endpoints.
type report struct {
	Status string            `json:"status"`
	Probes map[string]string `json:"probes,omitempty"`
}

// Handler answers the /healthz and /readyz routes. The probe set is fixed
// at construction; the handler itself is stateless and safe for concurrent
// use.
type Handler struct {
	probes []Probe
}

// New builds a Handler over the given probes. Probes run in order on every
// /readyz request.
func New(probes ...Probe) *Handler {
	return &Handler{probes: append([]Probe(nil), probes...)}
}

// Register mounts both routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)
}

// healthz is pure liveness: a process that got this far can serve HTTP.
func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, http.StatusOK, report{Status: "ok"})
}

// readyz runs every probe under a [probeTimeout] deadline and reports 503
// with per-probe verdicts as soon as any of them fails.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	verdicts := make(map[string]string, len(h.probes))
	ready := true

	for _, p := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Check(ctx)
		cancel()

		if err != nil {
			verdicts[p.Name] = err.Error()
			ready = false
			continue
		}
		verdicts[p.Name] = "ok"
	}

	if !ready {
		writeReport(w, http.StatusServiceUnavailable, report{Status: "unavailable", Probes: verdicts})
		return
	}
	writeReport(w, http.StatusOK, report{Status: "ok", Probes: verdicts})
}

func writeReport(w http.ResponseWriter, status int, rep report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

// Package server exposes the process's operational HTTP surface: health,
// readiness and metrics. The admin/public escrow API itself is out of core
// scope (spec §1) — this is the thin surface an operator points a load
// balancer or Prometheus scraper at.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/escrowlabs/escrowd/pkg/database"
	"github.com/escrowlabs/escrowd/pkg/scheduler"
)

// HealthHandlers serves liveness/readiness/status endpoints.
type HealthHandlers struct {
	db  *database.Client
	sch *scheduler.Scheduler
}

// NewHealthHandlers builds health handlers over the process's database
// client and job scheduler.
func NewHealthHandlers(db *database.Client, sch *scheduler.Scheduler) *HealthHandlers {
	return &HealthHandlers{db: db, sch: sch}
}

// statusResponse is the shape of GET /status.
type statusResponse struct {
	Healthy        bool                    `json:"healthy"`
	SchedulerState scheduler.State         `json:"scheduler_state"`
	Database       *database.HealthStatus  `json:"database"`
	CheckedAt      time.Time               `json:"checked_at"`
}

// HandleLiveness handles GET /health: the process is up and serving.
// It does not touch the database — a stuck connection pool should not flip
// liveness and trigger a restart loop, only readiness.
func (h *HealthHandlers) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleReadiness handles GET /ready: the database must be reachable.
func (h *HealthHandlers) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status, err := h.db.Health(r.Context())
	if err != nil || !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus handles GET /status: a fuller operational snapshot, for
// human operators rather than load balancers.
func (h *HealthHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	dbStatus, err := h.db.Health(r.Context())
	if err != nil {
		dbStatus = &database.HealthStatus{Healthy: false, Error: err.Error(), CheckedAt: time.Now()}
	}

	resp := statusResponse{
		Healthy:        dbStatus.Healthy,
		SchedulerState: h.sch.State(),
		Database:       dbStatus,
		CheckedAt:      time.Now(),
	}
	if !resp.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

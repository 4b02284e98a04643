package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// dbPinger defines the minimal interface for DB health checks.
type dbPinger interface {
	Ping(ctx context.Context) error
}

// queueCounter reports aggregate retry-queue counts for the full
// health check.
type queueCounter interface {
	QueueStats(ctx context.Context) (domain.QueueStats, error)
}

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	db      dbPinger
	queue   queueCounter
	version string
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(db dbPinger, queue queueCounter, version string) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, version: version}
}

// HealthResponse is the JSON response for /health and /ready.
type HealthResponse struct {
	Status     string                `json:"status"`
	Version    string                `json:"version,omitempty"`
	Components map[string]CompStatus `json:"components,omitempty"`
	Queue      *QueueCounts          `json:"queue,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}

// CompStatus is the status of an individual component.
type CompStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
}

// QueueCounts breaks down the retry queue by task state. A growing
// abandoned count means decision reports need manual follow-up.
type QueueCounts struct {
	Pending   int `json:"pending"`
	InFlight  int `json:"inFlight"`
	Abandoned int `json:"abandoned"`
	Total     int `json:"total"`
}

// Live is the liveness probe. Always returns 200.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// Ready is the readiness probe. Pings DB: 200 if OK, 503 if not.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "down",
			Timestamp: time.Now(),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// Health is the full health check. Pings DB with latency measurement,
// includes version, and reports the retry-queue breakdown.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	components := make(map[string]CompStatus)
	overallStatus := "ok"

	start := time.Now()
	err := h.db.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		components["database"] = CompStatus{Status: "down"}
		overallStatus = "down"
	} else {
		components["database"] = CompStatus{
			Status:  "ok",
			Latency: latency.String(),
		}
	}

	var queue *QueueCounts

	start = time.Now()
	stats, err := h.queue.QueueStats(ctx)
	latency = time.Since(start)

	if err != nil {
		components["queue"] = CompStatus{Status: "down"}
		overallStatus = "down"
	} else {
		components["queue"] = CompStatus{
			Status:  "ok",
			Latency: latency.String(),
		}
		queue = &QueueCounts{
			Pending:   stats.Pending,
			InFlight:  stats.InFlight,
			Abandoned: stats.Abandoned,
			Total:     stats.Total,
		}
	}

	status := http.StatusOK
	if overallStatus != "ok" {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, HealthResponse{
		Status:     overallStatus,
		Version:    h.version,
		Components: components,
		Queue:      queue,
		Timestamp:  time.Now(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

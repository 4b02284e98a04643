package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// taskService defines the queue operations needed by TasksHandler.
type taskService interface {
	Drain(ctx context.Context, now time.Time) (domain.DrainStats, error)
	ListAbandoned(ctx context.Context, limit, offset int) ([]*domain.DeliveryTask, int, error)
}

// TasksHandler serves the retry-queue endpoints: the scheduler's drain
// sweep and the operator's abandoned-task report.
type TasksHandler struct {
	delivery taskService
	log      *slog.Logger
}

// NewTasksHandler creates a TasksHandler.
func NewTasksHandler(delivery taskService, logger *slog.Logger) *TasksHandler {
	return &TasksHandler{
		delivery: delivery,
		log:      logger.With("handler", "tasks"),
	}
}

type drainRequest struct {
	Now *time.Time `json:"now,omitempty"`
}

type drainResponse struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
}

type taskResponse struct {
	ID            string    `json:"id"`
	JournalID     string    `json:"journalId"`
	SubmissionRef string    `json:"submissionRef"`
	Attempts      int       `json:"attempts"`
	State         string    `json:"state"`
	LastError     *string   `json:"lastError,omitempty"`
	NextAttemptAt time.Time `json:"nextAttemptAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type abandonedResponse struct {
	Tasks []taskResponse `json:"tasks"`
	Total int            `json:"total"`
}

// Drain handles POST /api/v1/tasks/drain. The body is optional; a
// scheduler that wants reproducible sweeps can pin the reference time.
func (h *TasksHandler) Drain(w http.ResponseWriter, r *http.Request) {
	var req drainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var now time.Time
	if req.Now != nil {
		now = *req.Now
	}

	stats, err := h.delivery.Drain(r.Context(), now)
	if err != nil {
		h.log.ErrorContext(r.Context(), "drain failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, drainResponse{
		Attempted: stats.Attempted,
		Succeeded: stats.Succeeded,
		Failed:    stats.Failed,
		Abandoned: stats.Abandoned,
	})
}

// Abandoned handles GET /api/v1/tasks/abandoned?limit=50&offset=0.
// It lists decision reports the queue has given up on so an operator
// can follow up with RQC out of band.
func (h *TasksHandler) Abandoned(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		json.Unmarshal([]byte(v), &limit) //nolint:errcheck
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		json.Unmarshal([]byte(v), &offset) //nolint:errcheck
	}

	tasks, total, err := h.delivery.ListAbandoned(r.Context(), limit, offset)
	if err != nil {
		h.log.ErrorContext(r.Context(), "list abandoned tasks", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := abandonedResponse{
		Tasks: make([]taskResponse, 0, len(tasks)),
		Total: total,
	}
	for _, task := range tasks {
		resp.Tasks = append(resp.Tasks, taskResponse{
			ID:            task.ID.String(),
			JournalID:     task.JournalID.String(),
			SubmissionRef: task.SubmissionRef,
			Attempts:      task.Attempts,
			State:         task.State.String(),
			LastError:     task.LastError,
			NextAttemptAt: task.NextAttemptAt,
			UpdatedAt:     task.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

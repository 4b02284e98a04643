package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/rqc"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// gradingService defines the delivery operation needed by GradingHandler.
type gradingService interface {
	TriggerGrading(ctx context.Context, sub domain.Submission, reviews []domain.HostReview, interactiveUser string, submissionPage string) (string, error)
}

// GradingHandler serves the interactive grading trigger. Unlike the
// event endpoints, its failures surface to the caller: an editor is
// waiting for the redirect.
type GradingHandler struct {
	delivery gradingService
	log      *slog.Logger
}

// NewGradingHandler creates a GradingHandler.
func NewGradingHandler(delivery gradingService, logger *slog.Logger) *GradingHandler {
	return &GradingHandler{
		delivery: delivery,
		log:      logger.With("handler", "grading"),
	}
}

type triggerRequest struct {
	Submission      submissionDTO `json:"submission"`
	Reviews         []reviewDTO   `json:"reviews,omitempty"`
	InteractiveUser string        `json:"interactiveUser"`
	SubmissionPage  string        `json:"submissionPage,omitempty"`
}

type triggerResponse struct {
	OK          bool   `json:"ok"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// Trigger handles POST /api/v1/grading/trigger.
func (h *GradingHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := toDomainSubmission(req.Submission)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reviews, err := toDomainReviews(req.Reviews)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	redirectURL, err := h.delivery.TriggerGrading(r.Context(), sub, reviews, req.InteractiveUser, req.SubmissionPage)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, triggerResponse{OK: true, RedirectURL: redirectURL})
}

func (h *GradingHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrCredentialsMissing):
		writeError(w, http.StatusConflict, "journal has no RQC credentials")
	case errors.Is(err, domain.ErrCredentialsInvalid):
		writeError(w, http.StatusConflict, "journal credentials rejected by RQC")
	case errors.Is(err, rqc.ErrUnavailable):
		h.log.WarnContext(r.Context(), "grading trigger hit unreachable rqc", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "rqc unreachable, try again later")
	default:
		h.log.ErrorContext(r.Context(), "grading trigger failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/rqc"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// credentialService defines the credential operations needed by
// CredentialsHandler.
type credentialService interface {
	Put(ctx context.Context, journalID uuid.UUID, rqcJournalID int, apiKey string) (domain.JournalCredential, rqc.ValidationResult, error)
}

// CredentialsHandler serves the per-journal RQC credential endpoint.
type CredentialsHandler struct {
	svc credentialService
	log *slog.Logger
}

// NewCredentialsHandler creates a CredentialsHandler.
func NewCredentialsHandler(svc credentialService, logger *slog.Logger) *CredentialsHandler {
	return &CredentialsHandler{
		svc: svc,
		log: logger.With("handler", "credentials"),
	}
}

type credentialRequest struct {
	RQCJournalID int    `json:"rqcJournalId"`
	APIKey       string `json:"apiKey"`
}

type credentialResponse struct {
	Validated bool   `json:"validated"`
	Reason    string `json:"reason,omitempty"`
}

// Put handles PUT /api/v1/journals/{journalID}/credentials. The pair is
// stored either way; the response says whether RQC accepted it.
func (h *CredentialsHandler) Put(w http.ResponseWriter, r *http.Request) {
	journalID, err := uuid.Parse(r.PathValue("journalID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid journal id")
		return
	}

	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stored, result, err := h.svc.Put(r.Context(), journalID, req.RQCJournalID, req.APIKey)
	if err != nil {
		h.handleError(w, r, stored, err)
		return
	}

	writeJSON(w, http.StatusOK, credentialResponse{
		Validated: result.OK,
		Reason:    result.Reason,
	})
}

func (h *CredentialsHandler) handleError(w http.ResponseWriter, r *http.Request, stored domain.JournalCredential, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, rqc.ErrUnavailable):
		// The pair was stored; only the check did not happen. The
		// operator retries the same PUT once RQC is back.
		h.log.WarnContext(r.Context(), "credential check unreachable",
			slog.String("journal_id", stored.JournalID.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "credential check unreachable, pair stored unvalidated")
	default:
		h.log.ErrorContext(r.Context(), "store credentials", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

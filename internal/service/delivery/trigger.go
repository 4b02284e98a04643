package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// TriggerGrading posts the submission to RQC on behalf of an editor
// and returns the grading session URL to redirect them to. The call is
// interactive: every failure surfaces to the caller and nothing is
// ever queued. Missing or unvalidated credentials fail before any
// request is made.
func (s *Service) TriggerGrading(
	ctx context.Context,
	sub domain.Submission,
	reviews []domain.HostReview,
	interactiveUser string,
	submissionPage string,
) (string, error) {
	if interactiveUser == "" {
		return "", domain.NewValidationError("interactive_user", "required")
	}

	cred, err := s.credentials.Get(ctx, sub.JournalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: journal %s", domain.ErrCredentialsMissing, sub.JournalID)
		}
		return "", fmt.Errorf("get journal credential: %w", err)
	}
	if !cred.UsableForDelivery() {
		return "", fmt.Errorf("%w: journal %s", domain.ErrCredentialsInvalid, sub.JournalID)
	}

	event, err := s.buildEvent(ctx, sub, nil, nil, reviews)
	if err != nil {
		return "", err
	}

	result, err := s.rqc.TriggerGrading(ctx, cred, event, interactiveUser, submissionPage)
	if err != nil {
		return "", err
	}

	s.ensureCallRecord(ctx, event)
	s.log.InfoContext(ctx, "grading trigger delivered",
		slog.String("journal_id", event.JournalID.String()),
		slog.String("submission_ref", event.SubmissionRef),
		slog.Bool("redirect", result.RedirectURL != ""),
	)

	return result.RedirectURL, nil
}

package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// ReportDecision delivers one editorial decision to RQC: exactly one
// synchronous attempt, then the durable queue takes over on transient
// failure. RQC being down or rejecting the call never surfaces to the
// editorial workflow; only a malformed event or a broken store does.
func (s *Service) ReportDecision(
	ctx context.Context,
	sub domain.Submission,
	decision domain.HostDecision,
	decisionEditors []domain.Person,
	reviews []domain.HostReview,
) error {
	cred, err := s.credentials.Get(ctx, sub.JournalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.log.WarnContext(ctx, "decision dropped, journal has no credentials",
				slog.String("journal_id", sub.JournalID.String()),
				slog.String("submission_ref", sub.Ref),
			)
			return nil
		}
		return fmt.Errorf("get journal credential: %w", err)
	}
	if !cred.UsableForDelivery() {
		s.log.WarnContext(ctx, "decision dropped, journal credentials not validated",
			slog.String("journal_id", sub.JournalID.String()),
			slog.String("submission_ref", sub.Ref),
		)
		return nil
	}

	event, err := s.buildEvent(ctx, sub, &decision, decisionEditors, reviews)
	if err != nil {
		return err
	}

	result, err := s.rqc.ReportDecision(ctx, cred, event)
	if err != nil {
		return fmt.Errorf("report decision: %w", err)
	}

	switch result.Outcome {
	case domain.OutcomeDelivered:
		s.recordDelivered(ctx, event)
		s.log.InfoContext(ctx, "decision reported",
			slog.String("journal_id", event.JournalID.String()),
			slog.String("submission_ref", event.SubmissionRef),
			slog.String("decision", event.Decision.String()),
		)
	case domain.OutcomeTransientFailure:
		if err := s.enqueue(ctx, event); err != nil {
			return fmt.Errorf("enqueue decision report: %w", err)
		}
		s.log.WarnContext(ctx, "decision report queued for retry",
			slog.String("journal_id", event.JournalID.String()),
			slog.String("submission_ref", event.SubmissionRef),
			slog.String("detail", result.Detail),
		)
	default:
		// Credential and payload rejections cannot heal on retry, so
		// they are not queued.
		s.log.ErrorContext(ctx, "decision report rejected",
			slog.String("journal_id", event.JournalID.String()),
			slog.String("submission_ref", event.SubmissionRef),
			slog.String("outcome", result.Outcome.String()),
			slog.String("detail", result.Detail),
		)
	}

	return nil
}

// recordDelivered books a successful synchronous report: the editor
// set is frozen and any queued older payload for the submission is
// superseded. Both are best effort, the report itself already went
// through.
func (s *Service) recordDelivered(ctx context.Context, event domain.DecisionEvent) {
	s.ensureCallRecord(ctx, event)

	if err := s.tasks.DeleteBySubmission(ctx, event.JournalID, event.SubmissionRef); err != nil {
		s.log.ErrorContext(ctx, "clear queued task after delivery",
			slog.String("journal_id", event.JournalID.String()),
			slog.String("submission_ref", event.SubmissionRef),
			slog.String("error", err.Error()),
		)
	}
}

// Package delivery orchestrates every call to RQC: the synchronous
// decision report with its durable retry queue, the interactive
// grading trigger, and the drain sweep that redelivers queued reports.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/rqc"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/config"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type taskRepo interface {
	UpsertPending(ctx context.Context, t *domain.DeliveryTask) (*domain.DeliveryTask, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.DeliveryTask, error)
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, nextAttemptAt time.Time, maxAttempts int) (*domain.DeliveryTask, error)
	Complete(ctx context.Context, id uuid.UUID) error
	DeleteBySubmission(ctx context.Context, journalID uuid.UUID, submissionRef string) error
	ResetStuck(ctx context.Context, before time.Time) (int, error)
	List(ctx context.Context, filter domain.TaskFilter) ([]*domain.DeliveryTask, int, error)
	CountByState(ctx context.Context) (domain.QueueStats, error)
}

type callRecordRepo interface {
	Create(ctx context.Context, rec domain.CallRecord) (domain.CallRecord, error)
	Get(ctx context.Context, journalID uuid.UUID, submissionRef string) (domain.CallRecord, error)
}

type credentialStore interface {
	Get(ctx context.Context, journalID uuid.UUID) (domain.JournalCredential, error)
}

type rqcClient interface {
	ReportDecision(ctx context.Context, cred domain.JournalCredential, event domain.DecisionEvent) (rqc.ReportResult, error)
	TriggerGrading(ctx context.Context, cred domain.JournalCredential, event domain.DecisionEvent, interactiveUser, submissionPage string) (rqc.TriggerResult, error)
}

type eventBuilder interface {
	BuildDecisionEvent(ctx context.Context, sub domain.Submission, decision *domain.HostDecision, decisionEditors []domain.Person, reviews []domain.HostReview) (domain.DecisionEvent, error)
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service delivers normalized decision events to RQC.
type Service struct {
	log         *slog.Logger
	tasks       taskRepo
	callRecords callRecordRepo
	credentials credentialStore
	rqc         rqcClient
	normalizer  eventBuilder
	cfg         config.QueueConfig
}

// NewService creates a new delivery service.
func NewService(
	logger *slog.Logger,
	tasks taskRepo,
	callRecords callRecordRepo,
	credentials credentialStore,
	client rqcClient,
	normalizer eventBuilder,
	cfg config.QueueConfig,
) *Service {
	return &Service{
		log:         logger.With("service", "delivery"),
		tasks:       tasks,
		callRecords: callRecords,
		credentials: credentials,
		rqc:         client,
		normalizer:  normalizer,
		cfg:         cfg,
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// buildEvent normalizes the host snapshot and replays the frozen
// editor set of the submission's first successful call, if any. RQC's
// grading assignments must not churn between calls, so once a call
// went through, every later call carries the same editors.
func (s *Service) buildEvent(
	ctx context.Context,
	sub domain.Submission,
	decision *domain.HostDecision,
	decisionEditors []domain.Person,
	reviews []domain.HostReview,
) (domain.DecisionEvent, error) {
	event, err := s.normalizer.BuildDecisionEvent(ctx, sub, decision, decisionEditors, reviews)
	if err != nil {
		return domain.DecisionEvent{}, err
	}

	rec, err := s.callRecords.Get(ctx, event.JournalID, event.SubmissionRef)
	switch {
	case err == nil:
		event.Editors = rec.Editors
	case !errors.Is(err, domain.ErrNotFound):
		return domain.DecisionEvent{}, fmt.Errorf("get call record: %w", err)
	}

	return event, nil
}

// ensureCallRecord freezes the delivered editor set after the first
// successful call for a submission. The record is written at most
// once; losing the write is logged but never fails the delivery that
// already happened.
func (s *Service) ensureCallRecord(ctx context.Context, event domain.DecisionEvent) {
	_, err := s.callRecords.Create(ctx, domain.CallRecord{
		JournalID:     event.JournalID,
		SubmissionRef: event.SubmissionRef,
		Editors:       event.Editors,
		ReportedAt:    time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		s.log.ErrorContext(ctx, "store call record",
			slog.String("journal_id", event.JournalID.String()),
			slog.String("submission_ref", event.SubmissionRef),
			slog.String("error", err.Error()),
		)
	}
}

// enqueue parks the event for redelivery by a later drain. At most one
// task exists per submission; a queued older payload is replaced.
func (s *Service) enqueue(ctx context.Context, event domain.DecisionEvent) error {
	_, err := s.tasks.UpsertPending(ctx, &domain.DeliveryTask{
		ID:            uuid.New(),
		JournalID:     event.JournalID,
		SubmissionRef: event.SubmissionRef,
		Payload:       event,
		NextAttemptAt: time.Now().UTC().Add(s.cfg.RetryInterval),
	})
	return err
}

// Package consent implements the reviewer participation question: one
// record per (reviewer, journal, grading-year), asked at most once,
// answered at most once. The answer governs anonymization for every
// review the reviewer submits in that journal-year.
package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

type consentRepo interface {
	GetOrCreate(ctx context.Context, reviewerID, journalID uuid.UUID, gradingYear int) (domain.ConsentRecord, error)
	Get(ctx context.Context, reviewerID, journalID uuid.UUID, gradingYear int) (domain.ConsentRecord, error)
	Answer(ctx context.Context, reviewerID, journalID uuid.UUID, gradingYear int, optedIn bool, answeredAt time.Time) (domain.ConsentRecord, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service wraps the consent repository with the ask-once semantics.
type Service struct {
	log  *slog.Logger
	repo consentRepo
	txm  txManager
}

// NewService creates a new consent service.
func NewService(logger *slog.Logger, repo consentRepo, txm txManager) *Service {
	return &Service{
		log:  logger.With("service", "consent"),
		repo: repo,
		txm:  txm,
	}
}

// ReviewSubmitted registers that a reviewer completed a review in the
// journal-year and returns the consent record. A fresh record has
// asked=false, which tells the caller to show the participation
// question. Idempotent; concurrent first reviews create one record.
func (s *Service) ReviewSubmitted(ctx context.Context, reviewerID, journalID uuid.UUID, gradingYear int) (domain.ConsentRecord, error) {
	gradingYear = defaultYear(gradingYear)
	if err := validateKey(reviewerID, journalID, gradingYear); err != nil {
		return domain.ConsentRecord{}, err
	}

	rec, err := s.repo.GetOrCreate(ctx, reviewerID, journalID, gradingYear)
	if err != nil {
		return domain.ConsentRecord{}, fmt.Errorf("get or create consent: %w", err)
	}

	if rec.PromptRequired() {
		s.log.DebugContext(ctx, "consent prompt required",
			slog.String("reviewer_id", reviewerID.String()),
			slog.Int("grading_year", gradingYear),
		)
	}

	return rec, nil
}

// RecordAnswer stores the reviewer's one-time answer to the
// participation question. A second answer for the same journal-year
// fails with domain.ErrAlreadyAnswered and leaves the stored state
// untouched; callers log and ignore it.
func (s *Service) RecordAnswer(ctx context.Context, reviewerID, journalID uuid.UUID, gradingYear int, optedIn bool) (domain.ConsentRecord, error) {
	gradingYear = defaultYear(gradingYear)
	if err := validateKey(reviewerID, journalID, gradingYear); err != nil {
		return domain.ConsentRecord{}, err
	}

	now := time.Now().UTC()

	// The question can be answered from the review form before any
	// completed review created the record, so make sure it exists. The
	// create and the answer commit together.
	var rec domain.ConsentRecord
	err := s.txm.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetOrCreate(ctx, reviewerID, journalID, gradingYear); err != nil {
			return fmt.Errorf("get or create consent: %w", err)
		}
		var err error
		rec, err = s.repo.Answer(ctx, reviewerID, journalID, gradingYear, optedIn, now)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyAnswered) {
			s.log.WarnContext(ctx, "consent answered twice, keeping first answer",
				slog.String("reviewer_id", reviewerID.String()),
				slog.String("journal_id", journalID.String()),
				slog.Int("grading_year", gradingYear),
			)
		}
		return domain.ConsentRecord{}, err
	}

	s.log.InfoContext(ctx, "consent recorded",
		slog.String("reviewer_id", reviewerID.String()),
		slog.String("journal_id", journalID.String()),
		slog.Int("grading_year", gradingYear),
		slog.Bool("opted_in", optedIn),
	)

	return rec, nil
}

// IsAnonymizationRequired is the single source of truth for whether a
// reviewer's identity must be withheld from outgoing payloads.
// Unauthenticated (one-click) reviewers and reviewers without a
// positive answer are always anonymized; so is a reviewer with no
// consent record at all.
func (s *Service) IsAnonymizationRequired(ctx context.Context, reviewerID, journalID uuid.UUID, gradingYear int, isAuthenticated bool) (bool, error) {
	gradingYear = defaultYear(gradingYear)
	if err := validateKey(reviewerID, journalID, gradingYear); err != nil {
		return true, err
	}

	rec, err := s.repo.Get(ctx, reviewerID, journalID, gradingYear)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return true, nil
		}
		return true, fmt.Errorf("get consent: %w", err)
	}

	return rec.AnonymizationRequired(isAuthenticated), nil
}

// defaultYear substitutes the current UTC year for an unset grading
// year.
func defaultYear(year int) int {
	if year == 0 {
		return time.Now().UTC().Year()
	}
	return year
}

func validateKey(reviewerID, journalID uuid.UUID, gradingYear int) error {
	var errs []domain.FieldError

	if reviewerID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "reviewer_id", Message: "required"})
	}
	if journalID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "journal_id", Message: "required"})
	}
	if gradingYear < 2000 || gradingYear > 2200 {
		errs = append(errs, domain.FieldError{Field: "grading_year", Message: "out of range"})
	}

	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

// Package credential manages the per-journal RQC credential pair. The
// journal id and API key are only meaningful together, so they are
// stored together, and a fresh pair is checked against RQC right away;
// delivery refuses journals whose pair was never confirmed.
package credential

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/rqc"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

const maxAPIKeyChars = 128

// ---------------------------------------------------------------------------
// Consumer-defined interfaces (private)
// ---------------------------------------------------------------------------

type credentialRepo interface {
	Upsert(ctx context.Context, cred domain.JournalCredential) (domain.JournalCredential, error)
	Get(ctx context.Context, journalID uuid.UUID) (domain.JournalCredential, error)
	SetValidated(ctx context.Context, journalID uuid.UUID, validatedAt time.Time) error
}

type credentialValidator interface {
	ValidateCredentials(ctx context.Context, cred domain.JournalCredential) (rqc.ValidationResult, error)
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Service stores and validates journal credentials.
type Service struct {
	log  *slog.Logger
	repo credentialRepo
	rqc  credentialValidator
}

// NewService creates a new credential service.
func NewService(logger *slog.Logger, repo credentialRepo, validator credentialValidator) *Service {
	return &Service{
		log:  logger.With("service", "credential"),
		repo: repo,
		rqc:  validator,
	}
}

// Put stores the credential pair for a journal and checks it against
// RQC. The pair is persisted unvalidated first, so a rejected or
// unreachable check leaves the key stored but delivery blocked until a
// later Put confirms it. The returned ValidationResult tells the
// caller whether RQC accepted the pair and why not otherwise.
func (s *Service) Put(ctx context.Context, journalID uuid.UUID, rqcJournalID int, apiKey string) (domain.JournalCredential, rqc.ValidationResult, error) {
	if err := validatePut(journalID, rqcJournalID, apiKey); err != nil {
		return domain.JournalCredential{}, rqc.ValidationResult{}, err
	}

	// The salt only lands on the journal's first credential row;
	// upsert keeps the existing salt on key rotation.
	salt, err := domain.NewJournalSalt()
	if err != nil {
		return domain.JournalCredential{}, rqc.ValidationResult{}, err
	}

	stored, err := s.repo.Upsert(ctx, domain.JournalCredential{
		JournalID:    journalID,
		RQCJournalID: rqcJournalID,
		APIKey:       apiKey,
		Salt:         salt,
	})
	if err != nil {
		return domain.JournalCredential{}, rqc.ValidationResult{}, fmt.Errorf("store journal credential: %w", err)
	}

	result, err := s.rqc.ValidateCredentials(ctx, stored)
	if err != nil {
		s.log.WarnContext(ctx, "credential check unreachable, pair stored unvalidated",
			slog.String("journal_id", journalID.String()),
			slog.String("error", err.Error()),
		)
		return stored, rqc.ValidationResult{}, fmt.Errorf("validate credentials: %w", err)
	}

	if !result.OK {
		s.log.WarnContext(ctx, "rqc rejected credential pair",
			slog.String("journal_id", journalID.String()),
			slog.Int("rqc_journal_id", rqcJournalID),
			slog.String("reason", result.Reason),
		)
		return stored, result, nil
	}

	now := time.Now().UTC()
	if err := s.repo.SetValidated(ctx, journalID, now); err != nil {
		return stored, result, fmt.Errorf("mark credential validated: %w", err)
	}
	stored.Validated = true
	stored.LastValidatedAt = &now

	s.log.InfoContext(ctx, "journal credentials validated",
		slog.String("journal_id", journalID.String()),
		slog.Int("rqc_journal_id", rqcJournalID),
	)
	return stored, result, nil
}

// Get returns the stored credential pair for a journal.
// Returns domain.ErrNotFound if the journal has none.
func (s *Service) Get(ctx context.Context, journalID uuid.UUID) (domain.JournalCredential, error) {
	if journalID == uuid.Nil {
		return domain.JournalCredential{}, domain.NewValidationError("journal_id", "required")
	}
	return s.repo.Get(ctx, journalID)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func validatePut(journalID uuid.UUID, rqcJournalID int, apiKey string) error {
	var errs []domain.FieldError

	if journalID == uuid.Nil {
		errs = append(errs, domain.FieldError{Field: "journal_id", Message: "required"})
	}
	if rqcJournalID <= 0 {
		errs = append(errs, domain.FieldError{Field: "rqc_journal_id", Message: "must be positive"})
	}

	if apiKey == "" {
		errs = append(errs, domain.FieldError{Field: "api_key", Message: "required"})
	} else if len(apiKey) > maxAPIKeyChars {
		errs = append(errs, domain.FieldError{Field: "api_key", Message: fmt.Sprintf("too long (max %d)", maxAPIKeyChars)})
	} else if !printableKey(apiKey) {
		// The key travels in the Authorization header; spaces or
		// control characters would corrupt it.
		errs = append(errs, domain.FieldError{Field: "api_key", Message: "must not contain spaces or control characters"})
	}

	if len(errs) > 0 {
		return domain.NewValidationErrors(errs)
	}
	return nil
}

func printableKey(s string) bool {
	for _, r := range s {
		if r <= ' ' || r > '~' {
			return false
		}
	}
	return true
}

// Package consent implements the ConsentRecord repository using PostgreSQL.
package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// Repo provides reviewer consent persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new consent repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// SQL constants
// ---------------------------------------------------------------------------

const consentColumns = `reviewer_id, journal_id, grading_year, asked, opted_in, created_at, answered_at`

const insertIfAbsentSQL = `
INSERT INTO consent_records (reviewer_id, journal_id, grading_year)
VALUES ($1, $2, $3)
ON CONFLICT (reviewer_id, journal_id, grading_year) DO NOTHING`

const getSQL = `
SELECT ` + consentColumns + `
FROM consent_records
WHERE reviewer_id = $1 AND journal_id = $2 AND grading_year = $3`

// answerSQL only matches unanswered records, so a second answer updates nothing.
const answerSQL = `
UPDATE consent_records
SET asked = true, opted_in = $4, answered_at = $5
WHERE reviewer_id = $1 AND journal_id = $2 AND grading_year = $3 AND asked = false
RETURNING ` + consentColumns

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// GetOrCreate returns the consent record for (reviewer, journal, grading year),
// creating an unanswered one if none exists yet. Concurrent callers converge on
// the same row.
func (r *Repo) GetOrCreate(ctx context.Context, reviewerID, journalID uuid.UUID, gradingYear int) (domain.ConsentRecord, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	if _, err := querier.Exec(ctx, insertIfAbsentSQL, reviewerID, journalID, gradingYear); err != nil {
		return domain.ConsentRecord{}, mapError(err, "consent_record", reviewerID)
	}

	row := querier.QueryRow(ctx, getSQL, reviewerID, journalID, gradingYear)

	rec, err := scanConsent(row)
	if err != nil {
		return domain.ConsentRecord{}, mapError(err, "consent_record", reviewerID)
	}

	return rec, nil
}

// Get returns the consent record for (reviewer, journal, grading year).
// Returns domain.ErrNotFound if no record exists.
func (r *Repo) Get(ctx context.Context, reviewerID, journalID uuid.UUID, gradingYear int) (domain.ConsentRecord, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	row := querier.QueryRow(ctx, getSQL, reviewerID, journalID, gradingYear)

	rec, err := scanConsent(row)
	if err != nil {
		return domain.ConsentRecord{}, mapError(err, "consent_record", reviewerID)
	}

	return rec, nil
}

// Answer records the reviewer's opt-in or opt-out for the grading year.
// Returns domain.ErrAlreadyAnswered if the record was answered before, and
// domain.ErrNotFound if no record exists for the key.
func (r *Repo) Answer(ctx context.Context, reviewerID, journalID uuid.UUID, gradingYear int, optedIn bool, answeredAt time.Time) (domain.ConsentRecord, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	row := querier.QueryRow(ctx, answerSQL,
		reviewerID,
		journalID,
		gradingYear,
		optedIn,
		answeredAt.UTC().Truncate(time.Microsecond),
	)

	rec, err := scanConsent(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.ConsentRecord{}, mapError(err, "consent_record", reviewerID)
	}

	// The update matched nothing: either the record is missing or it was
	// already answered. Re-read to tell the two apart.
	existing, getErr := r.Get(ctx, reviewerID, journalID, gradingYear)
	if getErr != nil {
		return domain.ConsentRecord{}, getErr
	}
	if existing.Asked {
		return domain.ConsentRecord{}, fmt.Errorf("consent_record %s: %w", reviewerID, domain.ErrAlreadyAnswered)
	}

	return domain.ConsentRecord{}, fmt.Errorf("consent_record %s: %w", reviewerID, domain.ErrConflict)
}

// ---------------------------------------------------------------------------
// Row scanning helpers
// ---------------------------------------------------------------------------

// scanConsent scans a single consent row from pgx.Row.
func scanConsent(row pgx.Row) (domain.ConsentRecord, error) {
	var rec domain.ConsentRecord

	err := row.Scan(
		&rec.ReviewerID,
		&rec.JournalID,
		&rec.GradingYear,
		&rec.Asked,
		&rec.OptedIn,
		&rec.CreatedAt,
		&rec.AnsweredAt,
	)
	if err != nil {
		return domain.ConsentRecord{}, err
	}

	return rec, nil
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

// mapError converts pgx/pgconn errors into domain errors.
func mapError(err error, entity string, id uuid.UUID) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", entity, id, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s %s: %w", entity, id, domain.ErrAlreadyExists)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
		case "23514": // check_violation
			return fmt.Errorf("%s %s: %w", entity, id, domain.ErrValidation)
		}
	}

	return fmt.Errorf("%s %s: %w", entity, id, err)
}

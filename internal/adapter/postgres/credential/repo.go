// Package credential implements the JournalCredential repository using PostgreSQL.
package credential

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

// Repo provides journal credential persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new credential repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// SQL constants
// ---------------------------------------------------------------------------

const credentialColumns = `journal_id, rqc_journal_id, api_key, salt, validated, last_validated_at, created_at, updated_at`

// The salt is written once on first insert and survives key rotations, so the
// conflict branch deliberately leaves it untouched.
const upsertSQL = `
INSERT INTO journal_credentials (journal_id, rqc_journal_id, api_key, salt, validated, last_validated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (journal_id) DO UPDATE SET
    rqc_journal_id    = EXCLUDED.rqc_journal_id,
    api_key           = EXCLUDED.api_key,
    validated         = EXCLUDED.validated,
    last_validated_at = EXCLUDED.last_validated_at
RETURNING ` + credentialColumns

const getSQL = `
SELECT ` + credentialColumns + `
FROM journal_credentials
WHERE journal_id = $1`

const setValidatedSQL = `
UPDATE journal_credentials
SET validated = true, last_validated_at = $2
WHERE journal_id = $1`

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Upsert stores the credential pair for a journal, replacing any previous pair.
// The per-journal salt is preserved when the journal already has a credential row.
func (r *Repo) Upsert(ctx context.Context, cred domain.JournalCredential) (domain.JournalCredential, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	row := querier.QueryRow(ctx, upsertSQL,
		cred.JournalID,
		cred.RQCJournalID,
		cred.APIKey,
		cred.Salt,
		cred.Validated,
		cred.LastValidatedAt,
	)

	stored, err := scanCredential(row)
	if err != nil {
		return domain.JournalCredential{}, mapError(err, "journal_credential", cred.JournalID)
	}

	return stored, nil
}

// Get returns the credential pair for a journal.
// Returns domain.ErrNotFound if the journal has no stored credential.
func (r *Repo) Get(ctx context.Context, journalID uuid.UUID) (domain.JournalCredential, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	row := querier.QueryRow(ctx, getSQL, journalID)

	cred, err := scanCredential(row)
	if err != nil {
		return domain.JournalCredential{}, mapError(err, "journal_credential", journalID)
	}

	return cred, nil
}

// SetValidated marks the stored credential as confirmed by the grading service.
// Returns domain.ErrNotFound if the journal has no stored credential.
func (r *Repo) SetValidated(ctx context.Context, journalID uuid.UUID, validatedAt time.Time) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	ct, err := querier.Exec(ctx, setValidatedSQL, journalID, validatedAt.UTC().Truncate(time.Microsecond))
	if err != nil {
		return mapError(err, "journal_credential", journalID)
	}

	if ct.RowsAffected() == 0 {
		return fmt.Errorf("journal_credential %s: %w", journalID, domain.ErrNotFound)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Row scanning helpers
// ---------------------------------------------------------------------------

// scanCredential scans a single credential row from pgx.Row.
func scanCredential(row pgx.Row) (domain.JournalCredential, error) {
	var cred domain.JournalCredential

	err := row.Scan(
		&cred.JournalID,
		&cred.RQCJournalID,
		&cred.APIKey,
		&cred.Salt,
		&cred.Validated,
		&cred.LastValidatedAt,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return domain.JournalCredential{}, err
	}

	return cred, nil
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

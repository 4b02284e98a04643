// Package callrecord implements the CallRecord repository using PostgreSQL.
// All queries use raw SQL (no sqlc) since the editors column is JSONB requiring
// custom marshal/unmarshal logic.
package callrecord

import (
	"context"
	"encoding/json"
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

// Repo provides call record persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new call record repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// SQL constants
// ---------------------------------------------------------------------------

const callRecordColumns = `journal_id, submission_ref, editors, reported_at`

const createSQL = `
INSERT INTO call_records (journal_id, submission_ref, editors, reported_at)
VALUES ($1, $2, $3, $4)
RETURNING ` + callRecordColumns

const getSQL = `
SELECT ` + callRecordColumns + `
FROM call_records
WHERE journal_id = $1 AND submission_ref = $2`

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Create inserts the call record for a submission's first successful delivery.
// Returns domain.ErrAlreadyExists if the submission was already reported; the
// stored record wins and later deliveries must replay its editor set.
func (r *Repo) Create(ctx context.Context, rec domain.CallRecord) (domain.CallRecord, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	editorsJSON, err := marshalEditors(rec.Editors)
	if err != nil {
		return domain.CallRecord{}, fmt.Errorf("call_record %s: marshal editors: %w", rec.SubmissionRef, err)
	}

	row := querier.QueryRow(ctx, createSQL,
		rec.JournalID,
		rec.SubmissionRef,
		editorsJSON,
		rec.ReportedAt.UTC().Truncate(time.Microsecond),
	)

	stored, err := scanCallRecord(row)
	if err != nil {
		return domain.CallRecord{}, mapError(err, "call_record", rec.JournalID)
	}

	return stored, nil
}

// Get returns the call record for a submission.
// Returns domain.ErrNotFound if the submission has not been reported yet.
func (r *Repo) Get(ctx context.Context, journalID uuid.UUID, submissionRef string) (domain.CallRecord, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	row := querier.QueryRow(ctx, getSQL, journalID, submissionRef)

	rec, err := scanCallRecord(row)
	if err != nil {
		return domain.CallRecord{}, mapError(err, "call_record", journalID)
	}

	return rec, nil
}

// ---------------------------------------------------------------------------
// Row scanning helpers
// ---------------------------------------------------------------------------

// scanCallRecord scans a single call record row from pgx.Row.
func scanCallRecord(row pgx.Row) (domain.CallRecord, error) {
	var (
		rec         domain.CallRecord
		editorsJSON []byte
	)

	err := row.Scan(
		&rec.JournalID,
		&rec.SubmissionRef,
		&editorsJSON,
		&rec.ReportedAt,
	)
	if err != nil {
		return domain.CallRecord{}, err
	}

	editors, err := unmarshalEditors(editorsJSON)
	if err != nil {
		return domain.CallRecord{}, fmt.Errorf("call_record %s: %w", rec.SubmissionRef, err)
	}
	rec.Editors = editors

	return rec, nil
}

// ---------------------------------------------------------------------------
// JSONB serialization helpers for editor assignments
// ---------------------------------------------------------------------------

// editorJSON is an intermediate struct for JSON marshaling of domain.EditorAssignment.
// Domain types have no json tags, so the repo layer handles serialization.
type editorJSON struct {
	Email     string  `json:"email"`
	FirstName string  `json:"firstname"`
	LastName  string  `json:"lastname"`
	OrcidID   *string `json:"orcid_id"`
	Level     int     `json:"level"`
}

// marshalEditors converts editor assignments to JSON bytes for JSONB storage.
func marshalEditors(editors []domain.EditorAssignment) ([]byte, error) {
	out := make([]editorJSON, len(editors))
	for i, e := range editors {
		out[i] = editorJSON{
			Email:     e.Person.Email,
			FirstName: e.Person.FirstName,
			LastName:  e.Person.LastName,
			OrcidID:   e.Person.OrcidID,
			Level:     int(e.Level),
		}
	}
	return json.Marshal(out)
}

// unmarshalEditors converts JSON bytes from JSONB storage to editor assignments.
func unmarshalEditors(data []byte) ([]domain.EditorAssignment, error) {
	var raw []editorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal editors: %w", err)
	}

	editors := make([]domain.EditorAssignment, len(raw))
	for i, e := range raw {
		editors[i] = domain.EditorAssignment{
			Person: domain.Person{
				Email:     e.Email,
				FirstName: e.FirstName,
				LastName:  e.LastName,
				OrcidID:   e.OrcidID,
			},
			Level: domain.EditorLevel(e.Level),
		}
	}
	return editors, nil
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

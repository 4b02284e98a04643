// Package task implements the DeliveryTask repository using PostgreSQL.
// All queries use raw SQL (no sqlc) since the payload column is JSONB requiring
// custom marshal/unmarshal logic. The one listing query with dynamic filters
// is built with squirrel.
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/reviewqualitycollector/janeway-rqcplugin/internal/adapter/postgres"
	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

// psql builds queries with PostgreSQL $N placeholders.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Repo provides delivery task persistence backed by PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new task repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ---------------------------------------------------------------------------
// SQL constants
// ---------------------------------------------------------------------------

const taskColumns = `id, journal_id, submission_ref, payload, attempts, state, last_error, next_attempt_at, created_at, updated_at`

// A re-enqueued submission keeps its retry bookkeeping unless the previous
// task was abandoned, in which case the counter starts over.
const upsertPendingSQL = `
INSERT INTO delivery_tasks (id, journal_id, submission_ref, payload, attempts, state, next_attempt_at)
VALUES ($1, $2, $3, $4, 0, 'PENDING', $5)
ON CONFLICT (journal_id, submission_ref) DO UPDATE SET
    payload = EXCLUDED.payload,
    state   = 'PENDING',
    attempts = CASE WHEN delivery_tasks.state = 'ABANDONED'
        THEN 0 ELSE delivery_tasks.attempts END,
    next_attempt_at = CASE WHEN delivery_tasks.state = 'ABANDONED'
        THEN EXCLUDED.next_attempt_at ELSE delivery_tasks.next_attempt_at END,
    last_error = CASE WHEN delivery_tasks.state = 'ABANDONED'
        THEN NULL ELSE delivery_tasks.last_error END
RETURNING ` + taskColumns

const claimDueSQL = `
UPDATE delivery_tasks
SET state = 'IN_FLIGHT'
WHERE id IN (
    SELECT id FROM delivery_tasks
    WHERE state = 'PENDING' AND next_attempt_at <= $1
    ORDER BY next_attempt_at
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + taskColumns

// markFailedSQL only matches claimed tasks: a task re-enqueued mid-flight has
// fresh bookkeeping that must not be touched by the stale attempt.
const markFailedSQL = `
UPDATE delivery_tasks
SET attempts = attempts + 1,
    last_error = $2,
    state = CASE WHEN attempts + 1 >= $4 THEN 'ABANDONED' ELSE 'PENDING' END,
    next_attempt_at = $3
WHERE id = $1 AND state = 'IN_FLIGHT'
RETURNING ` + taskColumns

const completeSQL = `
DELETE FROM delivery_tasks
WHERE id = $1 AND state = 'IN_FLIGHT'`

const deleteBySubmissionSQL = `
DELETE FROM delivery_tasks
WHERE journal_id = $1 AND submission_ref = $2`

const resetStuckSQL = `
UPDATE delivery_tasks
SET state = 'PENDING'
WHERE state = 'IN_FLIGHT' AND updated_at < $1`

const getBySubmissionSQL = `
SELECT ` + taskColumns + `
FROM delivery_tasks
WHERE journal_id = $1 AND submission_ref = $2`

const countByStateSQL = `
SELECT state, count(*) FROM delivery_tasks GROUP BY state`

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// UpsertPending enqueues a decision report for redelivery. If a task already
// exists for the (journal, submission) pair its payload is replaced in place;
// an abandoned task is revived with a reset attempt counter.
func (r *Repo) UpsertPending(ctx context.Context, t *domain.DeliveryTask) (*domain.DeliveryTask, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	payloadJSON, err := marshalEvent(t.Payload)
	if err != nil {
		return nil, fmt.Errorf("delivery_task %s: marshal payload: %w", t.ID, err)
	}

	row := querier.QueryRow(ctx, upsertPendingSQL,
		t.ID,
		t.JournalID,
		t.SubmissionRef,
		payloadJSON,
		t.NextAttemptAt.UTC().Truncate(time.Microsecond),
	)

	stored, err := scanTask(row)
	if err != nil {
		return nil, mapError(err, "delivery_task", t.ID)
	}

	return stored, nil
}

// ClaimDue atomically claims up to limit due pending tasks, flipping them to
// IN_FLIGHT. Concurrent drain runs skip each other's claims.
func (r *Repo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.DeliveryTask, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, claimDueSQL, now.UTC().Truncate(time.Microsecond), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due delivery_tasks: %w", err)
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("claim due delivery_tasks: %w", err)
	}

	return tasks, nil
}

// MarkFailed records a failed delivery attempt on a claimed task. The task
// returns to PENDING with the given next attempt time, or becomes ABANDONED
// once the attempt counter reaches maxAttempts. Returns domain.ErrNotFound if
// the task is no longer claimed.
func (r *Repo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, nextAttemptAt time.Time, maxAttempts int) (*domain.DeliveryTask, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	row := querier.QueryRow(ctx, markFailedSQL,
		id,
		errMsg,
		nextAttemptAt.UTC().Truncate(time.Microsecond),
		maxAttempts,
	)

	updated, err := scanTask(row)
	if err != nil {
		return nil, mapError(err, "delivery_task", id)
	}

	return updated, nil
}

// Complete removes a claimed task after successful delivery. Completing a task
// that was re-enqueued mid-flight is a no-op: the fresh payload stays queued.
func (r *Repo) Complete(ctx context.Context, id uuid.UUID) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	if _, err := querier.Exec(ctx, completeSQL, id); err != nil {
		return mapError(err, "delivery_task", id)
	}

	return nil
}

// DeleteBySubmission removes any queued task for a submission. Used when a
// synchronous delivery succeeds and supersedes the queued payload.
func (r *Repo) DeleteBySubmission(ctx context.Context, journalID uuid.UUID, submissionRef string) error {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	if _, err := querier.Exec(ctx, deleteBySubmissionSQL, journalID, submissionRef); err != nil {
		return mapError(err, "delivery_task", journalID)
	}

	return nil
}

// ResetStuck returns IN_FLIGHT tasks last touched before the cutoff to
// PENDING. Recovers tasks claimed by a drain run that died mid-attempt.
func (r *Repo) ResetStuck(ctx context.Context, before time.Time) (int, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	ct, err := querier.Exec(ctx, resetStuckSQL, before.UTC().Truncate(time.Microsecond))
	if err != nil {
		return 0, fmt.Errorf("reset stuck delivery_tasks: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// GetBySubmission returns the task queued for a submission.
// Returns domain.ErrNotFound if nothing is queued.
func (r *Repo) GetBySubmission(ctx context.Context, journalID uuid.UUID, submissionRef string) (*domain.DeliveryTask, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	row := querier.QueryRow(ctx, getBySubmissionSQL, journalID, submissionRef)

	t, err := scanTask(row)
	if err != nil {
		return nil, mapError(err, "delivery_task", journalID)
	}

	return t, nil
}

// List returns tasks matching the filter with pagination (ordered by
// created_at DESC). Returns tasks, total count, and error.
func (r *Repo) List(ctx context.Context, filter domain.TaskFilter) ([]*domain.DeliveryTask, int, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	countSQL, countArgs, err := applyFilter(psql.Select("count(*)").From("delivery_tasks"), filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}

	var total int
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count delivery_tasks: %w", err)
	}

	qb := applyFilter(psql.Select(taskColumns).From("delivery_tasks"), filter).
		OrderBy("created_at DESC")
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit)).Offset(uint64(filter.Offset))
	}

	listSQL, listArgs, err := qb.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}

	rows, err := querier.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list delivery_tasks: %w", err)
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("list delivery_tasks: %w", err)
	}

	return tasks, total, nil
}

// applyFilter adds the filter's WHERE clauses to a select builder.
func applyFilter(qb squirrel.SelectBuilder, filter domain.TaskFilter) squirrel.SelectBuilder {
	if filter.JournalID != nil {
		qb = qb.Where(squirrel.Eq{"journal_id": *filter.JournalID})
	}
	if filter.State != nil {
		qb = qb.Where(squirrel.Eq{"state": string(*filter.State)})
	}
	if filter.DueBefore != nil {
		qb = qb.Where(squirrel.LtOrEq{"next_attempt_at": filter.DueBefore.UTC()})
	}
	return qb
}

// CountByState returns aggregate task counts by state.
func (r *Repo) CountByState(ctx context.Context) (domain.QueueStats, error) {
	querier := postgres.QuerierFromCtx(ctx, r.pool)

	rows, err := querier.Query(ctx, countByStateSQL)
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("count delivery_tasks by state: %w", err)
	}
	defer rows.Close()

	var stats domain.QueueStats
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return domain.QueueStats{}, fmt.Errorf("count delivery_tasks by state: %w", err)
		}

		switch domain.TaskState(state) {
		case domain.TaskStatePending:
			stats.Pending = count
		case domain.TaskStateInFlight:
			stats.InFlight = count
		case domain.TaskStateAbandoned:
			stats.Abandoned = count
		}
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return domain.QueueStats{}, fmt.Errorf("count delivery_tasks by state: %w", err)
	}

	return stats, nil
}

// ---------------------------------------------------------------------------
// Row scanning helpers
// ---------------------------------------------------------------------------

// scanTask scans a single task row from pgx.Row.
func scanTask(row pgx.Row) (*domain.DeliveryTask, error) {
	var (
		t           domain.DeliveryTask
		state       string
		payloadJSON []byte
	)

	err := row.Scan(
		&t.ID,
		&t.JournalID,
		&t.SubmissionRef,
		&payloadJSON,
		&t.Attempts,
		&state,
		&t.LastError,
		&t.NextAttemptAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.State = domain.TaskState(state)

	event, err := unmarshalEvent(payloadJSON)
	if err != nil {
		return nil, fmt.Errorf("delivery_task %s: %w", t.ID, err)
	}
	t.Payload = event

	return &t, nil
}

// scanTasks scans multiple task rows from pgx.Rows.
func scanTasks(rows pgx.Rows) ([]*domain.DeliveryTask, error) {
	var tasks []*domain.DeliveryTask
	for rows.Next() {
		var (
			t           domain.DeliveryTask
			state       string
			payloadJSON []byte
		)

		err := rows.Scan(
			&t.ID,
			&t.JournalID,
			&t.SubmissionRef,
			&payloadJSON,
			&t.Attempts,
			&state,
			&t.LastError,
			&t.NextAttemptAt,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		t.State = domain.TaskState(state)

		event, err := unmarshalEvent(payloadJSON)
		if err != nil {
			return nil, fmt.Errorf("delivery_task %s: %w", t.ID, err)
		}
		t.Payload = event

		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if tasks == nil {
		tasks = []*domain.DeliveryTask{}
	}

	return tasks, nil
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

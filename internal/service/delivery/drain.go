package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reviewqualitycollector/janeway-rqcplugin/internal/domain"
)

const claimBatchSize = 50

// Drain redelivers every queued report that is due at now. Stuck
// IN_FLIGHT tasks from a crashed run are reset first, then due tasks
// are claimed in batches and attempted by a bounded worker group. One
// task's failure never aborts the sweep; only a dead store or a
// canceled context does.
func (s *Service) Drain(ctx context.Context, now time.Time) (domain.DrainStats, error) {
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	reset, err := s.tasks.ResetStuck(ctx, now.Add(-s.cfg.StuckAfter))
	if err != nil {
		return domain.DrainStats{}, fmt.Errorf("reset stuck tasks: %w", err)
	}
	if reset > 0 {
		s.log.WarnContext(ctx, "reset stuck in-flight tasks", slog.Int("count", reset))
	}

	var counters drainCounters
	for {
		batch, err := s.tasks.ClaimDue(ctx, now, claimBatchSize)
		if err != nil {
			return counters.stats(), fmt.Errorf("claim due tasks: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.DrainParallelism)
		for _, task := range batch {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				s.redeliver(gctx, task, now, &counters)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return counters.stats(), err
		}

		if len(batch) < claimBatchSize {
			break
		}
	}

	stats := counters.stats()
	s.log.InfoContext(ctx, "drain finished",
		slog.Int("attempted", stats.Attempted),
		slog.Int("succeeded", stats.Succeeded),
		slog.Int("failed", stats.Failed),
		slog.Int("abandoned", stats.Abandoned),
	)
	return stats, nil
}

// ListAbandoned returns abandoned tasks for operator review, newest
// first, with the total count.
func (s *Service) ListAbandoned(ctx context.Context, limit, offset int) ([]*domain.DeliveryTask, int, error) {
	if limit <= 0 {
		limit = 50
	}
	state := domain.TaskStateAbandoned
	return s.tasks.List(ctx, domain.TaskFilter{State: &state, Limit: limit, Offset: offset})
}

// QueueStats returns aggregate task counts by state.
func (s *Service) QueueStats(ctx context.Context) (domain.QueueStats, error) {
	return s.tasks.CountByState(ctx)
}

// ---------------------------------------------------------------------------
// Per-task redelivery
// ---------------------------------------------------------------------------

// redeliver attempts one claimed task. The queued payload is replayed
// verbatim, it is never re-normalized. Non-retriable outcomes abandon
// the task immediately regardless of the attempt ceiling.
func (s *Service) redeliver(ctx context.Context, task *domain.DeliveryTask, now time.Time, counters *drainCounters) {
	counters.attempted.Add(1)

	log := s.log.With(
		slog.String("task_id", task.ID.String()),
		slog.String("journal_id", task.JournalID.String()),
		slog.String("submission_ref", task.SubmissionRef),
	)

	cred, err := s.credentials.Get(ctx, task.JournalID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.failTask(ctx, log, task, "journal credentials missing", now, s.cfg.MaxAttempts, counters)
		return
	case err != nil:
		s.failTask(ctx, log, task, "credential lookup: "+err.Error(), now, s.cfg.MaxAttempts, counters)
		return
	case !cred.UsableForDelivery():
		s.failTask(ctx, log, task, "journal credentials not validated", now, s.cfg.MaxAttempts, counters)
		return
	}

	result, err := s.rqc.ReportDecision(ctx, cred, task.Payload)
	if err != nil {
		// Building the request failed locally; the payload will not
		// get better on retry.
		s.failTask(ctx, log, task, "build request: "+err.Error(), now, 1, counters)
		return
	}

	switch result.Outcome {
	case domain.OutcomeDelivered:
		s.ensureCallRecord(ctx, task.Payload)
		if err := s.tasks.Complete(ctx, task.ID); err != nil {
			log.ErrorContext(ctx, "complete delivered task", slog.String("error", err.Error()))
		}
		counters.succeeded.Add(1)
		log.InfoContext(ctx, "queued decision report delivered", slog.Int("attempt", task.Attempts+1))
	case domain.OutcomeTransientFailure:
		s.failTask(ctx, log, task, result.Detail, now, s.cfg.MaxAttempts, counters)
	default:
		// 401/403 or a payload rejection: retrying cannot fix it.
		s.failTask(ctx, log, task, result.Detail, now, 1, counters)
	}
}

// failTask books one failed attempt. With maxAttempts 1 the task is
// abandoned outright; otherwise it returns to PENDING until the
// ceiling is reached. The abandonment log fires exactly once per task,
// on the transition.
func (s *Service) failTask(ctx context.Context, log *slog.Logger, task *domain.DeliveryTask, detail string, now time.Time, maxAttempts int, counters *drainCounters) {
	updated, err := s.tasks.MarkFailed(ctx, task.ID, detail, now.Add(s.cfg.RetryInterval), maxAttempts)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// A synchronous delivery superseded the task mid-flight;
			// nothing left to book.
			log.DebugContext(ctx, "task gone before failure could be recorded")
			return
		}
		counters.failed.Add(1)
		log.ErrorContext(ctx, "record failed attempt", slog.String("error", err.Error()))
		return
	}

	if updated.State == domain.TaskStateAbandoned {
		counters.abandoned.Add(1)
		log.ErrorContext(ctx, "delivery abandoned",
			slog.Int("attempts", updated.Attempts),
			slog.String("last_error", detail),
		)
		return
	}

	counters.failed.Add(1)
	log.WarnContext(ctx, "delivery attempt failed",
		slog.Int("attempts", updated.Attempts),
		slog.Time("next_attempt_at", updated.NextAttemptAt),
		slog.String("error", detail),
	)
}

type drainCounters struct {
	attempted atomic.Int32
	succeeded atomic.Int32
	failed    atomic.Int32
	abandoned atomic.Int32
}

func (c *drainCounters) stats() domain.DrainStats {
	return domain.DrainStats{
		Attempted: int(c.attempted.Load()),
		Succeeded: int(c.succeeded.Load()),
		Failed:    int(c.failed.Load()),
		Abandoned: int(c.abandoned.Load()),
	}
}

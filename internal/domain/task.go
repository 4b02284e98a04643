package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryTask is one queued decision report awaiting redelivery.
// Exactly one task may be outstanding per (journal, submission);
// enqueueing again while a task exists replaces its payload instead of
// creating a second row. Successful delivery deletes the task,
// abandonment keeps it for audit.
type DeliveryTask struct {
	ID            uuid.UUID
	JournalID     uuid.UUID
	SubmissionRef string
	Payload       DecisionEvent
	Attempts      int
	State         TaskState
	LastError     *string
	CreatedAt     time.Time
	NextAttemptAt time.Time
	UpdatedAt     time.Time
}

// DrainStats summarizes one drain sweep over the due tasks.
type DrainStats struct {
	Attempted int
	Succeeded int
	Failed    int
	Abandoned int
}

// QueueStats holds aggregate task counts by state.
type QueueStats struct {
	Pending   int
	InFlight  int
	Abandoned int
	Total     int
}

// CallRecord snapshots the editor set sent with the first successful
// decision report for a submission. Later reports for the same
// submission replay this snapshot so RQC's grading assignments do not
// churn when the host's role data changes.
type CallRecord struct {
	JournalID     uuid.UUID
	SubmissionRef string
	Editors       []EditorAssignment
	ReportedAt    time.Time
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskFilter contains filtering/pagination parameters for delivery
// task listings.
type TaskFilter struct {
	JournalID *uuid.UUID
	State     *TaskState
	DueBefore *time.Time
	Limit     int
	Offset    int
}

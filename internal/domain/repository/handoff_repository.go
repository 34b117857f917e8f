package repository

import (
	"context"
	"time"

	"github.com/taskforge/handoff/internal/domain/model/handoff"
)

// ExecutionRepository manages Execution persistence.
// All writes are upserts keyed by execution ID: re-saving the same key
// fully replaces the prior row (last-writer-wins, no merge).
type ExecutionRepository interface {
	// Save inserts or replaces an execution by its execution ID
	Save(ctx context.Context, exec *handoff.Execution) error

	// Find retrieves an execution by ID
	// Returns handoff.ErrNotFound if it does not exist
	Find(ctx context.Context, executionID string) (*handoff.Execution, error)

	// Delete removes an execution by ID; returns the number of rows
	// removed so callers can detect a concurrent delete of the same key
	Delete(ctx context.Context, executionID string) (int, error)

	// TransitionFromPending is the conditional status write backing the
	// first-resolution-wins rule: the row is updated only if it is still
	// PENDING at write time. Returns false when another resolver already
	// moved the row out of PENDING
	TransitionFromPending(ctx context.Context, executionID string, to handoff.Status) (bool, error)

	// CountByStatus counts executions in the given status
	CountByStatus(ctx context.Context, status handoff.Status) (int, error)

	// FindExpiredPending lists executions still PENDING past their deadline
	FindExpiredPending(ctx context.Context, now time.Time) ([]*handoff.Execution, error)

	// DeleteRetired removes executions expired as of now whose approval
	// was submitted before the retention cutoff; returns the number removed
	DeleteRetired(ctx context.Context, now, cutoff time.Time) (int, error)
}

// ApprovalRepository manages Approval persistence.
type ApprovalRepository interface {
	// Save inserts or replaces an approval by its execution ID
	Save(ctx context.Context, approval *handoff.Approval) error

	// Find retrieves an approval by execution ID
	// Returns handoff.ErrNotFound if it does not exist
	Find(ctx context.Context, executionID string) (*handoff.Approval, error)

	// Delete removes an approval by execution ID; returns the number of
	// rows removed. The consuming read uses the count as its witness:
	// zero rows means a concurrent retrieve consumed the key first
	Delete(ctx context.Context, executionID string) (int, error)

	// Count counts all stored approvals
	Count(ctx context.Context) (int, error)

	// DeleteOlderThan removes approvals submitted before the retention
	// cutoff; returns the number removed
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

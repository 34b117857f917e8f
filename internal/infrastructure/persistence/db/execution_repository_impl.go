package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskforge/handoff/internal/domain/model/handoff"
	"github.com/taskforge/handoff/internal/domain/repository"
)

// ExecutionRepositoryImpl implements repository.ExecutionRepository over
// the backend adapter. All timestamps are persisted as RFC3339 UTC text
// so that both engines compare them identically.
type ExecutionRepositoryImpl struct {
	handle *Handle
}

// NewExecutionRepository creates an execution repository over the handle
func NewExecutionRepository(handle *Handle) repository.ExecutionRepository {
	return &ExecutionRepositoryImpl{handle: handle}
}

// Save inserts or replaces an execution by its execution ID.
// Expressed as a conflict-aware insert so the statement is identical on
// both backends.
func (r *ExecutionRepositoryImpl) Save(ctx context.Context, exec *handoff.Execution) error {
	itemsJSON, err := json.Marshal(exec.Items())
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	query := `
		INSERT INTO executions (execution_id, items, title, organizer, item_count, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (execution_id) DO UPDATE SET
			items = excluded.items,
			title = excluded.title,
			organizer = excluded.organizer,
			item_count = excluded.item_count,
			status = excluded.status,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`

	_, err = r.handle.ExecContext(ctx, query,
		exec.ExecutionID(),
		string(itemsJSON),
		exec.Title(),
		exec.Organizer(),
		exec.ItemCount(),
		exec.Status().String(),
		exec.CreatedAt().Format(time.RFC3339),
		exec.ExpiresAt().Format(time.RFC3339),
	)
	if err != nil {
		return backendErr("save execution", err)
	}

	return nil
}

// Find retrieves an execution by ID
func (r *ExecutionRepositoryImpl) Find(ctx context.Context, executionID string) (*handoff.Execution, error) {
	query := `
		SELECT execution_id, items, title, organizer, item_count, status, created_at, expires_at
		FROM executions
		WHERE execution_id = ?
	`

	row := r.handle.QueryRowContext(ctx, query, executionID)

	exec, err := scanExecution(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", handoff.ErrNotFound, executionID)
		}
		return nil, backendErr("find execution", err)
	}

	return exec, nil
}

// Delete removes an execution by ID and reports how many rows went
func (r *ExecutionRepositoryImpl) Delete(ctx context.Context, executionID string) (int, error) {
	result, err := r.handle.ExecContext(ctx, `DELETE FROM executions WHERE execution_id = ?`, executionID)
	if err != nil {
		return 0, backendErr("delete execution", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, backendErr("get rows affected", err)
	}
	return int(rows), nil
}

// TransitionFromPending moves an execution out of PENDING only if it is
// still PENDING when the write lands. On engines with row-level locking
// a racing transition blocks here and then sees zero rows; that is the
// losing side of first-resolution-wins.
func (r *ExecutionRepositoryImpl) TransitionFromPending(ctx context.Context, executionID string, to handoff.Status) (bool, error) {
	result, err := r.handle.ExecContext(ctx,
		`UPDATE executions SET status = ? WHERE execution_id = ? AND status = ?`,
		to.String(), executionID, handoff.StatusPending.String(),
	)
	if err != nil {
		return false, backendErr("transition execution", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, backendErr("get rows affected", err)
	}
	return rows == 1, nil
}

// CountByStatus counts executions in the given status
func (r *ExecutionRepositoryImpl) CountByStatus(ctx context.Context, status handoff.Status) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM executions WHERE status = ?`
	if err := r.handle.QueryRowContext(ctx, query, status.String()).Scan(&count); err != nil {
		return 0, backendErr("count executions", err)
	}
	return count, nil
}

// FindExpiredPending lists executions still PENDING past their deadline
func (r *ExecutionRepositoryImpl) FindExpiredPending(ctx context.Context, now time.Time) ([]*handoff.Execution, error) {
	query := `
		SELECT execution_id, items, title, organizer, item_count, status, created_at, expires_at
		FROM executions
		WHERE status = ? AND expires_at < ?
		ORDER BY expires_at ASC
	`

	rows, err := r.handle.QueryContext(ctx, query,
		handoff.StatusPending.String(),
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, backendErr("query expired executions", err)
	}
	defer rows.Close()

	var execs []*handoff.Execution
	for rows.Next() {
		exec, err := scanExecution(rows.Scan)
		if err != nil {
			return nil, backendErr("scan execution", err)
		}
		execs = append(execs, exec)
	}

	if err := rows.Err(); err != nil {
		return nil, backendErr("iterate executions", err)
	}

	return execs, nil
}

// DeleteRetired removes executions expired as of now whose approval was
// submitted before the retention cutoff. Pure garbage collection:
// unresolved executions are never touched here. Both instants come from
// the caller so one reap pass works off a single clock reading.
func (r *ExecutionRepositoryImpl) DeleteRetired(ctx context.Context, now, cutoff time.Time) (int, error) {
	query := `
		DELETE FROM executions
		WHERE expires_at < ?
		  AND execution_id IN (
			SELECT execution_id FROM approvals WHERE submitted_at < ?
		  )
	`

	result, err := r.handle.ExecContext(ctx, query,
		now.UTC().Format(time.RFC3339),
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, backendErr("delete retired executions", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, backendErr("get rows affected", err)
	}

	return int(rows), nil
}

// scanExecution reads one executions row through the given scan func
func scanExecution(scan func(dest ...interface{}) error) (*handoff.Execution, error) {
	var (
		executionID string
		itemsJSON   string
		title       string
		organizer   string
		itemCount   int
		statusStr   string
		createdAt   string
		expiresAt   string
	)

	if err := scan(&executionID, &itemsJSON, &title, &organizer, &itemCount, &statusStr, &createdAt, &expiresAt); err != nil {
		return nil, err
	}

	var items []handoff.Item
	if err := json.Unmarshal([]byte(itemsJSON), &items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}

	status, err := handoff.ParseStatus(statusStr)
	if err != nil {
		return nil, err
	}

	createdAtTime, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAtTime, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	return handoff.ReconstructExecution(
		executionID, items, title, organizer, itemCount, status, createdAtTime, expiresAtTime,
	), nil
}

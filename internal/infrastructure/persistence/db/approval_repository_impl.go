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

// ApprovalRepositoryImpl implements repository.ApprovalRepository over
// the backend adapter.
type ApprovalRepositoryImpl struct {
	handle *Handle
}

// NewApprovalRepository creates an approval repository over the handle
func NewApprovalRepository(handle *Handle) repository.ApprovalRepository {
	return &ApprovalRepositoryImpl{handle: handle}
}

// Save inserts or replaces an approval by its execution ID.
// The upsert keeps re-resolution idempotent at the storage level; the
// first-resolution-wins rule is enforced above in the service layer.
func (r *ApprovalRepositoryImpl) Save(ctx context.Context, approval *handoff.Approval) error {
	itemsJSON, err := json.Marshal(approval.ApprovedItems())
	if err != nil {
		return fmt.Errorf("marshal approved items: %w", err)
	}

	query := `
		INSERT INTO approvals (execution_id, approved_items, approved_count, total_count, submitted_at, method)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (execution_id) DO UPDATE SET
			approved_items = excluded.approved_items,
			approved_count = excluded.approved_count,
			total_count = excluded.total_count,
			submitted_at = excluded.submitted_at,
			method = excluded.method
	`

	_, err = r.handle.ExecContext(ctx, query,
		approval.ExecutionID(),
		string(itemsJSON),
		approval.ApprovedCount(),
		approval.TotalCount(),
		approval.SubmittedAt().Format(time.RFC3339),
		approval.Method().String(),
	)
	if err != nil {
		return backendErr("save approval", err)
	}

	return nil
}

// Find retrieves an approval by execution ID
func (r *ApprovalRepositoryImpl) Find(ctx context.Context, executionID string) (*handoff.Approval, error) {
	query := `
		SELECT execution_id, approved_items, approved_count, total_count, submitted_at, method
		FROM approvals
		WHERE execution_id = ?
	`

	row := r.handle.QueryRowContext(ctx, query, executionID)

	var (
		id            string
		itemsJSON     string
		approvedCount int
		totalCount    int
		submittedAt   string
		methodStr     string
	)

	err := row.Scan(&id, &itemsJSON, &approvedCount, &totalCount, &submittedAt, &methodStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", handoff.ErrNotFound, executionID)
		}
		return nil, backendErr("scan approval", err)
	}

	var items []handoff.Item
	if err := json.Unmarshal([]byte(itemsJSON), &items); err != nil {
		return nil, fmt.Errorf("unmarshal approved items: %w", err)
	}

	method, err := handoff.ParseMethod(methodStr)
	if err != nil {
		return nil, err
	}

	submittedAtTime, err := time.Parse(time.RFC3339, submittedAt)
	if err != nil {
		return nil, fmt.Errorf("parse submitted_at: %w", err)
	}

	return handoff.ReconstructApproval(id, items, approvedCount, totalCount, submittedAtTime, method), nil
}

// Delete removes an approval by execution ID and reports how many rows
// went. The count is load-bearing: the consuming read treats zero rows
// as having lost the race to another retrieve.
func (r *ApprovalRepositoryImpl) Delete(ctx context.Context, executionID string) (int, error) {
	result, err := r.handle.ExecContext(ctx, `DELETE FROM approvals WHERE execution_id = ?`, executionID)
	if err != nil {
		return 0, backendErr("delete approval", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, backendErr("get rows affected", err)
	}
	return int(rows), nil
}

// Count counts all stored approvals
func (r *ApprovalRepositoryImpl) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.handle.QueryRowContext(ctx, `SELECT COUNT(*) FROM approvals`).Scan(&count); err != nil {
		return 0, backendErr("count approvals", err)
	}
	return count, nil
}

// DeleteOlderThan removes approvals submitted before the retention cutoff
func (r *ApprovalRepositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.handle.ExecContext(ctx,
		`DELETE FROM approvals WHERE submitted_at < ?`,
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, backendErr("delete old approvals", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, backendErr("get rows affected", err)
	}

	return int(rows), nil
}

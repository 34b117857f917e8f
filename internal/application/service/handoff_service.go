package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/taskforge/handoff/internal/domain/model/handoff"
	"github.com/taskforge/handoff/internal/domain/repository"
	"github.com/taskforge/handoff/internal/infrastructure/transaction"
)

// DepositReceipt is returned to the producer after a successful deposit.
type DepositReceipt struct {
	ExecutionID string    `json:"execution_id"`
	ItemCount   int       `json:"item_count"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ResolutionResult summarizes a submitted decision set.
type ResolutionResult struct {
	ApprovedCount int `json:"approved_count"`
	TotalCount    int `json:"total_count"`
}

// StoreCounts is the externally observable health signal.
type StoreCounts struct {
	PendingCount  int `json:"pending_count"`
	ApprovedCount int `json:"approved_count"`
}

// HandoffService is the sole boundary the core exposes: deposit,
// inspect, resolve, and the destructive retrieve. All cross-component
// coordination goes through the store's transactions; the service holds
// no mutable state of its own.
type HandoffService struct {
	executions repository.ExecutionRepository
	approvals  repository.ApprovalRepository
	txManager  *transaction.Manager
	policy     handoff.Policy
	logger     *zap.Logger
}

// NewHandoffService creates the handoff API surface.
func NewHandoffService(
	executions repository.ExecutionRepository,
	approvals repository.ApprovalRepository,
	txManager *transaction.Manager,
	policy handoff.Policy,
	logger *zap.Logger,
) *HandoffService {
	return &HandoffService{
		executions: executions,
		approvals:  approvals,
		txManager:  txManager,
		policy:     policy,
		logger:     logger.Named("handoff"),
	}
}

// Deposit stores a batch under the producer-supplied execution ID and
// opens its review window. Re-deposit with the same key replaces the
// prior content entirely.
func (s *HandoffService) Deposit(ctx context.Context, executionID string, items []handoff.Item, title, organizer string) (*DepositReceipt, error) {
	exec, err := handoff.NewExecution(
		executionID,
		items,
		norm.NFC.String(title),
		norm.NFC.String(organizer),
		s.policy.TTL,
	)
	if err != nil {
		return nil, err
	}

	if err := s.executions.Save(ctx, exec); err != nil {
		return nil, err
	}

	s.logger.Info("batch deposited",
		zap.String("execution_id", exec.ExecutionID()),
		zap.Int("item_count", exec.ItemCount()),
		zap.Time("expires_at", exec.ExpiresAt()),
	)

	return &DepositReceipt{
		ExecutionID: exec.ExecutionID(),
		ItemCount:   exec.ItemCount(),
		ExpiresAt:   exec.ExpiresAt(),
	}, nil
}

// Inspect returns a reviewable execution. A batch that is past its
// deadline but not yet escalated reads as expired; a batch that already
// received its resolution reads as already resolved.
func (s *HandoffService) Inspect(ctx context.Context, executionID string) (*handoff.Execution, error) {
	exec, err := s.executions.Find(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if exec.Status().IsTerminal() {
		return nil, fmt.Errorf("%w: %s", handoff.ErrAlreadyResolved, executionID)
	}
	if exec.IsExpired() {
		return nil, fmt.Errorf("%w: %s", handoff.ErrExpired, executionID)
	}

	return exec, nil
}

// Resolve applies a reviewer's item-level decisions. The terminal
// status is written through a conditional transition that only lands on
// a row still PENDING, so a resolve racing the reaper or another
// resolver on the same key loses cleanly with ErrAlreadyResolved even
// when both read the row as PENDING first.
func (s *HandoffService) Resolve(ctx context.Context, executionID string, decisions []bool) (*ResolutionResult, error) {
	var result *ResolutionResult

	err := s.txManager.InTransaction(ctx, func(txCtx context.Context) error {
		exec, err := s.executions.Find(txCtx, executionID)
		if err != nil {
			return err
		}

		approval, err := exec.Resolve(decisions)
		if err != nil {
			return err
		}

		won, err := s.executions.TransitionFromPending(txCtx, executionID, handoff.StatusApproved)
		if err != nil {
			return err
		}
		if !won {
			// Another resolution committed between the read and the write
			return fmt.Errorf("%w: %s", handoff.ErrAlreadyResolved, executionID)
		}

		if err := s.approvals.Save(txCtx, approval); err != nil {
			return err
		}

		result = &ResolutionResult{
			ApprovedCount: approval.ApprovedCount(),
			TotalCount:    approval.TotalCount(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch resolved",
		zap.String("execution_id", executionID),
		zap.Int("approved_count", result.ApprovedCount),
		zap.Int("total_count", result.TotalCount),
	)

	return result, nil
}

// Retrieve is the destructive read: the returned approval and its
// execution are deleted in the same transaction, so the key answers at
// most once.
//
// Non-blocking, an unresolved batch yields ErrPending. Blocking, the
// call polls coarsely up to the wait ceiling; an expired batch is
// escalated as soon as a poll observes it, and a batch still unresolved
// at the ceiling is force-escalated so the caller never leaves without
// an answer. Each blocking call parks one handler for up to the ceiling;
// concurrent blocking retrieves are bounded only by the caller.
func (s *HandoffService) Retrieve(ctx context.Context, executionID string, wait bool) (*handoff.Approval, error) {
	approval, err := s.consume(ctx, executionID, escalateExpired)
	if err == nil || !errors.Is(err, handoff.ErrPending) {
		return approval, err
	}
	if !wait {
		return nil, err
	}

	deadline := time.Now().Add(s.policy.WaitCeiling)
	ticker := time.NewTicker(s.policy.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			// Wait ceiling reached: force the auto-approval transition
			// ourselves rather than keep the producer hanging
			return s.consume(ctx, executionID, escalateAlways)
		}

		approval, err := s.consume(ctx, executionID, escalateExpired)
		if err == nil || !errors.Is(err, handoff.ErrPending) {
			return approval, err
		}
	}
}

// Counts reports the health probe counters.
func (s *HandoffService) Counts(ctx context.Context) (*StoreCounts, error) {
	pending, err := s.executions.CountByStatus(ctx, handoff.StatusPending)
	if err != nil {
		return nil, err
	}
	approved, err := s.approvals.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &StoreCounts{PendingCount: pending, ApprovedCount: approved}, nil
}

// escalation decides whether a consume attempt may auto-resolve a still
// pending execution.
type escalation int

const (
	escalateExpired escalation = iota // only past the deadline
	escalateAlways                    // wait ceiling reached
)

// consume attempts the retrieve-and-destroy inside one transaction.
// Exactly-once is enforced by write witnesses, not by the reads: taking
// an observed approval requires its delete to remove a row, and
// escalating a pending batch requires winning the conditional status
// transition. Concurrent consumers of the same key settle on one winner
// regardless of what their earlier reads saw.
func (s *HandoffService) consume(ctx context.Context, executionID string, mode escalation) (*handoff.Approval, error) {
	var result *handoff.Approval

	err := s.txManager.InTransaction(ctx, func(txCtx context.Context) error {
		approval, err := s.approvals.Find(txCtx, executionID)
		if err == nil {
			result = approval
			return s.take(txCtx, executionID)
		}
		if !errors.Is(err, handoff.ErrNotFound) {
			return err
		}

		exec, err := s.executions.Find(txCtx, executionID)
		if err != nil {
			// Unknown key, or already consumed by an earlier retrieve
			return err
		}
		if exec.Status().IsTerminal() {
			// Terminal without an approval row means the pair was already
			// consumed mid-flight; the key never answers again
			return fmt.Errorf("%w: %s", handoff.ErrNotFound, executionID)
		}

		if mode != escalateAlways && !exec.IsExpired() {
			return fmt.Errorf("%w: %s", handoff.ErrPending, executionID)
		}

		auto, err := exec.AutoResolve(s.policy.OnTimeout)
		if err != nil {
			return err
		}

		won, err := s.executions.TransitionFromPending(txCtx, executionID, handoff.StatusAutoApproved)
		if err != nil {
			return err
		}
		if !won {
			// A concurrent resolution committed after our read; take its
			// approval instead of the one built here
			winner, err := s.approvals.Find(txCtx, executionID)
			if err != nil {
				return err
			}
			result = winner
			return s.take(txCtx, executionID)
		}

		s.logger.Info("retrieval escalated unresolved batch",
			zap.String("execution_id", executionID),
			zap.String("timeout_action", string(s.policy.OnTimeout)),
		)
		result = auto
		return s.discard(txCtx, executionID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("approval retrieved and destroyed",
		zap.String("execution_id", executionID),
		zap.String("method", result.Method().String()),
		zap.Int("approved_count", result.ApprovedCount()),
	)

	return result, nil
}

// take consumes an observed approval; called only inside a transaction.
// The approval delete is the witness of the consuming race: zero rows
// removed means another retrieve took the pair first, and this caller
// reports NotFound instead of a second copy of the approval.
func (s *HandoffService) take(txCtx context.Context, executionID string) error {
	removed, err := s.approvals.Delete(txCtx, executionID)
	if err != nil {
		return err
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", handoff.ErrNotFound, executionID)
	}
	_, err = s.executions.Delete(txCtx, executionID)
	return err
}

// discard removes the pair after this transaction won the pending
// transition itself; no approval row exists and the transition already
// named the winner, so the delete counts carry no meaning here.
func (s *HandoffService) discard(txCtx context.Context, executionID string) error {
	if _, err := s.approvals.Delete(txCtx, executionID); err != nil {
		return err
	}
	_, err := s.executions.Delete(txCtx, executionID)
	return err
}

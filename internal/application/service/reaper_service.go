package service

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/taskforge/handoff/internal/domain/model/handoff"
	"github.com/taskforge/handoff/internal/domain/repository"
	"github.com/taskforge/handoff/internal/infrastructure/transaction"
)

// ReapStats summarizes one reaper pass.
type ReapStats struct {
	RetiredExecutions int `json:"retired_executions"`
	RetiredApprovals  int `json:"retired_approvals"`
	AutoApproved      int `json:"auto_approved"`
}

// ReaperService runs the periodic expiration pass: retention garbage
// collection first, then escalation of unresolved batches past their
// deadline. A failed tick is logged and retried on the next one; the
// loop itself never dies while the process is alive.
type ReaperService struct {
	executions repository.ExecutionRepository
	approvals  repository.ApprovalRepository
	txManager  *transaction.Manager
	policy     handoff.Policy
	interval   time.Duration
	logger     *zap.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewReaperService creates a reaper over the shared store.
func NewReaperService(
	executions repository.ExecutionRepository,
	approvals repository.ApprovalRepository,
	txManager *transaction.Manager,
	policy handoff.Policy,
	interval time.Duration,
	logger *zap.Logger,
) *ReaperService {
	return &ReaperService{
		executions: executions,
		approvals:  approvals,
		txManager:  txManager,
		policy:     policy,
		interval:   interval,
		logger:     logger.Named("reaper"),
	}
}

// Start launches the background reap loop.
func (s *ReaperService) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx)

	s.logger.Info("reaper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop stops the reap loop and waits for the in-flight tick to finish.
func (s *ReaperService) Stop() error {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
	})
	return nil
}

func (s *ReaperService) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reapID := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
			stats, err := s.RunOnce(ctx)
			if err != nil {
				// Transient backend failures surface here; next tick retries
				s.logger.Warn("reap pass failed",
					zap.String("reap_id", reapID),
					zap.Error(err),
				)
				continue
			}
			if stats.RetiredExecutions > 0 || stats.RetiredApprovals > 0 || stats.AutoApproved > 0 {
				s.logger.Info("reap pass completed",
					zap.String("reap_id", reapID),
					zap.Int("retired_executions", stats.RetiredExecutions),
					zap.Int("retired_approvals", stats.RetiredApprovals),
					zap.Int("auto_approved", stats.AutoApproved),
				)
			}
		}
	}
}

// RunOnce performs a single reap pass. Order matters: retention cleanup
// of already-resolved pairs first, then escalation of stale PENDING
// batches to AUTO_APPROVED.
func (s *ReaperService) RunOnce(ctx context.Context) (ReapStats, error) {
	var stats ReapStats
	now := time.Now().UTC()
	cutoff := now.Add(-s.policy.Retention)

	retiredExecs, err := s.executions.DeleteRetired(ctx, now, cutoff)
	if err != nil {
		return stats, err
	}
	stats.RetiredExecutions = retiredExecs

	retiredApprovals, err := s.approvals.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return stats, err
	}
	stats.RetiredApprovals = retiredApprovals

	stale, err := s.executions.FindExpiredPending(ctx, now)
	if err != nil {
		return stats, err
	}

	for _, exec := range stale {
		escalated, err := s.escalate(ctx, exec.ExecutionID())
		if err != nil {
			// Keep going; the remaining keys are independent
			s.logger.Warn("escalation failed",
				zap.String("execution_id", exec.ExecutionID()),
				zap.Error(err),
			)
			continue
		}
		if escalated {
			stats.AutoApproved++
		}
	}

	return stats, nil
}

// escalate auto-resolves one stale execution. The decisive write is the
// conditional transition out of PENDING: if a manual resolve won the
// race since the scan, the transition touches zero rows and the key is
// skipped without ever writing an approval.
func (s *ReaperService) escalate(ctx context.Context, executionID string) (bool, error) {
	escalated := false

	err := s.txManager.InTransaction(ctx, func(txCtx context.Context) error {
		exec, err := s.executions.Find(txCtx, executionID)
		if err != nil {
			if errors.Is(err, handoff.ErrNotFound) {
				// Consumed or garbage collected since the scan
				return nil
			}
			return err
		}
		if exec.Status() != handoff.StatusPending || !exec.IsExpired() {
			// First resolution wins; nothing to do
			return nil
		}

		approval, err := exec.AutoResolve(s.policy.OnTimeout)
		if err != nil {
			return err
		}

		won, err := s.executions.TransitionFromPending(txCtx, executionID, handoff.StatusAutoApproved)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		if err := s.approvals.Save(txCtx, approval); err != nil {
			return err
		}

		escalated = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if escalated {
		s.logger.Info("stale batch auto-approved",
			zap.String("execution_id", executionID),
			zap.String("timeout_action", string(s.policy.OnTimeout)),
		)
	}

	return escalated, nil
}

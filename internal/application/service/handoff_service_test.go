package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskforge/handoff/internal/domain/model/handoff"
	"github.com/taskforge/handoff/internal/domain/repository"
	"github.com/taskforge/handoff/internal/infrastructure/persistence/db"
	"github.com/taskforge/handoff/internal/infrastructure/transaction"
)

type testEnv struct {
	service    *HandoffService
	executions repository.ExecutionRepository
	approvals  repository.ApprovalRepository
	txManager  *transaction.Manager
}

func setupEnv(t *testing.T, policy handoff.Policy) *testEnv {
	t.Helper()

	handle, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { handle.Close() })

	require.NoError(t, db.NewMigrator(handle).Migrate())

	executions := db.NewExecutionRepository(handle)
	approvals := db.NewApprovalRepository(handle)
	txManager := transaction.NewManager(handle.DB())

	return &testEnv{
		service:    NewHandoffService(executions, approvals, txManager, policy, zap.NewNop()),
		executions: executions,
		approvals:  approvals,
		txManager:  txManager,
	}
}

func items(t *testing.T, names ...string) []handoff.Item {
	t.Helper()

	out := make([]handoff.Item, 0, len(names))
	for _, n := range names {
		raw, err := json.Marshal(map[string]string{"task_item": n})
		require.NoError(t, err)
		out = append(out, raw)
	}
	return out
}

func TestDeposit_ThenInspect(t *testing.T) {
	env := setupEnv(t, handoff.DefaultPolicy())
	ctx := context.Background()

	receipt, err := env.service.Deposit(ctx, "e1", items(t, "A", "B", "C"), "Sprint Planning", "carol")
	require.NoError(t, err)
	assert.Equal(t, "e1", receipt.ExecutionID)
	assert.Equal(t, 3, receipt.ItemCount)
	assert.True(t, receipt.ExpiresAt.After(time.Now()))

	exec, err := env.service.Inspect(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, handoff.StatusPending, exec.Status())
	assert.Equal(t, 3, exec.ItemCount())
}

func TestDeposit_InvalidInput(t *testing.T) {
	env := setupEnv(t, handoff.DefaultPolicy())
	ctx := context.Background()

	_, err := env.service.Deposit(ctx, "", items(t, "A"), "", "")
	assert.ErrorIs(t, err, handoff.ErrInvalidInput)

	_, err = env.service.Deposit(ctx, "e1", nil, "", "")
	assert.ErrorIs(t, err, handoff.ErrInvalidInput)
}

func TestInspect_NotFound(t *testing.T) {
	env := setupEnv(t, handoff.DefaultPolicy())

	_, err := env.service.Inspect(context.Background(), "missing")
	assert.ErrorIs(t, err, handoff.ErrNotFound)
}

func TestInspect_Expired(t *testing.T) {
	policy := handoff.DefaultPolicy()
	policy.TTL = -time.Minute
	env := setupEnv(t, policy)
	ctx := context.Background()

	_, err := env.service.Deposit(ctx, "e-stale", items(t, "A"), "", "")
	require.NoError(t, err)

	_, err = env.service.Inspect(ctx, "e-stale")
	assert.ErrorIs(t, err, handoff.ErrExpired)
}

func TestInspect_AlreadyResolved(t *testing.T) {
	env := setupEnv(t, handoff.DefaultPolicy())
	ctx := context.Background()

	_, err := env.service.Deposit(ctx, "e2", items(t, "A"), "", "")
	require.NoError(t, err)
	_, err = env.service.Resolve(ctx, "e2", []bool{true})
	require.NoError(t, err)

	_, err = env.service.Inspect(ctx, "e2")
	assert.ErrorIs(t, err, handoff.ErrAlreadyResolved)
}

func TestResolve_ThenRetrieve_Scenario(t *testing.T) {
	env := setupEnv(t, handoff.DefaultPolicy())
	ctx := context.Background()

	_, err := env.service.Deposit(ctx, "e1", items(t, "A", "B", "C"), "", "")
	require.NoError(t, err)

	result, err := env.service.Resolve(ctx, "e1", []bool{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.ApprovedCount)
	assert.Equal(t, 3, result.TotalCount)

	approval, err := env.service.Retrieve(ctx, "e1", false)
	require.NoError(t, err)
	assert.Equal(t, handoff.MethodManual, approval.Method())
	assert.Equal(t, 2, approval.ApprovedCount())
	assert.Equal(t, 3, approval.TotalCount())
	require.Len(t, approval.ApprovedItems(), 2)
	assert.JSONEq(t, `{"task_item":"A"}`, string(approval.ApprovedItems()[0]))
	assert.JSONEq(t, `{"task_item":"C"}`, string(approval.ApprovedItems()[1]))

	// Second retrieve: the pair is permanently gone
	_, err = env.service.Retrieve(ctx, "e1", false)
	assert.ErrorIs(t, err, handoff.ErrNotFound)
}

func TestResolve_NotFound(t *testing.T) {
	env := setupEnv(t, handoff.DefaultPolicy())

	_, err := env.service.Resolve(context.Background(), "missing", []bool{true})
	assert.ErrorIs(t, err, handoff.ErrNotFound)
}

func TestResolve_DecisionCountMismatch(t *testing.T) {
	env := setupEnv(t, handoff.DefaultPolicy())
	ctx := context.Background()

	_, err := env.service.Deposit(ctx, "e3", items(t, "A", "B"), "", "")
	require.NoError(t, err)

	_, err = env.service.Resolve(ctx, "e3", []bool{true})
	assert.ErrorIs(t, err, handoff.ErrInvalidInput)
}

func TestResolve_AlreadyResolved(t *testing.T) {
	env := setupEnv(t, handoff.DefaultPolicy())
	ctx := context.Background()

	_, err := env.service.Deposit(ctx, "e4", items(t, "A"), "", "")
	require.NoError(t, err)
	_, err = env.service.Resolve(ctx, "e4", []bool{true})
	require.NoError(t, err)

	_, err = env.service.Resolve(ctx, "e4", []bool{false})
	assert.ErrorIs(t, err, handoff.ErrAlreadyResolved)
}

func TestRetrieve_NonBlocking_Pending(t *testing.T) {
	env := setupEnv(t, handoff.DefaultPolicy())
	ctx := context.Background()

	_, err := env.service.Deposit(ctx, "e5", items(t, "A"), "", "")
	require.NoError(t, err)

	_, err = env.service.Retrieve(ctx, "e5", false)
	assert.ErrorIs(t, err, handoff.ErrPending)

	// Still pending: the batch was not consumed
	_, err = env.service.Inspect(ctx, "e5")
	require.NoError(t, err)
}

func TestRetrieve_NotFound(t *testing.T) {
	env := setupEnv(t, handoff.DefaultPolicy())

	_, err := env.service.Retrieve(context.Background(), "missing", false)
	assert.ErrorIs(t, err, handoff.ErrNotFound)
}

func TestRetrieve_Blocking_ExpiredBatchReturnsImmediately(t *testing.T) {
	policy := handoff.DefaultPolicy()
	policy.TTL = 0
	policy.PollInterval = 10 * time.Millisecond
	policy.WaitCeiling = 5 * time.Second
	env := setupEnv(t, policy)
	ctx := context.Background()

	_, err := env.service.Deposit(ctx, "e6", items(t, "A", "B"), "", "")
	require.NoError(t, err)

	start := time.Now()
	approval, err := env.service.Retrieve(ctx, "e6", true)
	require.NoError(t, err)

	// Resolved well before the ceiling, within the poll granularity
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, handoff.MethodAutoTimeout, approval.Method())
	assert.Equal(t, 2, approval.ApprovedCount())
	assert.Equal(t, 2, approval.TotalCount())
}

func TestRetrieve_Blocking_CeilingForcesAutoApproval(t *testing.T) {
	policy := handoff.DefaultPolicy()
	policy.TTL = time.Hour
	policy.PollInterval = 10 * time.Millisecond
	policy.WaitCeiling = 50 * time.Millisecond
	env := setupEnv(t, policy)
	ctx := context.Background()

	_, err := env.service.Deposit(ctx, "e7", items(t, "A"), "", "")
	require.NoError(t, err)

	approval, err := env.service.Retrieve(ctx, "e7", true)
	require.NoError(t, err)
	assert.Equal(t, handoff.MethodAutoTimeout, approval.Method())
	assert.Equal(t, 1, approval.ApprovedCount())
}

func TestRetrieve_Blocking_PicksUpConcurrentResolve(t *testing.T) {
	policy := handoff.DefaultPolicy()
	policy.TTL = time.Hour
	policy.PollInterval = 10 * time.Millisecond
	policy.WaitCeiling = 5 * time.Second
	env := setupEnv(t, policy)
	ctx := context.Background()

	_, err := env.service.Deposit(ctx, "e8", items(t, "A", "B"), "", "")
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		env.service.Resolve(ctx, "e8", []bool{true, true})
	}()

	approval, err := env.service.Retrieve(ctx, "e8", true)
	require.NoError(t, err)
	assert.Equal(t, handoff.MethodManual, approval.Method())
	assert.Equal(t, 2, approval.ApprovedCount())
}

func TestRetrieve_Concurrent_ExactlyOnce(t *testing.T) {
	env := setupEnv(t, handoff.DefaultPolicy())
	ctx := context.Background()

	_, err := env.service.Deposit(ctx, "e11", items(t, "A", "B"), "", "")
	require.NoError(t, err)
	_, err = env.service.Resolve(ctx, "e11", []bool{true, true})
	require.NoError(t, err)

	// All callers observe the stored approval; the delete inside the
	// consume transaction is what decides who actually gets it
	const callers = 4
	var wg sync.WaitGroup
	results := make([]*handoff.Approval, callers)
	errs := make([]error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.service.Retrieve(ctx, "e11", false)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range results {
		if errs[i] == nil {
			winners++
			assert.Equal(t, 2, results[i].ApprovedCount())
		} else {
			assert.ErrorIs(t, errs[i], handoff.ErrNotFound)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestRetrieve_TimeoutRejectPolicy(t *testing.T) {
	policy := handoff.DefaultPolicy()
	policy.TTL = 0
	policy.PollInterval = 10 * time.Millisecond
	policy.OnTimeout = handoff.TimeoutReject
	env := setupEnv(t, policy)
	ctx := context.Background()

	_, err := env.service.Deposit(ctx, "e9", items(t, "A", "B"), "", "")
	require.NoError(t, err)

	approval, err := env.service.Retrieve(ctx, "e9", true)
	require.NoError(t, err)
	assert.Equal(t, handoff.MethodAutoTimeout, approval.Method())
	assert.Equal(t, 0, approval.ApprovedCount())
	assert.Equal(t, 2, approval.TotalCount())
}

func TestCounts(t *testing.T) {
	env := setupEnv(t, handoff.DefaultPolicy())
	ctx := context.Background()

	counts, err := env.service.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.PendingCount)
	assert.Equal(t, 0, counts.ApprovedCount)

	_, err = env.service.Deposit(ctx, "c1", items(t, "A"), "", "")
	require.NoError(t, err)
	_, err = env.service.Deposit(ctx, "c2", items(t, "A"), "", "")
	require.NoError(t, err)
	_, err = env.service.Resolve(ctx, "c2", []bool{true})
	require.NoError(t, err)

	counts, err = env.service.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.PendingCount)
	assert.Equal(t, 1, counts.ApprovedCount)
}

func TestDeposit_Redeposit_Replaces(t *testing.T) {
	env := setupEnv(t, handoff.DefaultPolicy())
	ctx := context.Background()

	_, err := env.service.Deposit(ctx, "e10", items(t, "A"), "First", "")
	require.NoError(t, err)

	receipt, err := env.service.Deposit(ctx, "e10", items(t, "A", "B"), "Second", "")
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.ItemCount)

	exec, err := env.service.Inspect(ctx, "e10")
	require.NoError(t, err)
	assert.Equal(t, "Second", exec.Title())
	assert.Equal(t, 2, exec.ItemCount())
}

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskforge/handoff/internal/application/service"
	"github.com/taskforge/handoff/internal/domain/model/handoff"
	"github.com/taskforge/handoff/internal/infrastructure/persistence/db"
	"github.com/taskforge/handoff/internal/infrastructure/transaction"
)

func setupServer(t *testing.T, policy handoff.Policy) *Server {
	t.Helper()

	handle, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { handle.Close() })

	require.NoError(t, db.NewMigrator(handle).Migrate())

	svc := service.NewHandoffService(
		db.NewExecutionRepository(handle),
		db.NewApprovalRepository(handle),
		transaction.NewManager(handle.DB()),
		policy,
		zap.NewNop(),
	)

	return NewServer(":0", svc, zap.NewNop())
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func depositBody(id string, names ...string) map[string]interface{} {
	items := make([]map[string]string, 0, len(names))
	for _, n := range names {
		items = append(items, map[string]string{"task_item": n})
	}
	return map[string]interface{}{
		"execution_id": id,
		"items":        items,
		"title":        "Roadmap Review",
		"organizer":    "dana",
	}
}

func TestServer_DepositInspectResolveRetrieve(t *testing.T) {
	srv := setupServer(t, handoff.DefaultPolicy())

	// Deposit
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/executions", depositBody("e1", "A", "B", "C"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var receipt struct {
		ExecutionID string `json:"execution_id"`
		ItemCount   int    `json:"item_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, "e1", receipt.ExecutionID)
	assert.Equal(t, 3, receipt.ItemCount)

	// Inspect
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/executions/e1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var exec struct {
		Status    string `json:"status"`
		ItemCount int    `json:"item_count"`
		Title     string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))
	assert.Equal(t, "PENDING", exec.Status)
	assert.Equal(t, 3, exec.ItemCount)
	assert.Equal(t, "Roadmap Review", exec.Title)

	// Result before any decision: accepted, try later
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/executions/e1/result", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// Resolve
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/executions/e1/approval",
		map[string]interface{}{"decisions": []bool{true, false, true}})
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		ApprovedCount int `json:"approved_count"`
		TotalCount    int `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.ApprovedCount)
	assert.Equal(t, 3, result.TotalCount)

	// Retrieve: consuming read
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/executions/e1/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var approval struct {
		ApprovedItems []json.RawMessage `json:"approved_items"`
		ApprovedCount int               `json:"approved_count"`
		Method        string            `json:"method"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approval))
	assert.Equal(t, 2, approval.ApprovedCount)
	assert.Equal(t, "MANUAL", approval.Method)
	require.Len(t, approval.ApprovedItems, 2)

	// The key never answers again
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/executions/e1/result", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Deposit_InvalidInput(t *testing.T) {
	srv := setupServer(t, handoff.DefaultPolicy())

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/executions",
		map[string]interface{}{"execution_id": "", "items": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Inspect_NotFound(t *testing.T) {
	srv := setupServer(t, handoff.DefaultPolicy())

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/executions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Inspect_Expired(t *testing.T) {
	policy := handoff.DefaultPolicy()
	policy.TTL = -time.Minute
	srv := setupServer(t, policy)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/executions", depositBody("stale", "A"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/executions/stale", nil)
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestServer_Resolve_Conflict(t *testing.T) {
	srv := setupServer(t, handoff.DefaultPolicy())

	doJSON(t, srv, http.MethodPost, "/api/v1/executions", depositBody("e2", "A"))
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/executions/e2/approval",
		map[string]interface{}{"decisions": []bool{true}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/executions/e2/approval",
		map[string]interface{}{"decisions": []bool{false}})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_Retrieve_Blocking_AutoApproves(t *testing.T) {
	policy := handoff.DefaultPolicy()
	policy.TTL = 0
	policy.PollInterval = 10 * time.Millisecond
	srv := setupServer(t, policy)

	doJSON(t, srv, http.MethodPost, "/api/v1/executions", depositBody("e3", "A", "B"))

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/executions/e3/result?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var approval struct {
		ApprovedCount int    `json:"approved_count"`
		TotalCount    int    `json:"total_count"`
		Method        string `json:"method"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approval))
	assert.Equal(t, "AUTO_TIMEOUT", approval.Method)
	assert.Equal(t, 2, approval.ApprovedCount)
	assert.Equal(t, 2, approval.TotalCount)
}

func TestServer_Healthz(t *testing.T) {
	srv := setupServer(t, handoff.DefaultPolicy())

	for i := 0; i < 3; i++ {
		doJSON(t, srv, http.MethodPost, "/api/v1/executions", depositBody(fmt.Sprintf("h%d", i), "A"))
	}
	doJSON(t, srv, http.MethodPost, "/api/v1/executions/h0/approval",
		map[string]interface{}{"decisions": []bool{true}})

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health struct {
		Status        string `json:"status"`
		PendingCount  int    `json:"pending_count"`
		ApprovedCount int    `json:"approved_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 2, health.PendingCount)
	assert.Equal(t, 1, health.ApprovedCount)
}

func TestServer_Metrics(t *testing.T) {
	srv := setupServer(t, handoff.DefaultPolicy())

	doJSON(t, srv, http.MethodPost, "/api/v1/executions", depositBody("m1", "A"))

	rec := doJSON(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "handoff_deposits_total 1")
}

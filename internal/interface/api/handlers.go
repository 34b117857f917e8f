package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/taskforge/handoff/internal/domain/model/handoff"
)

// Maximum accepted request body: a deposited batch is metadata plus a
// bounded list of task records, not a bulk upload.
const maxBodyBytes = 4 << 20

type errorBody struct {
	Error string `json:"error"`
}

type depositRequest struct {
	ExecutionID string         `json:"execution_id"`
	Items       []handoff.Item `json:"items"`
	Title       string         `json:"title,omitempty"`
	Organizer   string         `json:"organizer,omitempty"`
}

type resolveRequest struct {
	Decisions []bool `json:"decisions"`
}

type executionResponse struct {
	ExecutionID string         `json:"execution_id"`
	Items       []handoff.Item `json:"items"`
	Title       string         `json:"title,omitempty"`
	Organizer   string         `json:"organizer,omitempty"`
	ItemCount   int            `json:"item_count"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

type approvalResponse struct {
	ExecutionID   string         `json:"execution_id"`
	ApprovedItems []handoff.Item `json:"approved_items"`
	ApprovedCount int            `json:"approved_count"`
	TotalCount    int            `json:"total_count"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	Method        string         `json:"method"`
}

type healthResponse struct {
	Status        string `json:"status"`
	PendingCount  int    `json:"pending_count"`
	ApprovedCount int    `json:"approved_count"`
}

// handleDeposit stores a batch and opens its review window.
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	receipt, err := s.service.Deposit(r.Context(), req.ExecutionID, req.Items, req.Title, req.Organizer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.depositsTotal.Inc()
	writeJSON(w, http.StatusCreated, receipt)
}

// handleInspect returns a reviewable batch.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	exec, err := s.service.Inspect(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, executionResponse{
		ExecutionID: exec.ExecutionID(),
		Items:       exec.Items(),
		Title:       exec.Title(),
		Organizer:   exec.Organizer(),
		ItemCount:   exec.ItemCount(),
		Status:      exec.Status().String(),
		CreatedAt:   exec.CreatedAt(),
		ExpiresAt:   exec.ExpiresAt(),
	})
}

// handleResolve submits the reviewer's decisions.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	result, err := s.service.Resolve(r.Context(), mux.Vars(r)["id"], req.Decisions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.resolutionsTotal.WithLabelValues(handoff.MethodManual.String()).Inc()
	writeJSON(w, http.StatusOK, result)
}

// handleRetrieve is the consuming read. `?wait=true` blocks up to the
// wait ceiling; the approval is gone once the response is written.
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	wait := r.URL.Query().Get("wait") == "true"

	approval, err := s.service.Retrieve(r.Context(), mux.Vars(r)["id"], wait)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.retrievalsTotal.Inc()
	if approval.Method() == handoff.MethodAutoTimeout {
		s.metrics.resolutionsTotal.WithLabelValues(handoff.MethodAutoTimeout.String()).Inc()
	}

	writeJSON(w, http.StatusOK, approvalResponse{
		ExecutionID:   approval.ExecutionID(),
		ApprovedItems: approval.ApprovedItems(),
		ApprovedCount: approval.ApprovedCount(),
		TotalCount:    approval.TotalCount(),
		SubmittedAt:   approval.SubmittedAt(),
		Method:        approval.Method().String(),
	})
}

// handleHealth reports the process-health probe counts.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts, err := s.service.Counts(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded"})
		return
	}

	s.metrics.pendingGauge.Set(float64(counts.PendingCount))
	s.metrics.approvedGauge.Set(float64(counts.ApprovedCount))

	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		PendingCount:  counts.PendingCount,
		ApprovedCount: counts.ApprovedCount,
	})
}

// writeError maps the domain taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, handoff.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, handoff.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, handoff.ErrExpired):
		status = http.StatusGone
	case errors.Is(err, handoff.ErrAlreadyResolved):
		status = http.StatusConflict
	case errors.Is(err, handoff.ErrPending):
		// Accepted-but-undecided, the caller should retry later
		status = http.StatusAccepted
	case errors.Is(err, handoff.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	default:
		s.logger.Error("request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		// Anything unexpected on the request path is a storage-side
		// failure the caller must retry
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

package handoff

import (
	"encoding/json"
	"fmt"
	"time"
)

// Item is one opaque task record inside a deposited batch.
// The store never interprets its contents; producers define the schema.
type Item = json.RawMessage

// Execution represents one deposited batch awaiting or having received
// a review decision. It is created by a deposit, mutated only by the
// resolution state machine, and destroyed by a successful retrieve or
// by retention cleanup.
type Execution struct {
	executionID string
	items       []Item
	title       string
	organizer   string
	itemCount   int
	status      Status
	createdAt   time.Time
	expiresAt   time.Time
}

// NewExecution creates a PENDING execution from a deposit.
// The item count is fixed here and never recomputed.
func NewExecution(executionID string, items []Item, title, organizer string, ttl time.Duration) (*Execution, error) {
	if executionID == "" {
		return nil, fmt.Errorf("%w: execution_id is required", ErrInvalidInput)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: items must not be empty", ErrInvalidInput)
	}

	now := time.Now().UTC()

	return &Execution{
		executionID: executionID,
		items:       items,
		title:       title,
		organizer:   organizer,
		itemCount:   len(items),
		status:      StatusPending,
		createdAt:   now,
		expiresAt:   now.Add(ttl),
	}, nil
}

// ReconstructExecution rebuilds an Execution from persisted data.
// Used by repositories when loading from the database.
func ReconstructExecution(
	executionID string,
	items []Item,
	title, organizer string,
	itemCount int,
	status Status,
	createdAt, expiresAt time.Time,
) *Execution {
	return &Execution{
		executionID: executionID,
		items:       items,
		title:       title,
		organizer:   organizer,
		itemCount:   itemCount,
		status:      status,
		createdAt:   createdAt,
		expiresAt:   expiresAt,
	}
}

// IsExpired reports whether the review window has passed.
func (e *Execution) IsExpired() bool {
	return time.Now().UTC().After(e.expiresAt)
}

// Resolve applies a reviewer's item-level decisions and transitions the
// execution to APPROVED. decisions[i] corresponds to items[i]; true means
// accept. The approved subsequence preserves order and is not deduplicated.
func (e *Execution) Resolve(decisions []bool) (*Approval, error) {
	if e.status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyResolved, e.executionID)
	}
	if len(decisions) != e.itemCount {
		return nil, fmt.Errorf("%w: %d decisions for %d items", ErrInvalidInput, len(decisions), e.itemCount)
	}

	approved := make([]Item, 0, e.itemCount)
	for i, accept := range decisions {
		if accept {
			approved = append(approved, e.items[i])
		}
	}

	e.status = StatusApproved
	return newApproval(e.executionID, approved, e.itemCount, MethodManual), nil
}

// AutoResolve escalates a PENDING execution past its deadline to
// AUTO_APPROVED. The accepted subset is governed by the timeout action:
// every item on TimeoutApprove, none on TimeoutReject. Provenance is
// AUTO_TIMEOUT either way.
func (e *Execution) AutoResolve(action TimeoutAction) (*Approval, error) {
	if e.status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyResolved, e.executionID)
	}

	var approved []Item
	if action == TimeoutApprove {
		approved = make([]Item, len(e.items))
		copy(approved, e.items)
	} else {
		approved = []Item{}
	}

	e.status = StatusAutoApproved
	return newApproval(e.executionID, approved, e.itemCount, MethodAutoTimeout), nil
}

// Getters
func (e *Execution) ExecutionID() string  { return e.executionID }
func (e *Execution) Items() []Item        { return e.items }
func (e *Execution) Title() string        { return e.title }
func (e *Execution) Organizer() string    { return e.organizer }
func (e *Execution) ItemCount() int       { return e.itemCount }
func (e *Execution) Status() Status       { return e.status }
func (e *Execution) CreatedAt() time.Time { return e.createdAt }
func (e *Execution) ExpiresAt() time.Time { return e.expiresAt }

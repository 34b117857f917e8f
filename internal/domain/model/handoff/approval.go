package handoff

import "time"

// Approval is the resolution of exactly one Execution: the accepted
// subset of its items, the counts, and the provenance of the decision.
// At most one Approval exists per execution ID at any time.
type Approval struct {
	executionID   string
	approvedItems []Item
	approvedCount int
	totalCount    int
	submittedAt   time.Time
	method        Method
}

// newApproval is only reachable through the state machine transitions
// on Execution, which keeps the approved/total count invariant by
// construction.
func newApproval(executionID string, approvedItems []Item, totalCount int, method Method) *Approval {
	return &Approval{
		executionID:   executionID,
		approvedItems: approvedItems,
		approvedCount: len(approvedItems),
		totalCount:    totalCount,
		submittedAt:   time.Now().UTC(),
		method:        method,
	}
}

// ReconstructApproval rebuilds an Approval from persisted data.
func ReconstructApproval(
	executionID string,
	approvedItems []Item,
	approvedCount, totalCount int,
	submittedAt time.Time,
	method Method,
) *Approval {
	return &Approval{
		executionID:   executionID,
		approvedItems: approvedItems,
		approvedCount: approvedCount,
		totalCount:    totalCount,
		submittedAt:   submittedAt,
		method:        method,
	}
}

// Getters
func (a *Approval) ExecutionID() string    { return a.executionID }
func (a *Approval) ApprovedItems() []Item  { return a.approvedItems }
func (a *Approval) ApprovedCount() int     { return a.approvedCount }
func (a *Approval) TotalCount() int        { return a.totalCount }
func (a *Approval) SubmittedAt() time.Time { return a.submittedAt }
func (a *Approval) Method() Method         { return a.method }

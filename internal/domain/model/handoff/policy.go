package handoff

import (
	"fmt"
	"time"
)

// TimeoutAction decides what happens to an unresolved batch once its
// review window closes. Earlier iterations of this system disagreed on
// the default; approve-on-timeout is the shipped behavior, reject is
// kept as a configuration choice.
type TimeoutAction string

const (
	TimeoutApprove TimeoutAction = "approve"
	TimeoutReject  TimeoutAction = "reject"
)

// ParseTimeoutAction converts a configuration string into a TimeoutAction.
func ParseTimeoutAction(s string) (TimeoutAction, error) {
	switch TimeoutAction(s) {
	case TimeoutApprove, TimeoutReject:
		return TimeoutAction(s), nil
	default:
		return "", fmt.Errorf("unknown timeout action: %q", s)
	}
}

// Policy bundles the time bounds governing the handoff lifecycle.
type Policy struct {
	// TTL is the review window granted to each deposit.
	TTL time.Duration

	// Retention is how long a resolved but unretrieved approval (and its
	// execution) is kept before garbage collection.
	Retention time.Duration

	// WaitCeiling bounds a blocking retrieve. A caller never waits past
	// it without an answer.
	WaitCeiling time.Duration

	// PollInterval is the coarse polling step of a blocking retrieve.
	PollInterval time.Duration

	// OnTimeout is applied when a PENDING execution is escalated.
	OnTimeout TimeoutAction
}

// DefaultPolicy returns the shipped policy values.
func DefaultPolicy() Policy {
	return Policy{
		TTL:          15 * time.Minute,
		Retention:    24 * time.Hour,
		WaitCeiling:  5 * time.Minute,
		PollInterval: 2 * time.Second,
		OnTimeout:    TimeoutApprove,
	}
}

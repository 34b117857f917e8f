package handoff

import "fmt"

// Status represents the resolution state of an Execution.
// PENDING is the only initial state. APPROVED and AUTO_APPROVED are
// terminal with respect to further resolution; retrieval deletes the
// row instead of marking it, so it is not modeled as a status.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusApproved     Status = "APPROVED"
	StatusAutoApproved Status = "AUTO_APPROVED"
)

// ParseStatus converts a persisted string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusApproved, StatusAutoApproved:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown execution status: %q", s)
	}
}

// IsTerminal reports whether the status permits no further resolution.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusAutoApproved
}

func (s Status) String() string { return string(s) }

// Method records the provenance of an Approval decision.
type Method string

const (
	MethodManual      Method = "MANUAL"
	MethodAutoTimeout Method = "AUTO_TIMEOUT"
)

// ParseMethod converts a persisted string into a Method.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodManual, MethodAutoTimeout:
		return Method(s), nil
	default:
		return "", fmt.Errorf("unknown approval method: %q", s)
	}
}

func (m Method) String() string { return string(m) }

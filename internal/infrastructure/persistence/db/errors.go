package db

import (
	"fmt"

	"github.com/taskforge/handoff/internal/domain/model/handoff"
)

// backendErr tags a storage failure so callers up the stack can match
// handoff.ErrBackendUnavailable with errors.Is while keeping the driver
// error in the chain.
func backendErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, handoff.ErrBackendUnavailable, err)
}

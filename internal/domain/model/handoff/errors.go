package handoff

import "errors"

// Sentinel errors for the handoff lifecycle.
// Callers match these with errors.Is; layers above wrap them with %w.
var (
	// ErrInvalidInput indicates a malformed or missing required field.
	// Caller error; never retried by the store.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates the execution ID is unknown or was already
	// consumed by a successful retrieve.
	ErrNotFound = errors.New("execution not found")

	// ErrExpired indicates the execution is known but its review window
	// has passed and it has not yet been escalated. The caller should
	// retrieve instead of inspecting again.
	ErrExpired = errors.New("execution expired")

	// ErrAlreadyResolved indicates an approval already exists for the
	// execution; the first resolution (manual or automatic) won.
	ErrAlreadyResolved = errors.New("execution already resolved")

	// ErrPending indicates the execution exists but has not been resolved
	// yet. The caller should retry later or use a blocking retrieve.
	ErrPending = errors.New("approval pending")

	// ErrBackendUnavailable indicates a transient storage failure.
	// Request-path callers receive it immediately and must retry themselves.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)

package types

import "errors"

// Sentinel errors for the error kinds callers branch on.
var (
	// ErrNotFound is returned when a requested node, point, or session is missing.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig is returned when configuration is missing or invalid.
	// Fatal for the current operation, never process-fatal.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrGraphUnavailable is returned when the graph backend is unreachable.
	// Recoverable; callers retry after an infra check.
	ErrGraphUnavailable = errors.New("graph backend unavailable")

	// ErrVectorUnavailable is returned when the vector backend is unreachable.
	ErrVectorUnavailable = errors.New("vector backend unavailable")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrParse is returned for per-file parse failures. Logged, counted, non-fatal.
	ErrParse = errors.New("parse error")

	// ErrLedgerWrite is returned when the sync ledger cannot be persisted.
	// Fatal for the sync tick.
	ErrLedgerWrite = errors.New("ledger write failed")

	// ErrTimeout is returned when an operation exceeds its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrCancelled is returned when an operation observes cancellation.
	ErrCancelled = errors.New("operation cancelled")

	// ErrValidation is returned for invalid tool-call arguments.
	ErrValidation = errors.New("invalid arguments")
)

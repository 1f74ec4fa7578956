package casstore

import "errors"

// Sentinel errors per spec.md §4.1/§7. None of these are retried inside
// the CAS itself — callers decide policy.
var (
	ErrNotFound         = errors.New("casstore: blob not found")
	ErrCorruption       = errors.New("casstore: stored hash does not match content")
	ErrBackendUnavailable = errors.New("casstore: backend unavailable")
	ErrQuotaExceeded    = errors.New("casstore: quota exceeded")
)

// InvariantViolation marks a programmer error that must fail fast and
// abort the run without corrupting persisted state (spec.md §7).
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string { return "casstore: invariant violation: " + e.Msg }

package negotiation

import (
	"errors"
	"fmt"
)

// Expected negative outcomes of store and lease operations. Callers match
// these with errors.Is; anything else coming out of a store is either a
// *ConsistencyError or a *StorageError.
var (
	// ErrNotFound reports that no record exists for the requested id or
	// correlation id.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists reports that a create-only caller found a prior
	// record. The store's save itself is upsert-like and never returns it.
	ErrAlreadyExists = errors.New("already exists")

	// ErrAlreadyLeased reports a live lease held by a different holder.
	// Retryable after backoff.
	ErrAlreadyLeased = errors.New("already leased")

	// ErrConflict reports a business-rule violation, such as deleting a
	// negotiation that owns an agreement. Not transient.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition reports an illegal state transition for the
	// negotiation's type.
	ErrInvalidTransition = errors.New("invalid negotiation state transition")
)

// ConsistencyError reports data corruption: a correlation id resolved to
// more than one negotiation. Fatal, never retried.
type ConsistencyError struct {
	CorrelationID string
	Matches       int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("correlation id %q resolves to %d negotiations, expected at most one", e.CorrelationID, e.Matches)
}

// StorageError wraps a backend I/O failure so callers can tell
// infrastructure faults apart from business outcomes. The cause is reachable
// through Unwrap.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is (or wraps) a backend failure.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

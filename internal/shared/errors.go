package shared

import "errors"

// Error kinds. Domain packages wrap one of these so transports can map
// failures without knowing every sentinel.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks bad input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a write that lost against concurrent or duplicate state.
	ErrConflict = errors.New("conflict")
	// ErrStorage marks a failed or transient store round trip.
	ErrStorage = errors.New("storage failure")
	// ErrConsistency marks ledger-side writes that committed without their journal.
	ErrConsistency = errors.New("consistency failure")
)

// Kind returns the error kind err wraps, or nil if none. A consistency
// failure outranks whatever caused it.
func Kind(err error) error {
	for _, kind := range []error{ErrConsistency, ErrValidation, ErrNotFound, ErrConflict, ErrStorage} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsRetryable reports whether the caller may retry the same request later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorage) || errors.Is(err, ErrConsistency)
}

package store

import "fmt"

// StorageUnavailableError indicates the backing store was unreachable,
// throttled, or erroring. Always recoverable on retry, but the store layer
// never retries; the service layer decides fallback policy.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps a backend error as a StorageUnavailableError.
func Unavailable(op string, err error) error {
	return &StorageUnavailableError{Op: op, Err: err}
}

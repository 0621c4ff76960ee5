package lookup

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLookup is returned for malformed lookups and range queries
	ErrInvalidLookup = errors.New("invalid lookup")

	// ErrUnknownEntity is returned when a model is not defined in the schema
	ErrUnknownEntity = errors.New("unknown model")
)

// FetchError is the failure of one consolidated fetch. Every lookup that
// was waiting on the batch receives the same FetchError.
type FetchError struct {
	Signature Signature
	BatchID   string
	Keys      int
	Err       error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%d keys, batch %s): %v", e.Signature, e.Keys, e.BatchID, e.Err)
}

// Unwrap returns the backend error
func (e *FetchError) Unwrap() error {
	return e.Err
}

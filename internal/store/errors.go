package store

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error taxonomy. Implementations wrap the underlying cause so that callers
// can match with errors.Is and still read the driver message.
var (
	// ErrConfigurationMissing means the store was opened without enough
	// connection parameters to reach a database.
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrConnection means a connection could not be acquired.
	ErrConnection = errors.New("connection error")
	// ErrProvisioning means the schema statement failed.
	ErrProvisioning = errors.New("provisioning error")
	// ErrStorage means a read or write failed.
	ErrStorage = errors.New("storage error")
	// ErrInvalidValue is returned (wrapped in ErrStorage) when a value is
	// not a valid JSON document.
	ErrInvalidValue = errors.New("value is not valid JSON")
)

// Wrap tags err with kind, keeping both in the chain.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}

// ValidateValue rejects non-nil values that are not valid JSON.
// A nil value is the absence marker and is always accepted.
func ValidateValue(value json.RawMessage) error {
	if value == nil {
		return nil
	}
	if !json.Valid(value) {
		return fmt.Errorf("%w: %w", ErrStorage, ErrInvalidValue)
	}
	return nil
}

package store

import (
	"context"
	"encoding/json"

	"github.com/alfredjeanlab/kconf/internal/model"
)

// Store defines the persistence interface for configuration entries.
// Paths are stored verbatim; namespacing happens above this layer.
type Store interface {
	// Get returns the value stored at path.
	//
	// Get is not read-only: when no entry exists at path it stores def
	// (Replace semantics) and returns def. A nil def stores SQL NULL and
	// returns nil, which callers must distinguish from a stored JSON null.
	// An empty path matches any single row. If another writer stores a
	// value between the miss and the insert, that value is kept and returned.
	Get(ctx context.Context, path string, def json.RawMessage) (json.RawMessage, error)

	// Set replaces the value at path and returns value.
	Set(ctx context.Context, path string, value json.RawMessage) (json.RawMessage, error)

	// Update shallow-merges value into an existing object at path (falling
	// back to Set when either side is not an object) and returns value, the
	// delta, not the merged document.
	Update(ctx context.Context, path string, value json.RawMessage) (json.RawMessage, error)

	// ListEntries returns all entries whose path starts with prefix, ordered by path.
	ListEntries(ctx context.Context, prefix string) ([]*model.Entry, error)

	// Close releases the connections owned by the store.
	Close() error
}

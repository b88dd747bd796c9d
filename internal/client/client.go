// Package client provides a transport-agnostic interface for the kconf
// service with HTTP/JSON and gRPC implementations.
package client

import (
	"context"
	"encoding/json"

	"github.com/alfredjeanlab/kconf/internal/model"
)

// ConfigClient is the interface that all kc CLI commands use to communicate
// with the kconf server. An empty userID addresses the global namespace.
type ConfigClient interface {
	// Get returns the value at key, storing def first when the key is missing.
	Get(ctx context.Context, userID, key string, def json.RawMessage) (json.RawMessage, error)
	// Set replaces the value at key.
	Set(ctx context.Context, userID, key string, value json.RawMessage) (json.RawMessage, error)
	// Update merges value into the object at key and returns value.
	Update(ctx context.Context, userID, key string, value json.RawMessage) (json.RawMessage, error)
	// List returns the entries whose storage path starts with prefix.
	List(ctx context.Context, prefix string) ([]*model.Entry, error)

	Health(ctx context.Context) (string, error)

	Close() error
}

// Compile-time checks.
var (
	_ ConfigClient = (*HTTPClient)(nil)
	_ ConfigClient = (*GRPCClient)(nil)
)

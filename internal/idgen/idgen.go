// Package idgen generates the opaque row identifiers assigned to config
// entries on first insert.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// EntryPrefix is prepended to every entry ID.
const EntryPrefix = "cfg-"

// alphabet is URL-safe and avoids characters that need quoting in logs.
const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// idLength is the number of random characters after the prefix.
const idLength = 12

// NewEntryID returns a fresh entry identifier such as "cfg-4fQx0aZ1bC9d".
func NewEntryID() (string, error) {
	id, err := nanoid.Generate(alphabet, idLength)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return EntryPrefix + id, nil
}

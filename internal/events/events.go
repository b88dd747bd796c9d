// Package events publishes configuration change notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/kconf/internal/model"
)

// Event topics.
const (
	TopicEntrySet     = "kconf.entry.set"
	TopicEntryUpdated = "kconf.entry.updated"

	// TopicAll matches every kconf topic.
	TopicAll = "kconf.>"
)

// Namespace names used in events.
const (
	NamespaceGlobal = "global"
	NamespaceUser   = "user"
)

// EntryChanged is published after a successful set or update.
// Value is what the caller wrote; for updates that is the delta.
type EntryChanged struct {
	ID        string          `json:"id"`
	Path      string          `json:"path"`
	Namespace string          `json:"namespace"`
	UserID    string          `json:"user_id,omitempty"`
	Key       string          `json:"key"`
	Mode      model.WriteMode `json:"mode"`
	Value     json.RawMessage `json:"value"`
	Time      time.Time       `json:"time"`
}

// NewEntryChanged stamps a change with a fresh event ID and the current time.
func NewEntryChanged(path, namespace, userID, key string, mode model.WriteMode, value json.RawMessage) EntryChanged {
	return EntryChanged{
		ID:        uuid.NewString(),
		Path:      path,
		Namespace: namespace,
		UserID:    userID,
		Key:       key,
		Mode:      mode,
		Value:     value,
		Time:      time.Now().UTC(),
	}
}

// TopicForMode returns the topic an EntryChanged with mode is published on.
func TopicForMode(mode model.WriteMode) string {
	if mode == model.ModeMerge {
		return TopicEntryUpdated
	}
	return TopicEntrySet
}

// DecodeEntryChanged parses a payload delivered by a Subscriber.
func DecodeEntryChanged(data []byte) (EntryChanged, error) {
	var ev EntryChanged
	if err := json.Unmarshal(data, &ev); err != nil {
		return EntryChanged{}, fmt.Errorf("decoding entry event: %w", err)
	}
	return ev, nil
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

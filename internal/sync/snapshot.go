package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/kconf/internal/model"
)

// snapshotVersion is written in every header line.
const snapshotVersion = "1"

// Snapshot is a point-in-time copy of every entry, sorted by path.
type Snapshot struct {
	Entries []*model.Entry
	Taken   time.Time
}

// Take reads every entry of src.
func Take(ctx context.Context, src Source) (*Snapshot, error) {
	entries, err := src.ListEntries(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return &Snapshot{Entries: entries, Taken: time.Now().UTC()}, nil
}

// Digest identifies the snapshot's contents. Two snapshots of an unchanged
// store have the same digest regardless of when they were taken.
func (s *Snapshot) Digest() string {
	h := sha256.New()
	for _, e := range s.Entries {
		h.Write([]byte(e.Path))
		h.Write([]byte{0})
		if e.Value != nil {
			var buf bytes.Buffer
			if json.Compact(&buf, e.Value) == nil {
				h.Write(buf.Bytes())
			} else {
				h.Write(e.Value)
			}
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// header is the first JSONL line.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	EntryCount int       `json:"entry_count"`
	Digest     string    `json:"digest"`
}

// record wraps one entry line.
type record struct {
	Type string       `json:"type"`
	Data *model.Entry `json:"data"`
}

// WriteJSONL writes a header line followed by one "entry" record per entry.
func (s *Snapshot) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    snapshotVersion,
		Type:       "header",
		Timestamp:  s.Taken,
		EntryCount: len(s.Entries),
		Digest:     s.Digest(),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, e := range s.Entries {
		if err := enc.Encode(record{Type: "entry", Data: e}); err != nil {
			return fmt.Errorf("encode entry %s: %w", e.Path, err)
		}
	}
	return nil
}

// ExportJSONL takes a snapshot of src and writes it to w. Nothing is written
// when the snapshot cannot be taken.
func ExportJSONL(ctx context.Context, src Source, w io.Writer) error {
	snap, err := Take(ctx, src)
	if err != nil {
		return err
	}
	return snap.WriteJSONL(w)
}

// Package memory implements store.Store in process memory. It mirrors the
// PostgreSQL store's Replace/Merge/default semantics and is used for local
// development (KCONF_STORE=memory) and tests.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/alfredjeanlab/kconf/internal/idgen"
	"github.com/alfredjeanlab/kconf/internal/model"
	"github.com/alfredjeanlab/kconf/internal/store"
)

// Store is an in-memory store.Store. The zero value is not usable; call New.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*model.Entry
	closed  bool
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{entries: make(map[string]*model.Entry)}
}

func (s *Store) Get(_ context.Context, path string, def json.RawMessage) (json.RawMessage, error) {
	if err := store.ValidateValue(def); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrConnection
	}

	if e := s.lookup(path); e != nil {
		return clone(e.Value), nil
	}
	if err := s.put(path, def, model.ModeReplace); err != nil {
		return nil, err
	}
	return clone(def), nil
}

func (s *Store) Set(_ context.Context, path string, value json.RawMessage) (json.RawMessage, error) {
	return s.write(path, value, model.ModeReplace)
}

func (s *Store) Update(_ context.Context, path string, value json.RawMessage) (json.RawMessage, error) {
	return s.write(path, value, model.ModeMerge)
}

func (s *Store) ListEntries(_ context.Context, prefix string) ([]*model.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrConnection
	}

	var out []*model.Entry
	for p, e := range s.entries {
		if strings.HasPrefix(p, prefix) {
			cp := *e
			cp.Value = clone(e.Value)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Close marks the store closed; later calls fail with store.ErrConnection.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Store) write(path string, value json.RawMessage, mode model.WriteMode) (json.RawMessage, error) {
	if err := store.ValidateValue(value); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrConnection
	}
	if err := s.put(path, value, mode); err != nil {
		return nil, err
	}
	return clone(value), nil
}

// lookup mirrors the SQL reader: an empty path matches the first row in path order.
func (s *Store) lookup(path string) *model.Entry {
	if path != "" {
		return s.entries[path]
	}
	var first *model.Entry
	for _, e := range s.entries {
		if first == nil || e.Path < first.Path {
			first = e
		}
	}
	return first
}

// put must be called with s.mu held.
func (s *Store) put(path string, value json.RawMessage, mode model.WriteMode) error {
	e, ok := s.entries[path]
	if !ok {
		id, err := idgen.NewEntryID()
		if err != nil {
			return store.Wrap(store.ErrStorage, "generate id", err)
		}
		s.entries[path] = &model.Entry{ID: id, Path: path, Value: clone(value)}
		return nil
	}
	next := value
	if mode == model.ModeMerge {
		merged, err := model.MergeObjects(e.Value, value)
		if err != nil {
			return store.Wrap(store.ErrStorage, "merge "+path, err)
		}
		next = merged
	}
	e.Value = clone(next)
	return nil
}

func clone(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	return bytes.Clone(v)
}

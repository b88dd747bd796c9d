package namespace

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/alfredjeanlab/kconf/internal/model"
	"github.com/alfredjeanlab/kconf/internal/store"
)

// Errors returned by the user-namespace methods.
var (
	ErrEmptyUserID = errors.New("user id is required")
	// ErrInvalidUserID rejects ids containing "/": the id is one path
	// segment, and a separator would reach into another user's keys.
	ErrInvalidUserID = errors.New(`user id must not contain "/"`)
)

// ValidateUserID checks that userID names exactly one path segment.
func ValidateUserID(userID string) error {
	switch {
	case strings.TrimSpace(userID) == "":
		return ErrEmptyUserID
	case strings.ContainsRune(userID, '/'):
		return ErrInvalidUserID
	}
	return nil
}

// Service is the caller-facing configuration API. Paths are stored verbatim
// under the router's roots, so the store itself never sees a namespace.
type Service struct {
	store  store.Store
	router Router
}

// NewService returns a Service over s.
func NewService(s store.Store, r Router) *Service {
	return &Service{store: s, router: r}
}

// Router returns the path router used by the service.
func (s *Service) Router() Router { return s.router }

// GetGlobalData returns the global value at key. On a miss it stores def and
// returns it; see store.Store.Get.
func (s *Service) GetGlobalData(ctx context.Context, key string, def json.RawMessage) (json.RawMessage, error) {
	return s.store.Get(ctx, s.router.GlobalPath(key), def)
}

// GetUserData returns userID's value at key, storing def on a miss.
func (s *Service) GetUserData(ctx context.Context, userID, key string, def json.RawMessage) (json.RawMessage, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, s.router.UserPath(userID, key), def)
}

// SetGlobalData replaces the global value at key.
func (s *Service) SetGlobalData(ctx context.Context, key string, value json.RawMessage) (json.RawMessage, error) {
	return s.store.Set(ctx, s.router.GlobalPath(key), value)
}

// SetUserData replaces userID's value at key.
func (s *Service) SetUserData(ctx context.Context, userID, key string, value json.RawMessage) (json.RawMessage, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.store.Set(ctx, s.router.UserPath(userID, key), value)
}

// UpdateGlobalData merges value into the global object at key.
func (s *Service) UpdateGlobalData(ctx context.Context, key string, value json.RawMessage) (json.RawMessage, error) {
	return s.store.Update(ctx, s.router.GlobalPath(key), value)
}

// UpdateUserData merges value into userID's object at key.
func (s *Service) UpdateUserData(ctx context.Context, userID, key string, value json.RawMessage) (json.RawMessage, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, s.router.UserPath(userID, key), value)
}

// ListEntries returns every stored entry whose path starts with prefix,
// across both namespaces.
func (s *Service) ListEntries(ctx context.Context, prefix string) ([]*model.Entry, error) {
	return s.store.ListEntries(ctx, prefix)
}

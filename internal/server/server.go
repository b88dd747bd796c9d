package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/alfredjeanlab/kconf/internal/events"
	"github.com/alfredjeanlab/kconf/internal/model"
	"github.com/alfredjeanlab/kconf/internal/namespace"
	"github.com/alfredjeanlab/kconf/internal/store"
)

// ConfigServer serves the namespace API over HTTP and gRPC and publishes a
// change event after every successful write.
type ConfigServer struct {
	svc       *namespace.Service
	publisher events.Publisher
	hub       *changeHub
	logger    *slog.Logger
}

// NewConfigServer returns a ConfigServer backed by svc. A nil publisher
// disables events.
func NewConfigServer(svc *namespace.Service, p events.Publisher, logger *slog.Logger) *ConfigServer {
	if p == nil {
		p = events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigServer{svc: svc, publisher: p, hub: newChangeHub(), logger: logger}
}

// target addresses one key in one namespace.
type target struct {
	Namespace string
	UserID    string
	Key       string
}

func (t target) path(r namespace.Router) string {
	if t.Namespace == events.NamespaceUser {
		return r.UserPath(t.UserID, t.Key)
	}
	return r.GlobalPath(t.Key)
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

func (t target) validate() error {
	switch t.Namespace {
	case events.NamespaceGlobal:
	case events.NamespaceUser:
		if err := namespace.ValidateUserID(t.UserID); err != nil {
			return err
		}
	default:
		return inputError("namespace must be global or user")
	}
	if t.Key == "" {
		return inputError("key is required")
	}
	return nil
}

func (s *ConfigServer) read(ctx context.Context, t target, def json.RawMessage) (json.RawMessage, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	if t.Namespace == events.NamespaceUser {
		return s.svc.GetUserData(ctx, t.UserID, t.Key, def)
	}
	return s.svc.GetGlobalData(ctx, t.Key, def)
}

// write applies value at t and publishes the change. For ModeMerge the
// returned document is the delta, not the merged result.
func (s *ConfigServer) write(ctx context.Context, t target, value json.RawMessage, mode model.WriteMode) (json.RawMessage, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	var (
		out json.RawMessage
		err error
	)
	switch {
	case mode == model.ModeMerge && t.Namespace == events.NamespaceUser:
		out, err = s.svc.UpdateUserData(ctx, t.UserID, t.Key, value)
	case mode == model.ModeMerge:
		out, err = s.svc.UpdateGlobalData(ctx, t.Key, value)
	case t.Namespace == events.NamespaceUser:
		out, err = s.svc.SetUserData(ctx, t.UserID, t.Key, value)
	default:
		out, err = s.svc.SetGlobalData(ctx, t.Key, value)
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, t, mode, value)
	return out, nil
}

// publish is best-effort; a failure is logged and never fails the write.
func (s *ConfigServer) publish(ctx context.Context, t target, mode model.WriteMode, value json.RawMessage) {
	path := t.path(s.svc.Router())
	topic := events.TopicForMode(mode)
	ev := events.NewEntryChanged(path, t.Namespace, t.UserID, t.Key, mode, value)
	s.streamChange(topic, ev)
	if err := s.publisher.Publish(ctx, topic, ev); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "path", path, "error", err)
	}
}

func (s *ConfigServer) list(ctx context.Context, prefix string) ([]*model.Entry, error) {
	entries, err := s.svc.ListEntries(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*model.Entry{}
	}
	return entries, nil
}

// errorKind classifies an error for the transports.
type errorKind int

const (
	kindInternal errorKind = iota
	kindInvalid
	kindUnavailable
)

func classify(err error) errorKind {
	var ie inputError
	switch {
	case errors.As(err, &ie),
		errors.Is(err, namespace.ErrEmptyUserID),
		errors.Is(err, namespace.ErrInvalidUserID),
		errors.Is(err, store.ErrInvalidValue):
		return kindInvalid
	case errors.Is(err, store.ErrConnection):
		return kindUnavailable
	default:
		return kindInternal
	}
}

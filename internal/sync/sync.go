// Package sync periodically copies a JSONL snapshot of the config table to
// external destinations.
package sync

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/kconf/internal/model"
)

// Source is the read side of a store. store.Store and namespace.Service
// both satisfy it.
type Source interface {
	ListEntries(ctx context.Context, prefix string) ([]*model.Entry, error)
}

// Payload is one encoded snapshot handed to a destination.
type Payload struct {
	Data    []byte
	Entries int
	Digest  string
}

// Destination is a sync target such as an S3 object or a file in a git repo.
type Destination interface {
	// Name identifies the destination in logs.
	Name() string
	Write(ctx context.Context, p Payload) error
}

// Scheduler exports snapshots on an interval. A destination is only written
// when the digest differs from the last one it accepted, so a failed write
// is retried on the next tick.
type Scheduler struct {
	source       Source
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	accepted map[string]string // destination name -> digest

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(src Source, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		source:       src,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		accepted:     make(map[string]string),
	}
}

// Start syncs once immediately and then on every tick until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.SyncOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SyncOnce(ctx)
			}
		}
	}()
}

// Stop cancels the scheduler and waits for an in-flight sync.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// SyncOnce takes a snapshot and writes it to every destination that has not
// already accepted an identical one. It returns the number of writes.
func (s *Scheduler) SyncOnce(ctx context.Context) int {
	snap, err := Take(ctx, s.source)
	if err != nil {
		s.logger.Error("sync snapshot failed", "err", err)
		return 0
	}
	digest := snap.Digest()

	var payload *Payload
	written := 0
	for _, dest := range s.destinations {
		name := dest.Name()
		if s.lastAccepted(name) == digest {
			s.logger.Debug("sync skipped, snapshot unchanged", "destination", name)
			continue
		}
		if payload == nil {
			var buf bytes.Buffer
			if err := snap.WriteJSONL(&buf); err != nil {
				s.logger.Error("sync encode failed", "err", err)
				return written
			}
			payload = &Payload{Data: buf.Bytes(), Entries: len(snap.Entries), Digest: digest}
		}
		if err := dest.Write(ctx, *payload); err != nil {
			s.logger.Error("sync destination write failed", "destination", name, "err", err)
			continue
		}
		s.accept(name, digest)
		written++
	}

	if written > 0 {
		s.logger.Info("sync completed", "written", written, "entries", len(snap.Entries), "digest", digest[:12])
	}
	return written
}

func (s *Scheduler) lastAccepted(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted[name]
}

func (s *Scheduler) accept(name, digest string) {
	s.mu.Lock()
	s.accepted[name] = digest
	s.mu.Unlock()
}

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/kconf/internal/events"
)

const (
	// changeBacklog is how many recent changes are kept for Last-Event-ID
	// replay.
	changeBacklog = 512

	streamKeepalive = 15 * time.Second
)

// change is one entry event as delivered to stream subscribers.
type change struct {
	Seq   uint64
	Topic string
	Path  string
	Data  []byte
}

// changeFilter selects the changes a subscriber wants. Zero value matches all.
type changeFilter struct {
	topics []string // NATS-style patterns
	prefix string   // storage path prefix
}

func (f changeFilter) match(c *change) bool {
	if !strings.HasPrefix(c.Path, f.prefix) {
		return false
	}
	if len(f.topics) == 0 {
		return true
	}
	for _, p := range f.topics {
		if matchTopicPattern(p, c.Topic) {
			return true
		}
	}
	return false
}

type subscriber struct {
	filter changeFilter
	ch     chan *change
}

// changeHub fans entry changes out to HTTP stream subscribers and keeps a
// fixed backlog for reconnects. It works without NATS.
type changeHub struct {
	mu      sync.Mutex
	seq     uint64
	subs    map[*subscriber]struct{}
	backlog [changeBacklog]change
	head    int // next write slot
	size    int
}

func newChangeHub() *changeHub {
	return &changeHub{subs: make(map[*subscriber]struct{})}
}

// broadcast records c and hands it to every matching subscriber. Slow
// subscribers drop changes rather than block writers.
func (h *changeHub) broadcast(topic, path string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	c := &change{Seq: h.seq, Topic: topic, Path: path, Data: data}
	h.backlog[h.head] = *c
	h.head = (h.head + 1) % changeBacklog
	if h.size < changeBacklog {
		h.size++
	}

	for s := range h.subs {
		if s.filter.match(c) {
			select {
			case s.ch <- c:
			default:
			}
		}
	}
}

func (h *changeHub) subscribe(f changeFilter) *subscriber {
	s := &subscriber{filter: f, ch: make(chan *change, 64)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *changeHub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// subscribeSince registers a subscriber and returns the retained changes
// after the given sequence that match f. Both happen under one lock, so a
// concurrent broadcast lands either in the replay or on the channel, never
// in both.
func (h *changeHub) subscribeSince(f changeFilter, after uint64) (*subscriber, []change) {
	s := &subscriber{filter: f, ch: make(chan *change, 64)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}

	var replay []change
	for _, c := range h.sinceLocked(after) {
		if f.match(&c) {
			replay = append(replay, c)
		}
	}
	return s, replay
}

// since returns the retained changes with Seq > after, oldest first.
func (h *changeHub) since(after uint64) []change {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sinceLocked(after)
}

func (h *changeHub) sinceLocked(after uint64) []change {
	var out []change
	start := (h.head - h.size + changeBacklog) % changeBacklog
	for i := range h.size {
		c := h.backlog[(start+i)%changeBacklog]
		if c.Seq > after {
			out = append(out, c)
		}
	}
	return out
}

// matchTopicPattern matches a dot-separated topic. "*" matches one segment
// and a trailing ">" matches one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pat := strings.Split(pattern, ".")
	top := strings.Split(topic, ".")
	for i, p := range pat {
		if p == ">" {
			return i < len(top)
		}
		if i >= len(top) || (p != "*" && p != top[i]) {
			return false
		}
	}
	return len(pat) == len(top)
}

func parseChangeFilter(r *http.Request) changeFilter {
	f := changeFilter{prefix: r.URL.Query().Get("prefix")}
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			f.topics = append(f.topics, t)
		}
	}
	return f
}

// handleChangeStream handles GET /v1/events/stream.
func (s *ConfigServer) handleChangeStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var (
		sub    *subscriber
		replay []change
	)
	filter := parseChangeFilter(r)
	if last, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		sub, replay = s.hub.subscribeSince(filter, last)
	} else {
		sub = s.hub.subscribe(filter)
	}
	defer s.hub.unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for i := range replay {
		writeChange(w, &replay[i])
	}
	flusher.Flush()

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case c := <-sub.ch:
			writeChange(w, c)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeChange(w http.ResponseWriter, c *change) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", c.Seq, c.Topic, c.Data)
}

// streamChange feeds a published event to stream subscribers.
func (s *ConfigServer) streamChange(topic string, ev events.EntryChanged) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("failed to encode change for stream", "topic", topic, "error", err)
		return
	}
	s.hub.broadcast(topic, ev.Path, data)
}

// Package stream fans snapshot records out to live subscribers.
package stream

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/skobkin/perflog/internal/logsink"
)

// Record is one emitted snapshot as seen by subscribers.
type Record struct {
	Message   string         `json:"msg"`
	Timestamp time.Time      `json:"ts"`
	Fields    logsink.Fields `json:"fields"`
}

// Hub is a logsink.Sink that keeps the latest record and broadcasts each new
// one. Slow subscribers lose their oldest pending record.
type Hub struct {
	logger *slog.Logger
	now    func() time.Time

	mu          sync.RWMutex
	latest      Record
	hasLatest   bool
	subscribers map[*subscriber]struct{}
	closed      bool
}

// NewHub builds an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		logger:      logger.With("component", "stream_hub"),
		now:         time.Now,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Write implements logsink.Sink.
func (h *Hub) Write(_ context.Context, message string, fields logsink.Fields) error {
	record := Record{
		Message:   message,
		Timestamp: h.now().UTC(),
		Fields:    maps.Clone(fields),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.latest = record
	h.hasLatest = true
	targets := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.send(record)
	}
	return nil
}

// Latest returns the most recent record.
func (h *Hub) Latest() (Record, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.hasLatest
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Subscribe registers a listener. The latest record, if any, is delivered
// immediately. The returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe() (<-chan Record, func()) {
	sub := newSubscriber()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub.channel(), func() {}
	}
	h.subscribers[sub] = struct{}{}
	if h.hasLatest {
		sub.send(h.latest)
	}
	h.mu.Unlock()

	return sub.channel(), func() { h.remove(sub) }
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
	sub.close()
}

// Close detaches all subscribers. Safe for repeated use.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := h.subscribers
	h.subscribers = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
	h.logger.Debug("hub closed", "subscribers", len(subs))
	return nil
}

type subscriber struct {
	ch     chan Record
	mu     sync.Mutex
	closed bool
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan Record, 1)}
}

func (s *subscriber) channel() <-chan Record {
	return s.ch
}

func (s *subscriber) send(record Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- record:
		return
	default:
		// Drop oldest to make room for the new record.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- record:
		default:
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}

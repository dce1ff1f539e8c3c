// Package relaytest provides an in-memory relay for tests of code built on
// relay.Client.
package relaytest

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/mcdev12/livequestion/go/internal/envelope"
	"github.com/mcdev12/livequestion/go/internal/relay"
)

// Hub is a relay.Transport that keeps every topic's history in memory and
// delivers publishes to open streams in order. Relay ids are increasing
// decimal numbers shared by all topics.
type Hub struct {
	mu      sync.Mutex
	seq     int
	history map[string][]envelope.Envelope
	streams map[string][]*stream
}

var _ relay.Transport = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		history: make(map[string][]envelope.Envelope),
		streams: make(map[string][]*stream),
	}
}

// Publish implements relay.Transport.
func (h *Hub) Publish(_ context.Context, req envelope.PublishRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	env := envelope.Envelope{
		ID:      strconv.Itoa(h.seq),
		Time:    time.Now().Unix(),
		Event:   envelope.EventMessage,
		Topic:   req.Topic,
		Title:   req.Title,
		Message: req.Message,
		Tags:    req.Tags,
	}
	h.history[req.Topic] = append(h.history[req.Topic], env)
	for _, s := range h.streams[req.Topic] {
		s.push(env)
	}
	return nil
}

// Open implements relay.Transport. A numeric since replays the retained
// messages after it.
func (h *Hub) Open(ctx context.Context, topic, since string) (relay.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := &stream{ctx: ctx, wake: make(chan struct{}, 1), closed: make(chan struct{})}
	if after, err := strconv.Atoi(since); err == nil {
		for _, env := range h.history[topic] {
			if id, _ := strconv.Atoi(env.ID); id > after {
				s.push(env)
			}
		}
	}
	h.streams[topic] = append(h.streams[topic], s)
	return s, nil
}

// Latest implements relay.Transport.
func (h *Hub) Latest(_ context.Context, topic string) (envelope.Envelope, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.history[topic]
	if len(msgs) == 0 {
		return envelope.Envelope{}, false, nil
	}
	return msgs[len(msgs)-1], true, nil
}

// Published returns the history of topic.
func (h *Hub) Published(topic string) []envelope.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]envelope.Envelope(nil), h.history[topic]...)
}

// Drop ends every open stream of topic with io.EOF, as a relay restart
// would.
func (h *Hub) Drop(topic string) {
	h.mu.Lock()
	streams := h.streams[topic]
	delete(h.streams, topic)
	h.mu.Unlock()

	for _, s := range streams {
		s.Close()
	}
}

// stream buffers without bound so Publish never blocks on a slow reader.
type stream struct {
	ctx context.Context

	mu      sync.Mutex
	pending []envelope.Envelope
	wake    chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *stream) push(env envelope.Envelope) {
	s.mu.Lock()
	s.pending = append(s.pending, env)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *stream) Next() (envelope.Envelope, error) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			env := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()
			return env, nil
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.closed:
			return envelope.Envelope{}, io.EOF
		case <-s.ctx.Done():
			return envelope.Envelope{}, io.EOF
		}
	}
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

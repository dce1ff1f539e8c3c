package relay

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/mcdev12/livequestion/go/internal/envelope"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory relay. Each Open hands out the next queued
// stream; publishes fail with the queued errors in order.
type fakeTransport struct {
	mu          sync.Mutex
	published   []envelope.PublishRequest
	publishErrs []error
	openSince   []string
	openErrs    []error
	streams     []*fakeStream

	latest    envelope.Envelope
	latestOK  bool
	latestErr error
}

func (f *fakeTransport) Publish(_ context.Context, req envelope.PublishRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.publishErrs) > 0 {
		err := f.publishErrs[0]
		f.publishErrs = f.publishErrs[1:]
		if err != nil {
			return err
		}
	}
	f.published = append(f.published, req)
	return nil
}

func (f *fakeTransport) Open(ctx context.Context, _ string, since string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openSince = append(f.openSince, since)
	if len(f.openErrs) > 0 {
		err := f.openErrs[0]
		f.openErrs = f.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := newFakeStream()
	if len(f.streams) > 0 {
		s = f.streams[0]
		f.streams = f.streams[1:]
	}
	s.ctx = ctx
	return s, nil
}

func (f *fakeTransport) Latest(context.Context, string) (envelope.Envelope, bool, error) {
	return f.latest, f.latestOK, f.latestErr
}

func (f *fakeTransport) publishedRequests() []envelope.PublishRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]envelope.PublishRequest(nil), f.published...)
}

func (f *fakeTransport) sinceValues() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.openSince...)
}

type fakeFrame struct {
	env envelope.Envelope
	err error
}

type fakeStream struct {
	ctx       context.Context
	frames    chan fakeFrame
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan fakeFrame, 16), closed: make(chan struct{})}
}

func (s *fakeStream) Next() (envelope.Envelope, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return envelope.Envelope{}, io.EOF
		}
		return f.env, f.err
	case <-s.closed:
		return envelope.Envelope{}, io.EOF
	case <-s.ctx.Done():
		return envelope.Envelope{}, s.ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// messageFrame builds a relay frame carrying payload.
func messageFrame(t *testing.T, id string, payload any) envelope.Envelope {
	t.Helper()
	text, err := envelope.Encode(payload)
	require.NoError(t, err)
	return envelope.Envelope{ID: id, Event: envelope.EventMessage, Topic: "room_presenter_topic", Message: text}
}

func decodeMap(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

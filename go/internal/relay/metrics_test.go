package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mcdev12/livequestion/go/internal/envelope"
	"github.com/mcdev12/livequestion/go/internal/group"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics()
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func snapshot(t *testing.T, m *Metrics) CounterSnapshot {
	t.Helper()
	s, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	return s
}

func TestMetrics_Publishes(t *testing.T) {
	ft := &fakeTransport{publishErrs: []error{errors.New("relay down"), nil, errors.New("relay down")}}
	counters := newTestMetrics(t)
	client := NewClient(ft, group.Static("room"),
		WithMetrics(counters),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1}),
	)

	require.NoError(t, client.PublishSync(context.Background(), group.Client, map[string]int{"n": 1}))

	once := NewClient(ft, group.Static("room"), WithMetrics(counters), WithRetryPolicy(NoRetry()))
	require.Error(t, once.PublishSync(context.Background(), group.Client, map[string]int{"n": 2}))

	s := snapshot(t, counters)
	assert.Equal(t, uint64(1), s.Published)
	assert.Equal(t, uint64(1), s.PublishFailed)
	assert.Equal(t, uint64(1), s.Retries)
	assert.Positive(t, s.PublishLatency)
}

func TestMetrics_Frames(t *testing.T) {
	stream := newFakeStream()
	ft := &fakeTransport{streams: []*fakeStream{stream}}
	counters := newTestMetrics(t)
	client := NewClient(ft, group.Static("room"), WithMetrics(counters), WithReconnect(false))

	sub, err := client.Subscribe(context.Background(), group.Presenter, func(Message) {})
	require.NoError(t, err)
	defer sub.Close()

	stream.frames <- fakeFrame{err: &envelope.DecodeError{Stage: "frame", Err: errors.New("bad frame")}}
	stream.frames <- fakeFrame{env: envelope.Envelope{ID: "1", Event: envelope.EventMessage, Message: "%%%"}}
	stream.frames <- fakeFrame{env: messageFrame(t, "2", map[string]any{"questionID": "q"})}

	require.Eventually(t, func() bool { return snapshot(t, counters).Delivered == 1 }, 2*time.Second, 10*time.Millisecond)
	s := snapshot(t, counters)
	assert.Equal(t, uint64(2), s.Dropped)
	assert.False(t, s.LastFrame.IsZero())
}

func TestMetrics_Reconnects(t *testing.T) {
	first, second := newFakeStream(), newFakeStream()
	ft := &fakeTransport{streams: []*fakeStream{first, second}}
	counters := newTestMetrics(t)
	client := NewClient(ft, group.Static("room"), WithMetrics(counters))

	sub, err := client.Subscribe(context.Background(), group.Presenter, func(Message) {})
	require.NoError(t, err)
	defer sub.Close()

	close(first.frames)
	require.Eventually(t, func() bool { return snapshot(t, counters).Reconnects == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, snapshot(t, counters).ReconnectsFailed)
}

func TestMetrics_SumsAcrossTopics(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordPublish("room_presenter_topic", 3, true, 20*time.Millisecond)
	m.RecordPublish("room_client_topic", 1, true, 10*time.Millisecond)
	m.RecordPublish("room_client_topic", 0, false, 0)

	s := snapshot(t, m)
	assert.Equal(t, uint64(2), s.Published)
	assert.Equal(t, uint64(1), s.PublishFailed)
	assert.Equal(t, uint64(2), s.Retries)
	assert.InDelta(t, float64(15*time.Millisecond), float64(s.PublishLatency), float64(time.Millisecond))
	assert.True(t, s.LastFrame.IsZero())
}

func TestMetrics_SnapshotAfterShutdown(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	require.NoError(t, m.Shutdown(context.Background()))

	_, err = m.Snapshot(context.Background())
	assert.Error(t, err)
}

func TestNoOpMetricsCollector(t *testing.T) {
	var m MetricsCollector = NoOpMetricsCollector{}
	m.RecordPublish("t", 1, true, time.Second)
	m.RecordFrame("t", true)
	m.RecordReconnect("t", false)
}

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequestion/go/internal/envelope"
	"github.com/mcdev12/livequestion/go/internal/group"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Message is one decoded payload delivered on a channel.
type Message struct {
	ID      string // relay-assigned id
	Topic   string
	Channel group.Channel
	Time    time.Time
	Payload json.RawMessage
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return &envelope.DecodeError{Stage: "json", Err: err}
	}
	return nil
}

// Option configures a Client.
type Option func(*Client)

// WithClock sets the clock used for retry waits.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithRetryPolicy sets the policy for publishing and reconnecting.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithRateLimit throttles publishes to r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithReconnect controls whether a dropped stream is reopened.
func WithReconnect(enabled bool) Option {
	return func(c *Client) { c.reconnect = enabled }
}

// WithPublishErrorHandler is called with every *PublishError from a
// fire-and-forget Publish.
func WithPublishErrorHandler(fn func(error)) Option {
	return func(c *Client) { c.onPublishError = fn }
}

// Client exposes the presenter and client channels of one group on top
// of a relay Transport.
type Client struct {
	transport Transport
	topics    group.Topics

	clock          clockwork.Clock
	retry          RetryPolicy
	limiter        *rate.Limiter
	reconnect      bool
	onPublishError func(error)
	metrics        MetricsCollector

	inflight sync.WaitGroup
}

// NewClient creates a channel client for the group supplied by provider.
func NewClient(transport Transport, provider group.Provider, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		topics:    group.TopicsFor(provider),
		clock:     clockwork.NewRealClock(),
		retry:     NoRetry(),
		limiter:   rate.NewLimiter(rate.Inf, 1),
		reconnect: true,
		metrics:   NoOpMetricsCollector{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Topics returns the physical topic names used by the client.
func (c *Client) Topics() group.Topics {
	return c.topics
}

// Subscription is a live stream on one channel.
type Subscription struct {
	Topic string

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Close stops the subscription and waits for its handler to return.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Done is closed when the subscription has ended.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns why the subscription ended. It is nil after Close or before
// Done is closed.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Subscribe opens a stream on ch and returns once the relay confirmed it.
// A stream that cannot be opened yields a *TransportOpenError. handler is
// called sequentially, one message at a time, from the subscription
// goroutine.
func (c *Client) Subscribe(ctx context.Context, ch group.Channel, handler func(Message)) (*Subscription, error) {
	topic, err := c.topics.For(ch)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.transport.Open(ctx, topic, "")
	if err != nil {
		cancel()
		var openErr *TransportOpenError
		if !errors.As(err, &openErr) {
			err = &TransportOpenError{Topic: topic, Err: err}
		}
		log.Error().Err(err).Str("topic", topic).Msg("failed to initialize listener")
		return nil, err
	}
	log.Info().Str("topic", topic).Str("channel", string(ch)).Msg("listener initialized")

	sub := &Subscription{Topic: topic, cancel: cancel, done: make(chan struct{})}
	go c.consume(ctx, sub, ch, stream, handler)
	return sub, nil
}

// Listen subscribes to ch and decodes every payload into T. Payloads that
// do not fit T are logged and dropped.
func Listen[T any](ctx context.Context, c *Client, ch group.Channel, fn func(T)) (*Subscription, error) {
	return c.Subscribe(ctx, ch, func(m Message) {
		var v T
		if err := m.Decode(&v); err != nil {
			log.Warn().Err(err).Str("topic", m.Topic).Str("relay_id", m.ID).Msg("dropping message")
			return
		}
		fn(v)
	})
}

func (c *Client) consume(ctx context.Context, sub *Subscription, ch group.Channel, stream Stream, handler func(Message)) {
	defer close(sub.done)

	var lastID string
	for {
		err := c.drain(stream, ch, sub.Topic, handler, &lastID)
		stream.Close()

		if ctx.Err() != nil {
			log.Debug().Str("topic", sub.Topic).Msg("listener closed")
			return
		}
		if !c.reconnect {
			log.Warn().Err(err).Str("topic", sub.Topic).Msg("stream ended")
			sub.err = err
			return
		}

		log.Warn().Err(err).Str("topic", sub.Topic).Str("since", lastID).Msg("stream dropped, reconnecting")
		attempts, err := c.retry.run(ctx, c.clock, func(attempt int) error {
			s, err := c.transport.Open(ctx, sub.Topic, lastID)
			if err != nil {
				log.Warn().Err(err).Str("topic", sub.Topic).Int("attempt", attempt).Msg("reconnect failed")
				return err
			}
			stream = s
			return nil
		})
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("topic", sub.Topic).Int("attempts", attempts).Msg("giving up on stream")
				c.metrics.RecordReconnect(sub.Topic, false)
				sub.err = err
			}
			return
		}
		c.metrics.RecordReconnect(sub.Topic, true)
		log.Info().Str("topic", sub.Topic).Int("attempts", attempts).Msg("listener reconnected")
	}
}

// drain delivers frames until the stream fails. Frames that cannot be
// decoded are dropped.
func (c *Client) drain(stream Stream, ch group.Channel, topic string, handler func(Message), lastID *string) error {
	for {
		env, err := stream.Next()
		if err != nil {
			if errors.Is(err, envelope.ErrDecode) {
				log.Warn().Err(err).Str("topic", topic).Msg("dropping undecodable frame")
				c.metrics.RecordFrame(topic, false)
				continue
			}
			return err
		}
		if !env.IsMessage() {
			continue
		}
		if env.ID != "" {
			*lastID = env.ID
		}

		msg, err := decodeFrame(ch, env)
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Str("relay_id", env.ID).Msg("dropping message")
			c.metrics.RecordFrame(topic, false)
			continue
		}
		log.Debug().Str("topic", topic).Str("relay_id", env.ID).Msg("received message")
		handler(msg)
		c.metrics.RecordFrame(topic, true)
	}
}

// FetchLatestCached returns the newest retained message of ch. It returns
// false when the backlog is empty, unreadable or unparseable.
func (c *Client) FetchLatestCached(ctx context.Context, ch group.Channel) (Message, bool) {
	topic, err := c.topics.For(ch)
	if err != nil {
		log.Error().Err(err).Msg("unknown channel")
		return Message{}, false
	}

	env, ok, err := c.transport.Latest(ctx, topic)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("error retrieving cached messages")
		return Message{}, false
	}
	if !ok || !env.IsMessage() {
		log.Info().Str("topic", topic).Msg("no cached messages returned from relay")
		return Message{}, false
	}

	msg, err := decodeFrame(ch, env)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Str("relay_id", env.ID).Msg("cached message unparseable")
		return Message{}, false
	}
	return msg, true
}

// idField is the payload field back-filled from the relay id.
func idField(ch group.Channel) string {
	if ch == group.Presenter {
		return "questionID"
	}
	return "id"
}

func decodeFrame(ch group.Channel, env envelope.Envelope) (Message, error) {
	raw, err := envelope.Decode(env.Message)
	if err != nil {
		return Message{}, err
	}
	payload, err := backfillID(raw, idField(ch), env.ID)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:      env.ID,
		Topic:   env.Topic,
		Channel: ch,
		Time:    time.Unix(env.Time, 0),
		Payload: payload,
	}, nil
}

// backfillID sets field to id when the payload object lacks it. A field
// that is null or an empty string counts as missing. Non-object payloads
// are returned unchanged.
func backfillID(raw json.RawMessage, field, id string) (json.RawMessage, error) {
	if id == "" {
		return raw, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return raw, nil
	}
	if v, ok := obj[field]; ok {
		var s string
		isEmpty := string(v) == "null" || (json.Unmarshal(v, &s) == nil && s == "")
		if !isEmpty {
			return raw, nil
		}
	}

	quoted, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("marshal relay id: %w", err)
	}
	obj[field] = quoted
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal back-filled payload: %w", err)
	}
	return out, nil
}

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livequestion/go/internal/envelope"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds configuration for the JetStream relay backend.
type NATSConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string        // topics are published on "<prefix>.<topic>"
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration // relay retention window
	Replicas      int
}

// DefaultNATSConfig returns default JetStream relay configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		StreamName:    "LIVE_QUESTIONS",
		SubjectPrefix: "relay",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		MaxAge:        12 * time.Hour,
		Replicas:      1,
	}
}

// NATSTransport uses a JetStream stream as the relay. The stream sequence
// number plays the role of the relay-assigned message id.
type NATSTransport struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config NATSConfig
}

// NewNATSTransport connects to NATS and ensures the relay stream exists.
func NewNATSTransport(cfg NATSConfig) (*NATSTransport, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	t := &NATSTransport{nc: nc, js: js, config: cfg}
	if err := t.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return t, nil
}

func (t *NATSTransport) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        t.config.StreamName,
		Description: "Presenter and client channels of live questions",
		Subjects:    []string{t.config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      t.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    t.config.Replicas,
	}

	stream, err := t.js.Stream(ctx, t.config.StreamName)
	if err != nil {
		if _, err = t.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", t.config.StreamName).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if info.Config.MaxAge != sc.MaxAge || info.Config.Replicas != sc.Replicas {
		if _, err = t.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", t.config.StreamName).Msg("updated JetStream stream")
	}
	return nil
}

func (t *NATSTransport) subject(topic string) string {
	return t.config.SubjectPrefix + "." + topic
}

// Publish stores the request as an envelope on the topic's subject.
func (t *NATSTransport) Publish(ctx context.Context, pr envelope.PublishRequest) error {
	env := envelope.Envelope{
		Time:    time.Now().Unix(),
		Event:   envelope.EventMessage,
		Topic:   pr.Topic,
		Title:   pr.Title,
		Message: pr.Message,
		Tags:    pr.Tags,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msgID := uuid.NewString()
	ack, err := t.js.PublishMsg(ctx, &nats.Msg{
		Subject: t.subject(pr.Topic),
		Data:    data,
		Header: nats.Header{
			"Relay-Topic": []string{pr.Topic},
			"Relay-Title": []string{pr.Title},
		},
	},
		jetstream.WithMsgID(msgID),
		jetstream.WithExpectStream(t.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("topic", pr.Topic).
		Str("msg_id", msgID).
		Uint64("sequence", ack.Sequence).
		Msg("published to JetStream")
	return nil
}

// Open creates an ordered consumer on the topic's subject. Without since
// only new messages are delivered.
func (t *NATSTransport) Open(ctx context.Context, topic, since string) (Stream, error) {
	cfg := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{t.subject(topic)},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	}
	if since != "" {
		seq, err := strconv.ParseUint(since, 10, 64)
		if err != nil {
			return nil, &TransportOpenError{Topic: topic, Err: fmt.Errorf("parse resume sequence: %w", err)}
		}
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = seq + 1
	}

	consumer, err := t.js.OrderedConsumer(ctx, t.config.StreamName, cfg)
	if err != nil {
		return nil, &TransportOpenError{Topic: topic, Err: err}
	}
	iter, err := consumer.Messages()
	if err != nil {
		return nil, &TransportOpenError{Topic: topic, Err: err}
	}

	return &natsStream{
		iter: iter,
		stop: context.AfterFunc(ctx, iter.Stop),
	}, nil
}

// Latest returns the last message stored for the topic's subject.
func (t *NATSTransport) Latest(ctx context.Context, topic string) (envelope.Envelope, bool, error) {
	stream, err := t.js.Stream(ctx, t.config.StreamName)
	if err != nil {
		return envelope.Envelope{}, false, fmt.Errorf("get stream: %w", err)
	}

	raw, err := stream.GetLastMsgForSubject(ctx, t.subject(topic))
	if errors.Is(err, jetstream.ErrMsgNotFound) {
		return envelope.Envelope{}, false, nil
	}
	if err != nil {
		return envelope.Envelope{}, false, fmt.Errorf("get last message: %w", err)
	}

	var env envelope.Envelope
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		return envelope.Envelope{}, false, &envelope.DecodeError{Stage: "frame", Err: err}
	}
	env.ID = strconv.FormatUint(raw.Sequence, 10)
	env.Time = raw.Time.Unix()
	return env, true, nil
}

// Close closes the NATS connection.
func (t *NATSTransport) Close() error {
	if t.nc != nil {
		t.nc.Close()
	}
	return nil
}

type natsStream struct {
	iter jetstream.MessagesContext
	stop func() bool
}

func (s *natsStream) Next() (envelope.Envelope, error) {
	msg, err := s.iter.Next()
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgIteratorClosed) {
			return envelope.Envelope{}, io.EOF
		}
		return envelope.Envelope{}, err
	}

	var env envelope.Envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		return envelope.Envelope{}, &envelope.DecodeError{Stage: "frame", Err: err}
	}
	if meta, err := msg.Metadata(); err == nil {
		env.ID = strconv.FormatUint(meta.Sequence.Stream, 10)
		env.Time = meta.Timestamp.Unix()
	}
	return env, nil
}

func (s *natsStream) Close() error {
	s.stop()
	s.iter.Stop()
	return nil
}

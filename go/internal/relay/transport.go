package relay

import (
	"context"

	"github.com/mcdev12/livequestion/go/internal/envelope"
)

// Transport is a pub/sub relay backend addressed by topic name.
type Transport interface {
	// Publish delivers one message to the relay.
	Publish(ctx context.Context, req envelope.PublishRequest) error

	// Open starts a live stream for topic. It returns once the relay has
	// confirmed the stream. When since is a relay message id, delivery
	// resumes after that message. The stream ends when ctx is cancelled.
	Open(ctx context.Context, topic, since string) (Stream, error)

	// Latest returns the newest retained message of topic. The boolean is
	// false when the backlog is empty.
	Latest(ctx context.Context, topic string) (envelope.Envelope, bool, error)
}

// Stream yields relay frames in arrival order. Next returns io.EOF when
// the relay closes the stream. Errors matching envelope.ErrDecode concern
// a single frame and the stream remains usable.
type Stream interface {
	Next() (envelope.Envelope, error)
	Close() error
}

package config

import (
	"fmt"
	"io"

	"github.com/mcdev12/livequestion/go/internal/group"
	"github.com/mcdev12/livequestion/go/internal/relay"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// NewTransport builds the configured relay backend. The closer releases
// its connection.
func (c *Config) NewTransport() (relay.Transport, io.Closer, error) {
	switch c.Relay.Backend {
	case BackendNATS:
		t, err := relay.NewNATSTransport(c.NATS())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		return t, t, nil
	case BackendNtfy:
		t := relay.NewNtfyTransport(c.Relay.APIURL)
		if c.Relay.Token != "" {
			t.SetHeader("Authorization", "Bearer "+c.Relay.Token)
		}
		if c.Relay.Timeout > 0 {
			t.SetTimeout(c.Relay.Timeout)
		}
		return t, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown relay backend %q", ErrInvalid, c.Relay.Backend)
	}
}

// NewClient builds a relay client for the configured group.
func (c *Config) NewClient(t relay.Transport, extra ...relay.Option) *relay.Client {
	opts := []relay.Option{
		relay.WithRetryPolicy(c.RetryPolicy()),
		relay.WithReconnect(c.Subscribe.Reconnect),
	}
	if c.Publish.RatePerSecond > 0 {
		opts = append(opts, relay.WithRateLimit(rate.Limit(c.Publish.RatePerSecond), max(c.Publish.Burst, 1)))
	}
	return relay.NewClient(t, group.Static(c.Group), append(opts, extra...)...)
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

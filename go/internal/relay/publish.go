package relay

import (
	"context"
	"fmt"

	"github.com/mcdev12/livequestion/go/internal/envelope"
	"github.com/mcdev12/livequestion/go/internal/group"
	"github.com/rs/zerolog/log"
)

var publishTitles = map[group.Channel]string{
	group.Presenter: "Presenter event published",
	group.Client:    "Client event published",
}

func (c *Client) newPublishRequest(ch group.Channel, payload any) (envelope.PublishRequest, error) {
	topic, err := c.topics.For(ch)
	if err != nil {
		return envelope.PublishRequest{}, err
	}
	message, err := envelope.Encode(payload)
	if err != nil {
		return envelope.PublishRequest{}, fmt.Errorf("encode payload for %s: %w", topic, err)
	}
	return envelope.PublishRequest{
		Topic:   topic,
		Message: message,
		Title:   publishTitles[ch],
		Tags:    []string{},
		Attach:  "",
	}, nil
}

// Publish sends payload on ch without waiting for the outcome. Success and
// failure are logged; failures also reach the publish error handler.
func (c *Client) Publish(ctx context.Context, ch group.Channel, payload any) {
	req, err := c.newPublishRequest(ch, payload)
	if err != nil {
		log.Error().Err(err).Str("channel", string(ch)).Msg("failed to prepare publish")
		c.reportPublishError(err)
		return
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		if err := c.send(ctx, req); err != nil {
			c.reportPublishError(err)
		}
	}()
}

// PublishSync sends payload on ch and returns a *PublishError when every
// attempt failed.
func (c *Client) PublishSync(ctx context.Context, ch group.Channel, payload any) error {
	req, err := c.newPublishRequest(ch, payload)
	if err != nil {
		return err
	}
	return c.send(ctx, req)
}

// Close waits for in-flight publishes to finish.
func (c *Client) Close() {
	c.inflight.Wait()
}

func (c *Client) send(ctx context.Context, req envelope.PublishRequest) error {
	log.Debug().Str("topic", req.Topic).Msg("trying to publish")
	start := c.clock.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		perr := &PublishError{Topic: req.Topic, Attempts: 0, Err: err}
		log.Error().Err(perr).Str("topic", req.Topic).Msg("publish throttled out")
		c.metrics.RecordPublish(req.Topic, 0, false, c.clock.Since(start))
		return perr
	}

	attempts, err := c.retry.run(ctx, c.clock, func(attempt int) error {
		err := c.transport.Publish(ctx, req)
		if err != nil {
			log.Warn().Err(err).Str("topic", req.Topic).Int("attempt", attempt).Msg("publish attempt failed")
		}
		return permanentIfFinal(err)
	})
	if err != nil {
		perr := &PublishError{Topic: req.Topic, Attempts: attempts, Err: err}
		log.Error().Err(perr).Str("topic", req.Topic).Msg("failed to publish")
		c.metrics.RecordPublish(req.Topic, attempts, false, c.clock.Since(start))
		return perr
	}
	c.metrics.RecordPublish(req.Topic, attempts, true, c.clock.Since(start))

	log.Debug().Str("topic", req.Topic).Int("attempts", attempts).Msg("publish successful")
	return nil
}

func (c *Client) reportPublishError(err error) {
	if c.onPublishError != nil {
		c.onPublishError(err)
	}
}

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mcdev12/livequestion/go/internal/envelope"
	"github.com/rs/zerolog/log"
)

// NtfyTransport talks to an ntfy-compatible relay over HTTP: JSON POST to
// the base URL for publishing, server-sent events for live streams and
// newline-delimited JSON polling for the backlog.
type NtfyTransport struct {
	apiURL  string
	client  *http.Client
	stream  *http.Client
	headers map[string]string
}

// NewNtfyTransport creates a transport for the relay at apiURL.
func NewNtfyTransport(apiURL string) *NtfyTransport {
	return &NtfyTransport{
		apiURL: strings.TrimRight(apiURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		// Streams stay open for the lifetime of the subscription.
		stream:  &http.Client{},
		headers: make(map[string]string),
	}
}

// SetHeader adds a header to every request, e.g. an access token.
func (t *NtfyTransport) SetHeader(key, value string) {
	t.headers[key] = value
}

// SetTimeout changes the timeout of publish and backlog requests.
func (t *NtfyTransport) SetTimeout(timeout time.Duration) {
	t.client.Timeout = timeout
}

func (t *NtfyTransport) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

func (t *NtfyTransport) topicURL(topic, suffix string) string {
	return t.apiURL + "/" + url.PathEscape(topic) + "/" + suffix
}

// Publish POSTs the request body to the relay.
func (t *NtfyTransport) Publish(ctx context.Context, pr envelope.PublishRequest) error {
	body, err := json.Marshal(pr)
	if err != nil {
		return fmt.Errorf("marshal publish request: %w", err)
	}

	req, err := t.newRequest(ctx, http.MethodPost, t.apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(responseBody))}
	}

	var created envelope.Envelope
	if err := json.Unmarshal(responseBody, &created); err == nil && created.ID != "" {
		log.Debug().
			Str("topic", pr.Topic).
			Str("relay_id", created.ID).
			Msg("relay accepted message")
	}
	return nil
}

// Open starts an SSE stream for topic.
func (t *NtfyTransport) Open(ctx context.Context, topic, since string) (Stream, error) {
	endpoint := t.topicURL(topic, "sse")
	if since != "" {
		endpoint += "?since=" + url.QueryEscape(since)
	}

	req, err := t.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransportOpenError{Topic: topic, Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.stream.Do(req)
	if err != nil {
		return nil, &TransportOpenError{Topic: topic, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &TransportOpenError{
			Topic: topic,
			Err:   &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(responseBody))},
		}
	}

	return &sseStream{body: resp.Body, scanner: newSSEScanner(resp.Body)}, nil
}

// Latest polls the backlog and parses only its last line.
func (t *NtfyTransport) Latest(ctx context.Context, topic string) (envelope.Envelope, bool, error) {
	req, err := t.newRequest(ctx, http.MethodGet, t.topicURL(topic, "json")+"?poll=1&since=all", nil)
	if err != nil {
		return envelope.Envelope{}, false, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return envelope.Envelope{}, false, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope.Envelope{}, false, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return envelope.Envelope{}, false, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(responseBody))}
	}

	text := strings.TrimSpace(string(responseBody))
	if text == "" {
		return envelope.Envelope{}, false, nil
	}
	lines := strings.Split(text, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])

	var env envelope.Envelope
	if err := json.Unmarshal([]byte(last), &env); err != nil {
		return envelope.Envelope{}, false, &envelope.DecodeError{Stage: "frame", Err: err}
	}
	return env, true, nil
}

type sseStream struct {
	body    io.ReadCloser
	scanner *sseScanner
}

func (s *sseStream) Next() (envelope.Envelope, error) {
	if !s.scanner.Next() {
		if err := s.scanner.Err(); err != nil {
			return envelope.Envelope{}, err
		}
		return envelope.Envelope{}, io.EOF
	}

	ev := s.scanner.Event()
	var env envelope.Envelope
	if err := json.Unmarshal([]byte(ev.Data), &env); err != nil {
		return envelope.Envelope{}, &envelope.DecodeError{Stage: "frame", Err: err}
	}
	if env.Event == "" && ev.Type != "" {
		env.Event = ev.Type
	}
	if env.ID == "" {
		env.ID = ev.ID
	}
	return env, nil
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

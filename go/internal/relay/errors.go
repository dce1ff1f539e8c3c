package relay

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransportOpen is matched by every TransportOpenError.
	ErrTransportOpen = errors.New("relay stream failed to open")
	// ErrPublish is matched by every PublishError.
	ErrPublish = errors.New("relay publish failed")
)

// TransportOpenError reports that a subscription stream could not be
// opened (relay unreachable or refusing the topic).
type TransportOpenError struct {
	Topic string
	Err   error
}

func (e *TransportOpenError) Error() string {
	return fmt.Sprintf("open stream for topic %s: %v", e.Topic, e.Err)
}

func (e *TransportOpenError) Unwrap() []error {
	return []error{ErrTransportOpen, e.Err}
}

// PublishError reports a publish that failed after all attempts.
type PublishError struct {
	Topic    string
	Attempts int
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to topic %s failed after %d attempt(s): %v", e.Topic, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() []error {
	return []error{ErrPublish, e.Err}
}

// StatusError is a non-success HTTP response from the relay.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay returned status code: %d, response: %s", e.Code, e.Body)
}

// Permanent reports whether retrying the same request cannot succeed.
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests && e.Code != http.StatusRequestTimeout
}

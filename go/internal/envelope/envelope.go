package envelope

// Frame event kinds sent by the relay on its streaming endpoints. Only
// EventMessage frames carry a payload.
const (
	EventOpen      = "open"
	EventKeepalive = "keepalive"
	EventMessage   = "message"
)

// Envelope is the relay-level wrapper around an encoded payload.
// ID is assigned by the relay.
type Envelope struct {
	ID         string      `json:"id"`
	Time       int64       `json:"time,omitempty"`
	Event      string      `json:"event,omitempty"`
	Topic      string      `json:"topic"`
	Title      string      `json:"title,omitempty"`
	Message    string      `json:"message"`
	Tags       []string    `json:"tags,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Attachment describes a file attached to a relay message.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// IsMessage reports whether the frame carries an application payload.
// Frames without an event kind are treated as messages (backlog lines
// from older relays omit it).
func (e Envelope) IsMessage() bool {
	return e.Event == "" || e.Event == EventMessage
}

// PublishRequest is the JSON body POSTed to the relay's ingestion endpoint.
type PublishRequest struct {
	Topic   string   `json:"topic"`
	Message string   `json:"message"`
	Title   string   `json:"title"`
	Tags    []string `json:"tags"`
	Attach  string   `json:"attach"`
}

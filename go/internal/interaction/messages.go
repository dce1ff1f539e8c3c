// Package interaction defines the payloads exchanged on a group's channels
// and the bootstrap of a new question from URL query parameters.
package interaction

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names an interaction type.
type Kind string

const (
	KindBrainstorming Kind = "brainstorming"
	KindPoll          Kind = "poll"
	KindCounter       Kind = "counter"
)

var (
	// ErrMissingInteraction is returned for payloads without an interaction field.
	ErrMissingInteraction = errors.New("interaction field is required")
	// ErrUnknownInteraction is returned for an interaction kind nobody handles.
	ErrUnknownInteraction = errors.New("unknown interaction")
)

// ParseKind validates an interaction name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindBrainstorming, KindPoll, KindCounter:
		return k, nil
	case "":
		return "", ErrMissingInteraction
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownInteraction, s)
	}
}

// Header carries the fields every presenter message shares.
type Header struct {
	Interaction Kind   `json:"interaction"`
	Question    string `json:"question,omitempty"`
	QuestionID  string `json:"questionID,omitempty"`
	// Timer is the remaining seconds of the current stage. Nil means no
	// countdown; zero means the countdown was stopped.
	Timer      *int `json:"timer,omitempty"`
	ClientOnly bool `json:"client_only,omitempty"`
}

// Meta returns the shared header.
func (h Header) Meta() Header { return h }

// PresenterMessage is one of QuestionCreated, BrainstormingStatus or
// BrainstormingVoting.
type PresenterMessage interface {
	Meta() Header
	isPresenterMessage()
}

// QuestionCreated installs a new question. Fields of other interaction
// kinds (poll options, counter limits) are kept in Extra.
type QuestionCreated struct {
	Header
	Extra map[string]any
}

// BrainstormingStatus opens or closes the idea collection.
type BrainstormingStatus struct {
	Header
	OpenForIdeas bool `json:"openForIdeas"`
}

// BrainstormingVoting starts or stops voting on the collected ideas.
type BrainstormingVoting struct {
	Header
	Ideas            []string `json:"ideas,omitempty"`
	SingleChoice     bool     `json:"single_choice"`
	VotingInProgress bool     `json:"voting_in_progress"`
}

func (QuestionCreated) isPresenterMessage()     {}
func (BrainstormingStatus) isPresenterMessage() {}
func (BrainstormingVoting) isPresenterMessage() {}

var headerKeys = map[string]bool{
	"interaction": true,
	"question":    true,
	"questionID":  true,
	"timer":       true,
	"client_only": true,
}

func (q QuestionCreated) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(q.Extra)+len(headerKeys))
	for k, v := range q.Extra {
		if !headerKeys[k] {
			out[k] = v
		}
	}
	out["interaction"] = q.Interaction
	if q.Question != "" {
		out["question"] = q.Question
	}
	if q.QuestionID != "" {
		out["questionID"] = q.QuestionID
	}
	if q.Timer != nil {
		out["timer"] = *q.Timer
	}
	if q.ClientOnly {
		out["client_only"] = true
	}
	return json.Marshal(out)
}

func (q *QuestionCreated) UnmarshalJSON(data []byte) error {
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	extra := make(map[string]any)
	for k, v := range all {
		if !headerKeys[k] {
			extra[k] = v
		}
	}
	q.Header = h
	q.Extra = extra
	return nil
}

// ClientSubmission is an audience message: an idea while brainstorming or
// a vote vector while voting.
type ClientSubmission struct {
	ID          string `json:"id,omitempty"`
	QuestionID  string `json:"questionID"`
	IdeaText    string `json:"idea_text,omitempty"`
	StickyColor string `json:"stickyColor,omitempty"`
	IdeaVoting  []int  `json:"idea_voting,omitempty"`
}

// IsVote reports whether the submission carries a vote vector.
func (s ClientSubmission) IsVote() bool {
	return s.IdeaVoting != nil
}

// DecodePresenterMessage picks the concrete message shape from the
// interaction kind and the discriminating fields present in raw.
func DecodePresenterMessage(raw json.RawMessage) (PresenterMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode presenter message: %w", err)
	}

	var name string
	if v, ok := fields["interaction"]; ok {
		if err := json.Unmarshal(v, &name); err != nil {
			return nil, fmt.Errorf("decode interaction field: %w", err)
		}
	}
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}

	if kind == KindBrainstorming {
		if _, ok := fields["voting_in_progress"]; ok {
			var m BrainstormingVoting
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("decode voting message: %w", err)
			}
			return m, nil
		}
		if _, ok := fields["openForIdeas"]; ok {
			var m BrainstormingStatus
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("decode status message: %w", err)
			}
			return m, nil
		}
	}

	var m QuestionCreated
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode question: %w", err)
	}
	return m, nil
}

// IntPtr returns a pointer to n, for Timer fields.
func IntPtr(n int) *int {
	return &n
}

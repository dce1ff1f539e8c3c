package brainstorm

import (
	"context"
	"errors"
	"sync"

	"github.com/mcdev12/livequestion/go/internal/interaction"
	"github.com/mcdev12/livequestion/go/internal/relay"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sessions keeps one Controller per question and routes relay messages
// to the controller named by their questionID.
type Sessions struct {
	ctx       context.Context
	publisher Publisher
	opts      []ControllerOption

	mu          sync.RWMutex
	controllers map[string]*Controller
}

// NewSessions creates a registry. Every controller it opens gets opts.
func NewSessions(ctx context.Context, publisher Publisher, opts ...ControllerOption) *Sessions {
	return &Sessions{
		ctx:         ctx,
		publisher:   publisher,
		opts:        opts,
		controllers: make(map[string]*Controller),
	}
}

// Open returns the controller for q, creating and installing it first if
// needed.
func (s *Sessions) Open(q interaction.QuestionCreated, extra ...ControllerOption) (*Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.controllers[q.QuestionID]; ok {
		return c, nil
	}

	opts := append(append([]ControllerOption(nil), s.opts...), extra...)
	c := NewController(s.ctx, s.publisher, opts...)
	if err := c.Install(q); err != nil {
		c.Close()
		return nil, err
	}
	s.controllers[q.QuestionID] = c
	log.Debug().Str("question_id", q.QuestionID).Int("sessions", len(s.controllers)).Msg("session opened")
	return c, nil
}

// Get looks up the controller of a question.
func (s *Sessions) Get(questionID string) (*Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.controllers[questionID]
	return c, ok
}

// Remove closes and forgets the controller of a question.
func (s *Sessions) Remove(questionID string) {
	s.mu.Lock()
	c, ok := s.controllers[questionID]
	delete(s.controllers, questionID)
	s.mu.Unlock()

	if ok {
		c.Close()
	}
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.controllers)
}

// RouteClient delivers a client channel message. Messages for unknown
// questions or out of stage are logged and dropped.
func (s *Sessions) RouteClient(m relay.Message) {
	var sub interaction.ClientSubmission
	if err := m.Decode(&sub); err != nil {
		log.Warn().Err(err).Str("relay_id", m.ID).Msg("dropping client message")
		return
	}

	c, ok := s.Get(sub.QuestionID)
	if !ok {
		log.Debug().Str("question_id", sub.QuestionID).Str("relay_id", m.ID).Msg("client message for unknown question")
		return
	}
	if err := c.HandleClient(sub, m.ID); err != nil {
		logIgnored(err).
			Str("question_id", sub.QuestionID).
			Str("relay_id", m.ID).
			Msg("client message ignored")
	}
}

// RoutePresenter delivers a presenter channel message to its controller
// for countdown resynchronization.
func (s *Sessions) RoutePresenter(m relay.Message) {
	pm, err := interaction.DecodePresenterMessage(m.Payload)
	if err != nil {
		log.Warn().Err(err).Str("relay_id", m.ID).Msg("dropping presenter message")
		return
	}
	id := pm.Meta().QuestionID
	c, ok := s.Get(id)
	if !ok {
		return
	}
	if _, isCreation := pm.(interaction.QuestionCreated); isCreation {
		return
	}
	if err := c.HandlePresenterEcho(pm); err != nil {
		logIgnored(err).Str("question_id", id).Msg("presenter echo ignored")
	}
}

// Close stops every controller.
func (s *Sessions) Close() {
	s.mu.Lock()
	controllers := s.controllers
	s.controllers = make(map[string]*Controller)
	s.mu.Unlock()

	for _, c := range controllers {
		c.Close()
	}
}

// logIgnored logs expected policy rejections at debug and anything else
// at warn.
func logIgnored(err error) *zerolog.Event {
	switch {
	case errors.Is(err, ErrNotAccepting), errors.Is(err, ErrQuestionMismatch), errors.Is(err, ErrDuplicate):
		return log.Debug().Err(err)
	default:
		return log.Warn().Err(err)
	}
}

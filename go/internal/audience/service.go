// Package audience wires one audience member: the presenter channel feeds
// a brainstorm.Participant, which submits on the client channel.
package audience

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mcdev12/livequestion/go/internal/brainstorm"
	"github.com/mcdev12/livequestion/go/internal/group"
	"github.com/mcdev12/livequestion/go/internal/interaction"
	"github.com/mcdev12/livequestion/go/internal/relay"
	"github.com/rs/zerolog/log"
)

type Service struct {
	client      *relay.Client
	participant *brainstorm.Participant

	mu  sync.Mutex
	sub *relay.Subscription
}

func NewService(ctx context.Context, client *relay.Client, opts ...brainstorm.ParticipantOption) *Service {
	return &Service{
		client:      client,
		participant: brainstorm.NewParticipant(ctx, client, opts...),
	}
}

// Start subscribes to the presenter channel and, once the stream is open,
// recovers the newest retained presenter message. Broadcasts arriving in
// between are applied in whatever order they land; the participant
// ignores the stale one.
func (s *Service) Start(ctx context.Context) error {
	sub, err := s.client.Subscribe(ctx, group.Presenter, s.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to presenter channel: %w", err)
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	if s.participant.Recover(ctx, s.client) {
		log.Info().Msg("recovered current question from backlog")
	}
	return nil
}

func (s *Service) handle(m relay.Message) {
	pm, err := interaction.DecodePresenterMessage(m.Payload)
	if err != nil {
		log.Warn().Err(err).Str("relay_id", m.ID).Msg("dropping presenter message")
		return
	}
	if err := s.participant.Apply(pm); err != nil {
		ev := log.Warn()
		if errors.Is(err, brainstorm.ErrInvalidTransition) || errors.Is(err, brainstorm.ErrNotAccepting) {
			ev = log.Debug()
		}
		ev.Err(err).Str("relay_id", m.ID).Str("question_id", pm.Meta().QuestionID).Msg("presenter message ignored")
	}
}

// Participant returns the mirror driven by the service.
func (s *Service) Participant() *brainstorm.Participant {
	return s.participant
}

// SubmitIdea sends an idea for the current question.
func (s *Service) SubmitIdea(text, color string) error {
	return s.participant.SubmitIdea(text, color)
}

// SubmitVote sends a ballot aligned with the ideas being voted on.
func (s *Service) SubmitVote(vote []int) error {
	return s.participant.SubmitVote(vote)
}

func (s *Service) Close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	s.participant.Close()
}

// Package presenter wires the presenter side: both relay channels, the
// brainstorming sessions and the question currently on screen.
package presenter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/livequestion/go/internal/brainstorm"
	"github.com/mcdev12/livequestion/go/internal/group"
	"github.com/mcdev12/livequestion/go/internal/interaction"
	"github.com/mcdev12/livequestion/go/internal/relay"
	"github.com/rs/zerolog/log"
)

// ErrNoQuestion is returned by commands issued before a question was
// bootstrapped.
var ErrNoQuestion = errors.New("no question bootstrapped")

// Config holds the countdowns applied when a command gives none.
type Config struct {
	BrainstormingTimer int
	VotingTimer        int
	// OnRetire is called with the id of a question replaced by a new one.
	OnRetire func(questionID string)
}

// Service runs the presenter.
type Service struct {
	client   *relay.Client
	sessions *brainstorm.Sessions
	config   Config

	mu      sync.Mutex
	subs    []*relay.Subscription
	current *brainstorm.Controller
}

// NewService creates a presenter. Controllers inherit opts.
func NewService(ctx context.Context, client *relay.Client, config Config, opts ...brainstorm.ControllerOption) *Service {
	return &Service{
		client:   client,
		sessions: brainstorm.NewSessions(ctx, client, opts...),
		config:   config,
	}
}

// Start subscribes to both channels and returns once both streams are
// open, so nothing published afterwards is missed.
func (s *Service) Start(ctx context.Context) error {
	clientSub, err := s.client.Subscribe(ctx, group.Client, s.sessions.RouteClient)
	if err != nil {
		return fmt.Errorf("failed to subscribe to client channel: %w", err)
	}
	presenterSub, err := s.client.Subscribe(ctx, group.Presenter, s.sessions.RoutePresenter)
	if err != nil {
		clientSub.Close()
		return fmt.Errorf("failed to subscribe to presenter channel: %w", err)
	}

	s.mu.Lock()
	s.subs = append(s.subs, clientSub, presenterSub)
	s.mu.Unlock()

	log.Info().Str("topic", s.client.Topics().Presenter).Msg("presenter started")
	return nil
}

// Bootstrap installs q as the current question and broadcasts it. A
// question without a timer gets the configured brainstorming default, and
// one without an id gets a generated one.
func (s *Service) Bootstrap(ctx context.Context, q interaction.QuestionCreated) (*brainstorm.Controller, error) {
	// The relay would back-fill a different id on each channel.
	if q.QuestionID == "" {
		q.QuestionID = uuid.NewString()
	}
	if q.Timer == nil && s.config.BrainstormingTimer > 0 {
		q.Timer = interaction.IntPtr(s.config.BrainstormingTimer)
	}
	c, err := s.sessions.Open(q)
	if err != nil {
		return nil, fmt.Errorf("failed to open question %s: %w", q.QuestionID, err)
	}

	s.mu.Lock()
	previous := s.current
	s.current = c
	s.mu.Unlock()
	if previous != nil && previous != c {
		if v, err := previous.View(); err == nil {
			s.sessions.Remove(v.QuestionID)
			if s.config.OnRetire != nil {
				s.config.OnRetire(v.QuestionID)
			}
		}
	}

	s.client.Publish(ctx, group.Presenter, q)
	log.Info().
		Str("question_id", q.QuestionID).
		Str("interaction", string(q.Interaction)).
		Msg("question bootstrapped")
	return c, nil
}

// BootstrapQuery builds the question from URL query parameters.
func (s *Service) BootstrapQuery(ctx context.Context, query url.Values) (*brainstorm.Controller, error) {
	q, err := interaction.FromQuery(query)
	if err != nil {
		return nil, err
	}
	return s.Bootstrap(ctx, q)
}

// Current returns the question on screen.
func (s *Service) Current() (*brainstorm.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, ErrNoQuestion
	}
	return s.current, nil
}

// StartBrainstorming opens the current question for ideas. Zero seconds
// uses the question's timer.
func (s *Service) StartBrainstorming(seconds int) error {
	c, err := s.Current()
	if err != nil {
		return err
	}
	return c.StartBrainstorming(seconds)
}

func (s *Service) StopBrainstorming() error {
	c, err := s.Current()
	if err != nil {
		return err
	}
	return c.StopBrainstorming()
}

// StartVoting starts a voting round on the current question. Zero seconds
// uses the configured default.
func (s *Service) StartVoting(singleChoice bool, seconds int) error {
	c, err := s.Current()
	if err != nil {
		return err
	}
	if seconds == 0 {
		seconds = s.config.VotingTimer
	}
	return c.StartVoting(singleChoice, seconds)
}

func (s *Service) StopVoting() error {
	c, err := s.Current()
	if err != nil {
		return err
	}
	return c.StopVoting()
}

func (s *Service) HideIdea(index int) error {
	c, err := s.Current()
	if err != nil {
		return err
	}
	return c.HideIdea(index)
}

// View returns the state of the current question.
func (s *Service) View() (brainstorm.View, error) {
	c, err := s.Current()
	if err != nil {
		return brainstorm.View{}, err
	}
	return c.View()
}

// Close ends the subscriptions and every controller.
func (s *Service) Close() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.current = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	s.sessions.Close()
}

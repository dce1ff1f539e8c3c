package brainstorm

import (
	"context"
	"fmt"
	"slices"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequestion/go/internal/group"
	"github.com/mcdev12/livequestion/go/internal/interaction"
	"github.com/rs/zerolog/log"
)

// ParticipantView is the audience's picture of the question.
type ParticipantView struct {
	QuestionID   string
	Question     string
	Stage        Stage
	Ideas        []string
	SingleChoice bool
	Timer        *int
	Voted        bool
	Submitted    int // ideas sent in this question
}

type partMsg interface{ isPartMsg() }

type applyMsg struct {
	Message interaction.PresenterMessage
	Reply   chan error
}

type submitIdeaMsg struct {
	Text, Color string
	Reply       chan error
}

type submitVoteMsg struct {
	Vote  []int
	Reply chan error
}

type partViewMsg struct{ Reply chan ParticipantView }

func (applyMsg) isPartMsg()      {}
func (submitIdeaMsg) isPartMsg() {}
func (submitVoteMsg) isPartMsg() {}
func (partViewMsg) isPartMsg()   {}

// ParticipantOption configures a Participant.
type ParticipantOption func(*Participant)

// WithParticipantClock sets the clock of the visual countdown.
func WithParticipantClock(clock clockwork.Clock) ParticipantOption {
	return func(p *Participant) { p.cd.clock = clock }
}

// WithChangeHook is called on the participant's loop after every applied
// presenter message or countdown tick.
func WithChangeHook(fn func(ParticipantView)) ParticipantOption {
	return func(p *Participant) { p.onChange = fn }
}

// Participant mirrors a question for one audience member. It follows
// presenter broadcasts, never moving back to an earlier stage, and
// submits ideas and votes on the client channel.
type Participant struct {
	inbox     chan partMsg
	publisher Publisher
	onChange  func(ParticipantView)
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	// owned by loop
	header       *interaction.Header
	stage        Stage
	ideas        []string
	singleChoice bool
	timer        *int
	voted        bool
	submitted    int
	cd           countdown
}

// NewParticipant starts an audience mirror.
func NewParticipant(parent context.Context, publisher Publisher, opts ...ParticipantOption) *Participant {
	ctx, cancel := context.WithCancel(parent)
	p := &Participant{
		inbox:     make(chan partMsg, 64),
		publisher: publisher,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		stage:     StageInitial,
		cd:        countdown{clock: clockwork.NewRealClock()},
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.loop()
	return p
}

// Apply folds a presenter broadcast into the mirror. Out-of-stage or
// foreign frames return an error and change nothing.
func (p *Participant) Apply(m interaction.PresenterMessage) error {
	reply := make(chan error, 1)
	return p.call(applyMsg{Message: m, Reply: reply}, reply)
}

// Recover installs the newest retained presenter message, for members
// joining after the question was broadcast. It reports whether anything
// was applied.
func (p *Participant) Recover(ctx context.Context, backlog Backlog) bool {
	msg, ok := backlog.FetchLatestCached(ctx, group.Presenter)
	if !ok {
		return false
	}
	pm, err := interaction.DecodePresenterMessage(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Str("relay_id", msg.ID).Msg("cached presenter message unusable")
		return false
	}
	if err := p.Apply(pm); err != nil {
		log.Debug().Err(err).Str("relay_id", msg.ID).Msg("cached presenter message ignored")
		return false
	}
	return true
}

// SubmitIdea publishes an idea while brainstorming is open.
func (p *Participant) SubmitIdea(text, color string) error {
	reply := make(chan error, 1)
	return p.call(submitIdeaMsg{Text: text, Color: color, Reply: reply}, reply)
}

// SubmitVote publishes a ballot aligned with the distributed ideas. Each
// entry is 0 or 1; a single choice question takes exactly one vote.
func (p *Participant) SubmitVote(vote []int) error {
	reply := make(chan error, 1)
	return p.call(submitVoteMsg{Vote: slices.Clone(vote), Reply: reply}, reply)
}

// View returns the mirrored state.
func (p *Participant) View() (ParticipantView, error) {
	reply := make(chan ParticipantView, 1)
	select {
	case p.inbox <- partViewMsg{Reply: reply}:
	case <-p.done:
		return ParticipantView{}, ErrClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-p.done:
		return ParticipantView{}, ErrClosed
	}
}

// Close stops the mirror.
func (p *Participant) Close() {
	p.cancel()
	<-p.done
}

func (p *Participant) call(m partMsg, reply chan error) error {
	select {
	case p.inbox <- m:
	case <-p.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-p.done:
		return ErrClosed
	}
}

func (p *Participant) loop() {
	defer close(p.done)
	defer p.cd.stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.cd.C():
			p.onTick()
		case m := <-p.inbox:
			select {
			case <-p.cd.C():
				p.onTick()
			default:
			}
			p.handle(m)
		}
	}
}

func (p *Participant) handle(m partMsg) {
	switch msg := m.(type) {
	case applyMsg:
		err := p.apply(msg.Message)
		if err == nil {
			p.changed()
		}
		msg.Reply <- err
	case submitIdeaMsg:
		msg.Reply <- p.submitIdea(msg.Text, msg.Color)
	case submitVoteMsg:
		msg.Reply <- p.submitVote(msg.Vote)
	case partViewMsg:
		msg.Reply <- p.snapshot()
	}
}

func (p *Participant) apply(m interaction.PresenterMessage) error {
	h := m.Meta()
	if h.Interaction != interaction.KindBrainstorming {
		return fmt.Errorf("%w: %s", ErrNotAccepting, h.Interaction)
	}

	if q, ok := m.(interaction.QuestionCreated); ok {
		if p.header != nil && p.header.QuestionID == q.QuestionID {
			return nil
		}
		p.reset(q.Header)
		log.Info().Str("question_id", q.QuestionID).Msg("joined question")
		return nil
	}

	if p.header == nil {
		// Late join: the control message is the first thing seen.
		p.reset(h)
	} else if h.QuestionID != p.header.QuestionID {
		return ErrQuestionMismatch
	}

	var target Stage
	stopsVoting := false
	switch msg := m.(type) {
	case interaction.BrainstormingStatus:
		target = StageAfterBrainstorming
		if msg.OpenForIdeas {
			target = StageBrainstorming
		}
	case interaction.BrainstormingVoting:
		target = StageAfterBrainstorming
		stopsVoting = !msg.VotingInProgress
		if msg.VotingInProgress {
			target = StageVoting
		}
	}

	if vote, ok := m.(interaction.BrainstormingVoting); ok && target == StageVoting && p.stage == StageVoting &&
		(!slices.Equal(vote.Ideas, p.ideas) || vote.SingleChoice != p.singleChoice) {
		// A different ballot is a new round: the previous vote no longer counts.
		p.ideas = slices.Clone(vote.Ideas)
		p.singleChoice = vote.SingleChoice
		p.voted = false
		p.resyncTimer(h.Timer)
		return nil
	}
	if target == p.stage {
		// Same stage again: an echo or a timer resync.
		if target == StageBrainstorming || target == StageVoting {
			p.resyncTimer(h.Timer)
		}
		return nil
	}
	if target == StageAfterBrainstorming && p.stage != StageVoting {
		stopsVoting = false
	}
	if !canMirror(p.stage, target, stopsVoting) {
		return &TransitionError{From: p.stage, To: target}
	}

	p.stage = target
	switch msg := m.(type) {
	case interaction.BrainstormingStatus:
		if msg.OpenForIdeas {
			p.resyncTimer(h.Timer)
		} else {
			p.cd.stop()
			p.timer = nil
		}
	case interaction.BrainstormingVoting:
		if msg.VotingInProgress {
			p.ideas = slices.Clone(msg.Ideas)
			p.singleChoice = msg.SingleChoice
			p.voted = false
			p.resyncTimer(h.Timer)
		} else {
			p.cd.stop()
			zero := 0
			p.timer = &zero
		}
	}
	return nil
}

func (p *Participant) reset(h interaction.Header) {
	h.Timer = nil
	p.header = &h
	p.stage = StageInitial
	p.ideas = nil
	p.singleChoice = false
	p.timer = nil
	p.voted = false
	p.submitted = 0
	p.cd.stop()
}

func (p *Participant) resyncTimer(seconds *int) {
	if seconds == nil {
		return
	}
	if *seconds <= 0 {
		p.cd.stop()
		p.timer = nil
		return
	}
	p.cd.start(*seconds)
	t := *seconds
	p.timer = &t
}

func (p *Participant) onTick() {
	remaining, _ := p.cd.tick()
	if p.timer != nil {
		*p.timer = remaining
	}
	p.changed()
}

func (p *Participant) submitIdea(text, color string) error {
	if p.header == nil {
		return ErrNoQuestion
	}
	if p.stage != StageBrainstorming {
		return fmt.Errorf("%w: stage %s", ErrNotAccepting, p.stage)
	}
	p.publisher.Publish(context.WithoutCancel(p.ctx), group.Client, interaction.ClientSubmission{
		QuestionID:  p.header.QuestionID,
		IdeaText:    text,
		StickyColor: color,
	})
	p.submitted++
	return nil
}

func (p *Participant) submitVote(vote []int) error {
	if p.header == nil {
		return ErrNoQuestion
	}
	if p.stage != StageVoting {
		return fmt.Errorf("%w: stage %s", ErrNotAccepting, p.stage)
	}
	if p.voted {
		return ErrAlreadyVoted
	}
	if len(p.ideas) == 0 {
		return fmt.Errorf("%w: no ideas to vote on", ErrInvalidBallot)
	}
	if len(vote) != len(p.ideas) {
		return fmt.Errorf("%w: %d entries for %d ideas", ErrInvalidBallot, len(vote), len(p.ideas))
	}
	sum := 0
	for _, v := range vote {
		if v != 0 && v != 1 {
			return fmt.Errorf("%w: entry %d", ErrInvalidBallot, v)
		}
		sum += v
	}
	if p.singleChoice && sum != 1 {
		return fmt.Errorf("%w: single choice needs exactly one vote, got %d", ErrInvalidBallot, sum)
	}

	p.publisher.Publish(context.WithoutCancel(p.ctx), group.Client, interaction.ClientSubmission{
		QuestionID: p.header.QuestionID,
		IdeaVoting: vote,
	})
	p.voted = true
	return nil
}

func (p *Participant) snapshot() ParticipantView {
	v := ParticipantView{
		Stage:        p.stage,
		Ideas:        slices.Clone(p.ideas),
		SingleChoice: p.singleChoice,
		Voted:        p.voted,
		Submitted:    p.submitted,
	}
	if p.timer != nil {
		t := *p.timer
		v.Timer = &t
	}
	if p.header != nil {
		v.QuestionID = p.header.QuestionID
		v.Question = p.header.Question
	}
	return v
}

func (p *Participant) changed() {
	if p.onChange != nil {
		p.onChange(p.snapshot())
	}
}

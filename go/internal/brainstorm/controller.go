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

// View is a snapshot of a controller's state.
type View struct {
	QuestionID   string
	Question     string
	Stage        Stage
	Ideas        []Idea
	VotingIdeas  []string // ideas distributed when voting started
	Tally        []int    // aligned with VotingIdeas
	SingleChoice bool
	Timer        *int
	Version      int
}

type ctlMsg interface{ isCtlMsg() }

type installMsg struct {
	Question interaction.QuestionCreated
	Reply    chan error
}

type startBrainstormingMsg struct {
	Seconds int
	Reply   chan error
}

type stopBrainstormingMsg struct{ Reply chan error }

type startVotingMsg struct {
	SingleChoice bool
	Seconds      int
	Reply        chan error
}

type stopVotingMsg struct{ Reply chan error }

type hideIdeaMsg struct {
	Index int
	Reply chan error
}

type clientMsg struct {
	Submission interaction.ClientSubmission
	RelayID    string
	Reply      chan error
}

type echoMsg struct {
	Message interaction.PresenterMessage
	Reply   chan error
}

type viewMsg struct{ Reply chan View }

func (installMsg) isCtlMsg()            {}
func (startBrainstormingMsg) isCtlMsg() {}
func (stopBrainstormingMsg) isCtlMsg()  {}
func (startVotingMsg) isCtlMsg()        {}
func (stopVotingMsg) isCtlMsg()         {}
func (hideIdeaMsg) isCtlMsg()           {}
func (clientMsg) isCtlMsg()             {}
func (echoMsg) isCtlMsg()               {}
func (viewMsg) isCtlMsg()               {}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithControllerClock sets the clock driving the countdown.
func WithControllerClock(clock clockwork.Clock) ControllerOption {
	return func(c *Controller) { c.cd.clock = clock }
}

// WithObserver registers an observer for every update.
func WithObserver(o Observer) ControllerOption {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

// WithRedeliveryDedupe drops client submissions whose relay id was
// already applied.
func WithRedeliveryDedupe(enabled bool) ControllerOption {
	return func(c *Controller) { c.dedupe = enabled }
}

// Controller is the presenter's authoritative state machine for one
// brainstorming question.
type Controller struct {
	inbox     chan ctlMsg
	publisher Publisher
	observers []Observer
	dedupe    bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	// owned by loop
	question     *interaction.QuestionCreated
	stage        Stage
	ideas        []Idea
	survivors    []int // positions in ideas of VotingIdeas
	votingIdeas  []string
	tally        []int
	singleChoice bool
	timer        *int
	version      int
	seen         map[string]struct{}
	cd           countdown
}

// NewController starts a controller. It stops when parent is cancelled
// or Close is called.
func NewController(parent context.Context, publisher Publisher, opts ...ControllerOption) *Controller {
	ctx, cancel := context.WithCancel(parent)
	c := &Controller{
		inbox:     make(chan ctlMsg, 64),
		publisher: publisher,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		stage:     StageInitial,
		seen:      make(map[string]struct{}),
		cd:        countdown{clock: clockwork.NewRealClock()},
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.loop()
	return c
}

// Install sets the question. It may be replaced only before brainstorming
// started.
func (c *Controller) Install(q interaction.QuestionCreated) error {
	reply := make(chan error, 1)
	return c.call(installMsg{Question: q, Reply: reply}, reply)
}

// StartBrainstorming opens the idea collection. seconds > 0 starts a
// countdown; zero falls back to the question's timer, if any.
func (c *Controller) StartBrainstorming(seconds int) error {
	reply := make(chan error, 1)
	return c.call(startBrainstormingMsg{Seconds: seconds, Reply: reply}, reply)
}

// StopBrainstorming closes the idea collection.
func (c *Controller) StopBrainstorming() error {
	reply := make(chan error, 1)
	return c.call(stopBrainstormingMsg{Reply: reply}, reply)
}

// StartVoting distributes the surviving ideas and resets the tally.
// seconds > 0 starts a countdown.
func (c *Controller) StartVoting(singleChoice bool, seconds int) error {
	reply := make(chan error, 1)
	return c.call(startVotingMsg{SingleChoice: singleChoice, Seconds: seconds, Reply: reply}, reply)
}

// StopVoting ends the voting round.
func (c *Controller) StopVoting() error {
	reply := make(chan error, 1)
	return c.call(stopVotingMsg{Reply: reply}, reply)
}

// HideIdea blanks the idea at index in place.
func (c *Controller) HideIdea(index int) error {
	reply := make(chan error, 1)
	return c.call(hideIdeaMsg{Index: index, Reply: reply}, reply)
}

// HandleClient applies an audience submission. Submissions that do not
// fit the current stage or question return an error describing why they
// were ignored; the state is unchanged in that case.
func (c *Controller) HandleClient(s interaction.ClientSubmission, relayID string) error {
	reply := make(chan error, 1)
	return c.call(clientMsg{Submission: s, RelayID: relayID, Reply: reply}, reply)
}

// HandlePresenterEcho resynchronizes the countdown from a presenter
// control message observed on the presenter channel.
func (c *Controller) HandlePresenterEcho(m interaction.PresenterMessage) error {
	reply := make(chan error, 1)
	return c.call(echoMsg{Message: m, Reply: reply}, reply)
}

// View returns a snapshot of the current state.
func (c *Controller) View() (View, error) {
	reply := make(chan View, 1)
	select {
	case c.inbox <- viewMsg{Reply: reply}:
	case <-c.done:
		return View{}, ErrClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		return View{}, ErrClosed
	}
}

// Close stops the loop and cancels any countdown.
func (c *Controller) Close() {
	c.cancel()
	<-c.done
}

// Done is closed once the controller stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) call(m ctlMsg, reply chan error) error {
	select {
	case c.inbox <- m:
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	}
}

func (c *Controller) loop() {
	defer close(c.done)
	defer c.cd.stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.cd.C():
			c.onTick()
		case m := <-c.inbox:
			// A tick that is already due happened before this message.
			select {
			case <-c.cd.C():
				c.onTick()
			default:
			}
			c.handle(m)
		}
	}
}

func (c *Controller) handle(m ctlMsg) {
	switch msg := m.(type) {
	case installMsg:
		msg.Reply <- c.install(msg.Question)
	case startBrainstormingMsg:
		msg.Reply <- c.startBrainstorming(msg.Seconds)
	case stopBrainstormingMsg:
		msg.Reply <- c.stopBrainstorming()
	case startVotingMsg:
		msg.Reply <- c.startVoting(msg.SingleChoice, msg.Seconds)
	case stopVotingMsg:
		msg.Reply <- c.stopVoting()
	case hideIdeaMsg:
		msg.Reply <- c.hideIdea(msg.Index)
	case clientMsg:
		msg.Reply <- c.handleClient(msg.Submission, msg.RelayID)
	case echoMsg:
		msg.Reply <- c.handleEcho(msg.Message)
	case viewMsg:
		msg.Reply <- c.snapshot()
	}
}

func (c *Controller) install(q interaction.QuestionCreated) error {
	if q.Interaction != interaction.KindBrainstorming {
		return fmt.Errorf("%w: %q is not a brainstorming question", interaction.ErrUnknownInteraction, q.Interaction)
	}
	if c.stage != StageInitial {
		return &TransitionError{From: c.stage, To: StageInitial}
	}
	c.question = &q
	c.timer = nil
	log.Info().
		Str("question_id", q.QuestionID).
		Str("question", q.Question).
		Msg("question installed")
	c.notify(UpdateQuestion)
	return nil
}

func (c *Controller) transition(to Stage) error {
	if c.question == nil {
		return ErrNoQuestion
	}
	if !canTransition(c.stage, to) {
		return &TransitionError{From: c.stage, To: to}
	}
	log.Info().
		Str("question_id", c.question.QuestionID).
		Str("from", c.stage.String()).
		Str("to", to.String()).
		Msg("stage changed")
	c.stage = to
	return nil
}

func (c *Controller) header() interaction.Header {
	return interaction.Header{
		Interaction: interaction.KindBrainstorming,
		Question:    c.question.Question,
		QuestionID:  c.question.QuestionID,
		ClientOnly:  true,
	}
}

func (c *Controller) startBrainstorming(seconds int) error {
	if err := c.transition(StageBrainstorming); err != nil {
		return err
	}
	if seconds <= 0 && c.question.Timer != nil {
		seconds = *c.question.Timer
	}
	c.armTimer(seconds)

	h := c.header()
	h.Timer = c.timerCopy()
	c.broadcast(interaction.BrainstormingStatus{Header: h, OpenForIdeas: true})
	c.notify(UpdateStage)
	return nil
}

func (c *Controller) stopBrainstorming() error {
	if err := c.transition(StageAfterBrainstorming); err != nil {
		return err
	}
	c.cd.stop()
	c.timer = nil

	c.broadcast(interaction.BrainstormingStatus{Header: c.header(), OpenForIdeas: false})
	c.notify(UpdateStage)
	return nil
}

func (c *Controller) startVoting(singleChoice bool, seconds int) error {
	if err := c.transition(StageVoting); err != nil {
		return err
	}

	c.survivors = c.survivors[:0]
	c.votingIdeas = make([]string, 0, len(c.ideas))
	for i, idea := range c.ideas {
		if !idea.Hidden() {
			c.survivors = append(c.survivors, i)
			c.votingIdeas = append(c.votingIdeas, idea.Text)
		}
	}
	c.tally = make([]int, len(c.survivors))
	c.singleChoice = singleChoice
	c.armTimer(seconds)

	h := c.header()
	h.Timer = c.timerCopy()
	c.broadcast(interaction.BrainstormingVoting{
		Header:           h,
		Ideas:            slices.Clone(c.votingIdeas),
		SingleChoice:     singleChoice,
		VotingInProgress: true,
	})
	c.notify(UpdateStage)
	return nil
}

func (c *Controller) stopVoting() error {
	if err := c.transition(StageAfterBrainstorming); err != nil {
		return err
	}
	c.cd.stop()
	zero := 0
	c.timer = &zero

	c.broadcast(interaction.BrainstormingVoting{Header: c.header(), VotingInProgress: false})
	c.notify(UpdateStage)
	return nil
}

func (c *Controller) hideIdea(index int) error {
	if c.question == nil {
		return ErrNoQuestion
	}
	if index < 0 || index >= len(c.ideas) {
		return fmt.Errorf("%w: %d of %d", ErrIdeaIndex, index, len(c.ideas))
	}
	if c.stage == StageVoting {
		return fmt.Errorf("%w: ideas are frozen while voting", ErrNotAccepting)
	}
	c.ideas[index] = Idea{}
	c.notify(UpdateHidden)
	return nil
}

func (c *Controller) handleClient(s interaction.ClientSubmission, relayID string) error {
	if c.question == nil {
		return ErrNoQuestion
	}
	if s.QuestionID != c.question.QuestionID {
		return ErrQuestionMismatch
	}

	switch {
	case c.stage == StageBrainstorming && !s.IsVote():
		if err := c.markSeen(relayID); err != nil {
			return err
		}
		c.ideas = append(c.ideas, Idea{Text: s.IdeaText, Color: s.StickyColor})
		log.Debug().
			Str("question_id", s.QuestionID).
			Int("ideas", len(c.ideas)).
			Msg("idea received")
		c.notify(UpdateIdea)
		return nil

	case c.stage == StageVoting && s.IsVote():
		vote := s.IdeaVoting
		if c.singleChoice && ballotSum(vote) > 1 {
			return fmt.Errorf("%w: %d votes on a single choice question", ErrInvalidBallot, ballotSum(vote))
		}
		if err := c.markSeen(relayID); err != nil {
			return err
		}
		if len(vote) != len(c.tally) {
			log.Warn().
				Str("question_id", s.QuestionID).
				Int("ballot_len", len(vote)).
				Int("ideas", len(c.tally)).
				Msg("ballot length does not match ideas, counting the overlap")
		}
		for k := 0; k < len(vote) && k < len(c.tally); k++ {
			if vote[k] > 0 {
				c.tally[k] += vote[k]
			}
		}
		c.notify(UpdateVotes)
		return nil
	}

	return fmt.Errorf("%w: stage %s", ErrNotAccepting, c.stage)
}

// handleEcho restarts the countdown from a control message carrying a
// timer, when the message matches the current stage.
func (c *Controller) handleEcho(m interaction.PresenterMessage) error {
	h := m.Meta()
	if c.question == nil {
		return ErrNoQuestion
	}
	if h.QuestionID != c.question.QuestionID {
		return ErrQuestionMismatch
	}
	if !h.ClientOnly || h.Timer == nil {
		return nil
	}

	matches := false
	switch msg := m.(type) {
	case interaction.BrainstormingStatus:
		matches = msg.OpenForIdeas && c.stage == StageBrainstorming
	case interaction.BrainstormingVoting:
		matches = msg.VotingInProgress && c.stage == StageVoting
	}
	if !matches {
		return fmt.Errorf("%w: stage %s", ErrNotAccepting, c.stage)
	}

	c.armTimer(*h.Timer)
	log.Debug().
		Str("question_id", h.QuestionID).
		Int("timer", *h.Timer).
		Msg("countdown resynchronized")
	c.notify(UpdateTimer)
	return nil
}

func (c *Controller) onTick() {
	remaining, expired := c.cd.tick()
	if c.timer != nil {
		*c.timer = remaining
	}
	if !expired {
		c.notify(UpdateTimer)
		return
	}

	log.Info().
		Str("question_id", c.question.QuestionID).
		Str("stage", c.stage.String()).
		Msg("countdown expired")
	var err error
	switch c.stage {
	case StageBrainstorming:
		err = c.stopBrainstorming()
	case StageVoting:
		err = c.stopVoting()
	}
	if err != nil {
		log.Error().Err(err).Str("question_id", c.question.QuestionID).Msg("forced stop failed")
	}
}

func (c *Controller) armTimer(seconds int) {
	if seconds <= 0 {
		c.cd.stop()
		c.timer = nil
		return
	}
	c.cd.start(seconds)
	t := seconds
	c.timer = &t
}

func (c *Controller) timerCopy() *int {
	if c.timer == nil {
		return nil
	}
	t := *c.timer
	return &t
}

func (c *Controller) markSeen(relayID string) error {
	if !c.dedupe || relayID == "" {
		return nil
	}
	if _, ok := c.seen[relayID]; ok {
		return ErrDuplicate
	}
	c.seen[relayID] = struct{}{}
	return nil
}

func (c *Controller) broadcast(payload interaction.PresenterMessage) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(context.WithoutCancel(c.ctx), group.Presenter, payload)
}

func (c *Controller) snapshot() View {
	v := View{
		Stage:        c.stage,
		Ideas:        slices.Clone(c.ideas),
		VotingIdeas:  slices.Clone(c.votingIdeas),
		Tally:        slices.Clone(c.tally),
		SingleChoice: c.singleChoice,
		Timer:        c.timerCopy(),
		Version:      c.version,
	}
	if c.question != nil {
		v.QuestionID = c.question.QuestionID
		v.Question = c.question.Question
	}
	return v
}

func (c *Controller) notify(kind UpdateKind) {
	c.version++
	if len(c.observers) == 0 {
		return
	}
	u := Update{Kind: kind, View: c.snapshot()}
	for _, o := range c.observers {
		o.Observe(u)
	}
}

func ballotSum(vote []int) int {
	sum := 0
	for _, v := range vote {
		if v > 0 {
			sum += v
		}
	}
	return sum
}

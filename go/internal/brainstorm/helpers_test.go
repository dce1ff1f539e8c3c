package brainstorm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequestion/go/internal/group"
	"github.com/mcdev12/livequestion/go/internal/interaction"
	"github.com/stretchr/testify/require"
)

type published struct {
	Channel group.Channel
	Payload any
}

// recorder is a Publisher that keeps everything it was given.
type recorder struct {
	mu   sync.Mutex
	sent []published
}

func (r *recorder) Publish(_ context.Context, ch group.Channel, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, published{Channel: ch, Payload: payload})
}

func (r *recorder) all() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.sent...)
}

func (r *recorder) last(t *testing.T) published {
	t.Helper()
	all := r.all()
	require.NotEmpty(t, all, "nothing published")
	return all[len(all)-1]
}

func brainstormQuestion(id string) interaction.QuestionCreated {
	return interaction.QuestionCreated{
		Header: interaction.Header{Interaction: interaction.KindBrainstorming, Question: "Pets?", QuestionID: id},
	}
}

func newTestController(t *testing.T, opts ...ControllerOption) (*Controller, *recorder, *clockwork.FakeClock) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	rec := &recorder{}
	c := NewController(context.Background(), rec, append([]ControllerOption{WithControllerClock(fc)}, opts...)...)
	t.Cleanup(c.Close)
	return c, rec, fc
}

// tick advances the clock one second at a time and lets the loop observe
// each tick before the next one.
func tick(t *testing.T, fc *clockwork.FakeClock, viewer func() error, seconds int) {
	t.Helper()
	for i := 0; i < seconds; i++ {
		fc.Advance(time.Second)
		require.NoError(t, viewer())
	}
}

func controllerViewer(c *Controller) func() error {
	return func() error {
		_, err := c.View()
		return err
	}
}

func mustView(t *testing.T, c *Controller) View {
	t.Helper()
	v, err := c.View()
	require.NoError(t, err)
	return v
}

func idea(qid, text, color string) interaction.ClientSubmission {
	return interaction.ClientSubmission{QuestionID: qid, IdeaText: text, StickyColor: color}
}

func vote(qid string, v ...int) interaction.ClientSubmission {
	return interaction.ClientSubmission{QuestionID: qid, IdeaVoting: v}
}

package audience

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequestion/go/internal/brainstorm"
	"github.com/mcdev12/livequestion/go/internal/group"
	"github.com/mcdev12/livequestion/go/internal/interaction"
	"github.com/mcdev12/livequestion/go/internal/presenter"
	"github.com/mcdev12/livequestion/go/internal/relay"
	"github.com/mcdev12/livequestion/go/internal/relay/relaytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor      = 5 * time.Second
	pollInterval = 5 * time.Millisecond
	topic        = "g_presenter_topic"
)

func newAudience(t *testing.T, hub *relaytest.Hub) *Service {
	t.Helper()
	client := relay.NewClient(hub, group.Static("g"))
	svc := NewService(context.Background(), client, brainstorm.WithParticipantClock(clockwork.NewFakeClock()))
	t.Cleanup(func() {
		svc.Close()
		client.Close()
	})
	return svc
}

func newPresenter(t *testing.T, hub *relaytest.Hub) *presenter.Service {
	t.Helper()
	client := relay.NewClient(hub, group.Static("g"))
	svc := presenter.NewService(context.Background(), client, presenter.Config{}, brainstorm.WithControllerClock(clockwork.NewFakeClock()))
	t.Cleanup(func() {
		svc.Close()
		client.Close()
	})
	require.NoError(t, svc.Start(context.Background()))
	return svc
}

func waitPublished(t *testing.T, hub *relaytest.Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(hub.Published(topic)) == n }, waitFor, pollInterval)
}

func participantView(svc *Service) brainstorm.ParticipantView {
	v, _ := svc.Participant().View()
	return v
}

func TestService_LateJoinerTakesPart(t *testing.T) {
	ctx := context.Background()
	hub := relaytest.NewHub()
	pres := newPresenter(t, hub)

	_, err := pres.Bootstrap(ctx, interaction.QuestionCreated{
		Header: interaction.Header{Interaction: interaction.KindBrainstorming, Question: "Pets?", QuestionID: "Q1"},
	})
	require.NoError(t, err)
	waitPublished(t, hub, 1)
	require.NoError(t, pres.StartBrainstorming(0))
	waitPublished(t, hub, 2)

	// Joins after brainstorming opened and recovers it from the backlog.
	aud := newAudience(t, hub)
	require.NoError(t, aud.Start(ctx))
	v := participantView(aud)
	assert.Equal(t, "Q1", v.QuestionID)
	assert.Equal(t, brainstorm.StageBrainstorming, v.Stage)

	ideaCount := func(n int) func() bool {
		return func() bool {
			v, err := pres.View()
			return err == nil && len(v.Ideas) == n
		}
	}
	// Submissions are fire-and-forget; wait for each to keep their order.
	require.NoError(t, aud.SubmitIdea("cats", "red"))
	require.Eventually(t, ideaCount(1), waitFor, pollInterval)
	require.NoError(t, aud.SubmitIdea("dogs", "blue"))
	require.Eventually(t, ideaCount(2), waitFor, pollInterval)

	require.NoError(t, pres.StopBrainstorming())
	waitPublished(t, hub, 3)
	require.NoError(t, pres.HideIdea(1))
	require.NoError(t, pres.StartVoting(true, 0))
	require.Eventually(t, func() bool {
		return participantView(aud).Stage == brainstorm.StageVoting
	}, waitFor, pollInterval)

	v = participantView(aud)
	assert.Equal(t, []string{"cats"}, v.Ideas)
	assert.True(t, v.SingleChoice)
	assert.ErrorIs(t, aud.SubmitIdea("late", "red"), brainstorm.ErrNotAccepting)

	require.NoError(t, aud.SubmitVote([]int{1}))
	require.Eventually(t, func() bool {
		v, err := pres.View()
		return err == nil && assert.ObjectsAreEqual([]int{1}, v.Tally)
	}, waitFor, pollInterval)
	assert.True(t, participantView(aud).Voted)
}

func TestService_EmptyBacklog(t *testing.T) {
	aud := newAudience(t, relaytest.NewHub())
	require.NoError(t, aud.Start(context.Background()))

	assert.Empty(t, participantView(aud).QuestionID)
	assert.ErrorIs(t, aud.SubmitIdea("cats", "red"), brainstorm.ErrNoQuestion)
	assert.ErrorIs(t, aud.SubmitVote([]int{1}), brainstorm.ErrNoQuestion)
}

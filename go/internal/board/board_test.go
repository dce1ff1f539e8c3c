package board

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequestion/go/internal/brainstorm"
	"github.com/mcdev12/livequestion/go/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestBoard(t *testing.T) (*ConnectionManager, *Bridge, *httptest.Server) {
	t.Helper()
	cm := NewConnectionManager(DefaultConnectionConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)

	mux := http.NewServeMux()
	NewHandler(cm).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return cm, NewBridge(cm, clockwork.NewFakeClockAt(testTime)), srv
}

func dial(t *testing.T, srv *httptest.Server, questionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/board?question_id=" + questionID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) (Frame, State) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	var state State
	require.NoError(t, json.Unmarshal(frame.Data, &state))
	return frame, state
}

func TestBoard_ReplaysLatestFrameOnConnect(t *testing.T) {
	_, bridge, srv := newTestBoard(t)

	bridge.Observe(brainstorm.Update{Kind: brainstorm.UpdateIdea, View: brainstorm.View{
		QuestionID: "Q1",
		Question:   "Pets?",
		Stage:      brainstorm.StageBrainstorming,
		Ideas:      []brainstorm.Idea{{Text: "cats", Color: "red"}},
		Version:    3,
	}})

	frame, state := readFrame(t, dial(t, srv, "Q1"))
	assert.Equal(t, FrameIdeaAdded, frame.Type)
	assert.Equal(t, "Q1", frame.QuestionID)
	assert.Equal(t, 3, frame.Version)
	assert.True(t, frame.Timestamp.Equal(testTime))
	assert.Equal(t, "Pets?", state.Question)
	assert.Equal(t, []brainstorm.Idea{{Text: "cats", Color: "red"}}, state.Ideas)
}

func TestConnectionManager_ForgetDropsReplayFrame(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	NewBridge(cm, clockwork.NewFakeClockAt(testTime)).Observe(brainstorm.Update{
		Kind: brainstorm.UpdateQuestion,
		View: brainstorm.View{QuestionID: "Q1", Stage: brainstorm.StageInitial},
	})

	cm.mu.RLock()
	_, ok := cm.latest["Q1"]
	cm.mu.RUnlock()
	require.True(t, ok)

	cm.Forget("Q1")
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	assert.Empty(t, cm.latest)
}

func TestBoard_LiveFramesPerQuestion(t *testing.T) {
	cm, bridge, srv := newTestBoard(t)

	q2 := dial(t, srv, "Q2")
	require.Eventually(t, func() bool { return cm.Stats().TotalConnections == 1 }, 5*time.Second, 10*time.Millisecond)

	timer := 4
	bridge.Observe(brainstorm.Update{Kind: brainstorm.UpdateTimer, View: brainstorm.View{QuestionID: "other", Version: 1}})
	bridge.Observe(brainstorm.Update{Kind: brainstorm.UpdateVotes, View: brainstorm.View{
		QuestionID:  "Q2",
		Stage:       brainstorm.StageVoting,
		VotingIdeas: []string{"cats", "dogs"},
		Tally:       []int{1, 0},
		Timer:       &timer,
		Version:     7,
	}})

	frame, state := readFrame(t, q2)
	assert.Equal(t, FrameVotesUpdated, frame.Type)
	assert.Equal(t, "Q2", frame.QuestionID)
	assert.Equal(t, brainstorm.StageVoting, state.Stage)
	assert.Equal(t, []int{1, 0}, state.Tally)
	assert.Equal(t, []brainstorm.Idea{}, state.Ideas)
	require.NotNil(t, state.Timer)
	assert.Equal(t, 4, *state.Timer)

	stats := cm.Stats()
	assert.Equal(t, 1, stats.ActiveQuestions)
	assert.Equal(t, map[string]int{"Q2": 1}, stats.QuestionConnections)
}

func TestBoard_HTTPRoutes(t *testing.T) {
	_, _, srv := newTestBoard(t)

	resp, err := http.Get(srv.URL + "/ws/board")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/board/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 0, stats.TotalConnections)
}

func TestHandleStats_RelayCounters(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	counters, err := relay.NewMetrics()
	require.NoError(t, err)
	defer counters.Shutdown(context.Background())
	counters.RecordPublish("room_presenter_topic", 3, true, time.Second)
	h := NewHandler(cm, WithRelayStats(counters.Snapshot))

	rec := httptest.NewRecorder()
	h.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/board/stats", nil))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body struct {
		TotalConnections int                   `json:"total_connections"`
		Relay            *relay.CounterSnapshot `json:"relay"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Relay)
	assert.Equal(t, uint64(1), body.Relay.Published)
	assert.Equal(t, uint64(2), body.Relay.Retries)
	assert.Equal(t, time.Second, body.Relay.PublishLatency)
}

func TestHandleStats_RelayStatsError(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	counters, err := relay.NewMetrics()
	require.NoError(t, err)
	require.NoError(t, counters.Shutdown(context.Background()))
	h := NewHandler(cm, WithRelayStats(counters.Snapshot))

	rec := httptest.NewRecorder()
	h.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/board/stats", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBoard_FrameTypes(t *testing.T) {
	for kind, want := range map[brainstorm.UpdateKind]FrameType{
		brainstorm.UpdateQuestion: FrameQuestionInstalled,
		brainstorm.UpdateStage:    FrameStageChanged,
		brainstorm.UpdateHidden:   FrameIdeaHidden,
		brainstorm.UpdateTimer:    FrameTimerTick,
	} {
		frame, err := newFrame(brainstorm.Update{Kind: kind, View: brainstorm.View{QuestionID: "Q"}}, testTime)
		require.NoError(t, err)
		assert.Equal(t, want, frame.Type, kind)
		assert.JSONEq(t, `{"question":"","stage":"","ideas":[],"single_choice":false,"timer":null}`, string(frame.Data))
	}
}

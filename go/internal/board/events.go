package board

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/livequestion/go/internal/brainstorm"
)

// Frame is the message pushed to board sockets.
type Frame struct {
	Type       FrameType       `json:"type"`
	QuestionID string          `json:"question_id"`
	Version    int             `json:"version"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data"`
}

// FrameType names what changed on the board.
type FrameType string

const (
	FrameQuestionInstalled FrameType = "QuestionInstalled"
	FrameStageChanged      FrameType = "StageChanged"
	FrameIdeaAdded         FrameType = "IdeaAdded"
	FrameIdeaHidden        FrameType = "IdeaHidden"
	FrameVotesUpdated      FrameType = "VotesUpdated"
	FrameTimerTick         FrameType = "TimerTick"
)

var frameTypes = map[brainstorm.UpdateKind]FrameType{
	brainstorm.UpdateQuestion: FrameQuestionInstalled,
	brainstorm.UpdateStage:    FrameStageChanged,
	brainstorm.UpdateIdea:     FrameIdeaAdded,
	brainstorm.UpdateHidden:   FrameIdeaHidden,
	brainstorm.UpdateVotes:    FrameVotesUpdated,
	brainstorm.UpdateTimer:    FrameTimerTick,
}

// State is the data of every frame: the whole board, so a canvas can
// redraw from any single frame it receives.
type State struct {
	Question     string            `json:"question"`
	Stage        brainstorm.Stage  `json:"stage"`
	Ideas        []brainstorm.Idea `json:"ideas"`
	VotingIdeas  []string          `json:"voting_ideas,omitempty"`
	Tally        []int             `json:"tally,omitempty"`
	SingleChoice bool              `json:"single_choice"`
	Timer        *int              `json:"timer"`
}

func newFrame(u brainstorm.Update, now time.Time) (Frame, error) {
	v := u.View
	ideas := v.Ideas
	if ideas == nil {
		ideas = []brainstorm.Idea{}
	}
	data, err := json.Marshal(State{
		Question:     v.Question,
		Stage:        v.Stage,
		Ideas:        ideas,
		VotingIdeas:  v.VotingIdeas,
		Tally:        v.Tally,
		SingleChoice: v.SingleChoice,
		Timer:        v.Timer,
	})
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:       frameTypes[u.Kind],
		QuestionID: v.QuestionID,
		Version:    v.Version,
		Timestamp:  now.UTC(),
		Data:       data,
	}, nil
}

// Package brainstorm runs the brainstorming interaction: the presenter's
// authoritative Controller, the audience's Participant mirror and the
// Sessions registry that routes relay messages to them.
//
// Each Controller and Participant is a single-writer actor. All state is
// owned by its loop goroutine; public methods send a message to the loop
// and wait for the reply, so mutations are serialized no matter how many
// subscriptions deliver into it.
package brainstorm

// Stage is the phase of a brainstorming question.
type Stage string

const (
	StageInitial            Stage = "initial"
	StageBrainstorming      Stage = "brainstorming"
	StageAfterBrainstorming Stage = "afterBrainstorming"
	StageVoting             Stage = "voting"
)

func (s Stage) String() string { return string(s) }

func (s Stage) rank() int {
	switch s {
	case StageBrainstorming:
		return 1
	case StageAfterBrainstorming:
		return 2
	case StageVoting:
		return 3
	default:
		return 0
	}
}

// canTransition lists the presenter's legal transitions. Voting may be
// restarted after it was stopped; brainstorming may not.
func canTransition(from, to Stage) bool {
	switch {
	case from == StageInitial && to == StageBrainstorming:
		return true
	case from == StageBrainstorming && to == StageAfterBrainstorming:
		return true
	case from == StageAfterBrainstorming && to == StageVoting:
		return true
	case from == StageVoting && to == StageAfterBrainstorming:
		return true
	}
	return false
}

// canMirror reports whether an audience mirror at from may move to to.
// Mirrors may skip stages they missed, and a frame for an earlier stage
// is stale. The one way back is the explicit stop of voting.
func canMirror(from, to Stage, stopsVoting bool) bool {
	if stopsVoting {
		return from == StageVoting && to == StageAfterBrainstorming
	}
	return to.rank() > from.rank()
}

// Idea is one sticky note. A hidden idea keeps its position with empty
// text and color.
type Idea struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// Hidden reports whether the idea was hidden by the presenter or
// submitted empty.
func (i Idea) Hidden() bool {
	return i.Text == ""
}

// Package board pushes brainstorming state to canvas clients over
// websockets. A Bridge observes a controller and broadcasts one frame per
// update to the sockets opened for that question.
package board

import (
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequestion/go/internal/brainstorm"
	"github.com/rs/zerolog/log"
)

// Bridge turns controller updates into board frames.
type Bridge struct {
	manager *ConnectionManager
	clock   clockwork.Clock
}

var _ brainstorm.Observer = (*Bridge)(nil)

// NewBridge returns an observer broadcasting through manager.
func NewBridge(manager *ConnectionManager, clock clockwork.Clock) *Bridge {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Bridge{manager: manager, clock: clock}
}

// Observe implements brainstorm.Observer.
func (b *Bridge) Observe(u brainstorm.Update) {
	frame, err := newFrame(u, b.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("question_id", u.View.QuestionID).Msg("failed to build board frame")
		return
	}
	b.manager.Broadcast(frame)
}

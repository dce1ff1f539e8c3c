package brainstorm

import (
	"context"

	"github.com/mcdev12/livequestion/go/internal/group"
	"github.com/mcdev12/livequestion/go/internal/relay"
)

// Publisher sends a payload on one of the group's channels without
// waiting for the outcome. *relay.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, ch group.Channel, payload any)
}

// Backlog returns the newest retained message of a channel.
// *relay.Client implements it.
type Backlog interface {
	FetchLatestCached(ctx context.Context, ch group.Channel) (relay.Message, bool)
}

// UpdateKind says what changed in an Update.
type UpdateKind string

const (
	UpdateQuestion UpdateKind = "question"
	UpdateStage    UpdateKind = "stage"
	UpdateIdea     UpdateKind = "idea"
	UpdateHidden   UpdateKind = "hidden"
	UpdateVotes    UpdateKind = "votes"
	UpdateTimer    UpdateKind = "timer"
)

// Update is emitted by a Controller after every change.
type Update struct {
	Kind UpdateKind
	View View
}

// Observer receives controller updates on the controller's loop.
// Implementations must not block.
type Observer interface {
	Observe(Update)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Update)

func (f ObserverFunc) Observe(u Update) { f(u) }

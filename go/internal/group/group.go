// Package group maps a session/classroom group to the physical relay
// topics of its two logical channels.
package group

import (
	"fmt"
	"strings"
)

// Channel is one of the two logical channels of a group.
type Channel string

const (
	// Presenter carries presenter-authored broadcasts.
	Presenter Channel = "presenter"
	// Client carries audience submissions.
	Client Channel = "client"
)

const topicSuffix = "_topic"

// Provider supplies the current group identifier.
type Provider interface {
	GroupName() string
}

// Static is a Provider with a fixed group name.
type Static string

func (s Static) GroupName() string { return string(s) }

// Topic returns the relay topic for a channel of the given group.
func Topic(groupName string, ch Channel) string {
	return groupName + "_" + string(ch) + topicSuffix
}

// Topics holds both physical topic names of a group.
type Topics struct {
	Presenter string
	Client    string
}

// TopicsFor resolves both topics from a provider.
func TopicsFor(p Provider) Topics {
	name := p.GroupName()
	return Topics{
		Presenter: Topic(name, Presenter),
		Client:    Topic(name, Client),
	}
}

// For returns the topic of the given channel.
func (t Topics) For(ch Channel) (string, error) {
	switch ch {
	case Presenter:
		return t.Presenter, nil
	case Client:
		return t.Client, nil
	default:
		return "", fmt.Errorf("unknown channel %q", ch)
	}
}

// Validate checks that a group name can be used inside a relay topic.
// Relays accept letters, digits, '-' and '_' only.
func Validate(groupName string) error {
	if groupName == "" {
		return fmt.Errorf("group name is empty")
	}
	if i := strings.IndexFunc(groupName, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_')
	}); i >= 0 {
		return fmt.Errorf("group name %q has invalid character at %d", groupName, i)
	}
	return nil
}

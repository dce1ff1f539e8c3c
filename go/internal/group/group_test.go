package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicsFor(t *testing.T) {
	topics := TopicsFor(Static("room42"))

	assert.Equal(t, "room42_presenter_topic", topics.Presenter)
	assert.Equal(t, "room42_client_topic", topics.Client)

	topic, err := topics.For(Client)
	require.NoError(t, err)
	assert.Equal(t, topics.Client, topic)

	_, err = topics.For(Channel("other"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		group   string
		wantErr bool
	}{
		{name: "letters and digits", group: "room42"},
		{name: "dash and underscore", group: "lecture-2_b"},
		{name: "empty", group: "", wantErr: true},
		{name: "slash", group: "a/b", wantErr: true},
		{name: "space", group: "a b", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.group)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

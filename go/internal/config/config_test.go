package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcdev12/livequestion/go/internal/group"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	path := writeConfig(t, `
group: physics101
relay:
  backend: nats
  nats_url: nats://relay:4222
  stream: CLASSROOM
publish:
  max_attempts: 6
  initial_backoff: 250ms
brainstorm:
  brainstorming_timer: 90
  dedupe_redelivery: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "physics101", cfg.Group)
	assert.Equal(t, BackendNATS, cfg.Relay.Backend)
	assert.Equal(t, "https://ntfy.sh", cfg.Relay.APIURL, "untouched keys keep defaults")
	assert.Equal(t, 90, cfg.Brainstorm.BrainstormingTimer)
	assert.True(t, cfg.Brainstorm.DedupeRedelivery)
	assert.True(t, cfg.Subscribe.Reconnect)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 6, policy.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, policy.InitialInterval)
	assert.Equal(t, 10*time.Second, policy.MaxInterval)

	nats := cfg.NATS()
	assert.Equal(t, "nats://relay:4222", nats.URL)
	assert.Equal(t, "CLASSROOM", nats.StreamName)
	assert.Equal(t, "relay", nats.SubjectPrefix)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GROUP", "chem")
	t.Setenv("RELAY_API_URL", "http://localhost:2586")
	t.Setenv("VOTING_TIMER", "45")
	t.Setenv("BOARD_PORT", "not-a-number")

	cfg, err := Load(writeConfig(t, "group: physics101\nboard:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, "chem", cfg.Group)
	assert.Equal(t, "http://localhost:2586", cfg.Relay.APIURL)
	assert.Equal(t, 45, cfg.Brainstorm.VotingTimer)
	assert.Equal(t, 9000, cfg.Board.Port, "unparseable env value is ignored")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeConfig(t, "group: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing group", func(c *Config) { c.Group = "" }, "group is required"},
		{"group unusable in a topic", func(c *Config) { c.Group = "room 1" }, "invalid character"},
		{"unknown backend", func(c *Config) { c.Relay.Backend = "kafka" }, `unknown relay backend "kafka"`},
		{"ntfy without url", func(c *Config) { c.Relay.APIURL = "" }, "relay.api_url is required"},
		{"nats without url", func(c *Config) { c.Relay.Backend = BackendNATS; c.Relay.NATSURL = "" }, "relay.nats_url is required"},
		{"zero attempts", func(c *Config) { c.Publish.MaxAttempts = 0 }, "max_attempts must be positive"},
		{"negative timer", func(c *Config) { c.Brainstorm.VotingTimer = -1 }, "timers must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Group = "g"
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalid)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestNewTransport(t *testing.T) {
	cfg := Default()
	cfg.Group = "g"
	transport, closer, err := cfg.NewTransport()
	require.NoError(t, err)
	assert.NotNil(t, transport)
	assert.NoError(t, closer.Close())

	client := cfg.NewClient(transport)
	defer client.Close()
	assert.Equal(t, "g_presenter_topic", client.Topics().Presenter)

	cfg.Relay.Backend = "kafka"
	_, _, err = cfg.NewTransport()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNewTransport_NtfyToken(t *testing.T) {
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()

	t.Setenv("RELAY_TOKEN", "tk_secret")
	cfg, err := Load(writeConfig(t, "group: g\nrelay:\n  api_url: "+srv.URL+"\n  timeout: 2s\n"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Relay.Timeout)

	transport, closer, err := cfg.NewTransport()
	require.NoError(t, err)
	defer closer.Close()

	client := cfg.NewClient(transport)
	require.NoError(t, client.PublishSync(context.Background(), group.Client, map[string]string{"questionID": "q"}))
	assert.Equal(t, "Bearer tk_secret", <-auth)
}

func TestLevel(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.Level().String())
	cfg.LogLevel = "debug"
	assert.Equal(t, "debug", cfg.Level().String())
	cfg.LogLevel = "loud"
	assert.Equal(t, "info", cfg.Level().String())
}

// Package config loads the settings shared by the presenter and audience
// binaries: an optional YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/livequestion/go/internal/group"
	"github.com/mcdev12/livequestion/go/internal/relay"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

const (
	BackendNtfy = "ntfy"
	BackendNATS = "nats"
)

type Config struct {
	Relay      RelayConfig      `yaml:"relay"`
	Group      string           `yaml:"group"`
	Publish    PublishConfig    `yaml:"publish"`
	Subscribe  SubscribeConfig  `yaml:"subscribe"`
	Brainstorm BrainstormConfig `yaml:"brainstorm"`
	Board      BoardConfig      `yaml:"board"`
	LogLevel   string           `yaml:"log_level"`
}

type RelayConfig struct {
	Backend       string        `yaml:"backend"`
	APIURL        string        `yaml:"api_url"`
	Token         string        `yaml:"token"`   // ntfy access token
	Timeout       time.Duration `yaml:"timeout"` // ntfy publish and backlog requests
	NATSURL       string        `yaml:"nats_url"`
	Stream        string        `yaml:"stream"`
	SubjectPrefix string        `yaml:"subject_prefix"`
}

type PublishConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
	Burst          int           `yaml:"burst"`
}

type SubscribeConfig struct {
	Reconnect bool `yaml:"reconnect"`
}

// BrainstormConfig holds the default countdowns in seconds; 0 means none.
type BrainstormConfig struct {
	BrainstormingTimer int  `yaml:"brainstorming_timer"`
	VotingTimer        int  `yaml:"voting_timer"`
	DedupeRedelivery   bool `yaml:"dedupe_redelivery"`
}

// BoardConfig sets the board server port; 0 disables it.
type BoardConfig struct {
	Port int `yaml:"port"`
}

// Default returns the built-in settings.
func Default() Config {
	retry := relay.DefaultRetryPolicy()
	nats := relay.DefaultNATSConfig()
	return Config{
		Relay: RelayConfig{
			Backend:       BackendNtfy,
			APIURL:        "https://ntfy.sh",
			NATSURL:       nats.URL,
			Stream:        nats.StreamName,
			SubjectPrefix: nats.SubjectPrefix,
		},
		Publish: PublishConfig{
			MaxAttempts:    retry.MaxAttempts,
			InitialBackoff: retry.InitialInterval,
			MaxBackoff:     retry.MaxInterval,
			RatePerSecond:  5,
			Burst:          10,
		},
		Subscribe: SubscribeConfig{Reconnect: true},
		Board:     BoardConfig{Port: 8090},
		LogLevel:  "info",
	}
}

// Load reads path over the defaults when path is not empty, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Relay.Backend = getEnv("RELAY_BACKEND", c.Relay.Backend)
	c.Relay.APIURL = getEnv("RELAY_API_URL", c.Relay.APIURL)
	c.Relay.Token = getEnv("RELAY_TOKEN", c.Relay.Token)
	c.Relay.NATSURL = getEnv("NATS_URL", c.Relay.NATSURL)
	c.Group = getEnv("GROUP", c.Group)
	c.Publish.MaxAttempts = getEnvAsInt("PUBLISH_MAX_ATTEMPTS", c.Publish.MaxAttempts)
	c.Brainstorm.BrainstormingTimer = getEnvAsInt("BRAINSTORM_TIMER", c.Brainstorm.BrainstormingTimer)
	c.Brainstorm.VotingTimer = getEnvAsInt("VOTING_TIMER", c.Brainstorm.VotingTimer)
	c.Board.Port = getEnvAsInt("BOARD_PORT", c.Board.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Group == "" {
		errs = append(errs, fmt.Errorf("%w: group is required", ErrInvalid))
	} else if err := group.Validate(c.Group); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}
	switch c.Relay.Backend {
	case BackendNtfy:
		if c.Relay.APIURL == "" {
			errs = append(errs, fmt.Errorf("%w: relay.api_url is required for ntfy", ErrInvalid))
		}
	case BackendNATS:
		if c.Relay.NATSURL == "" {
			errs = append(errs, fmt.Errorf("%w: relay.nats_url is required for nats", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown relay backend %q", ErrInvalid, c.Relay.Backend))
	}
	if c.Publish.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("%w: publish.max_attempts must be positive", ErrInvalid))
	}
	if c.Brainstorm.BrainstormingTimer < 0 || c.Brainstorm.VotingTimer < 0 {
		errs = append(errs, fmt.Errorf("%w: timers must not be negative", ErrInvalid))
	}
	return errors.Join(errs...)
}

// RetryPolicy converts the publish settings.
func (c *Config) RetryPolicy() relay.RetryPolicy {
	p := relay.DefaultRetryPolicy()
	p.MaxAttempts = c.Publish.MaxAttempts
	if c.Publish.InitialBackoff > 0 {
		p.InitialInterval = c.Publish.InitialBackoff
	}
	if c.Publish.MaxBackoff > 0 {
		p.MaxInterval = c.Publish.MaxBackoff
	}
	return p
}

// NATS converts the relay settings for the JetStream transport.
func (c *Config) NATS() relay.NATSConfig {
	n := relay.DefaultNATSConfig()
	n.URL = c.Relay.NATSURL
	if c.Relay.Stream != "" {
		n.StreamName = c.Relay.Stream
	}
	if c.Relay.SubjectPrefix != "" {
		n.SubjectPrefix = c.Relay.SubjectPrefix
	}
	return n
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

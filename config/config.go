// Package config defines the router configuration file format.
//
// Secrets are never stored in the file: the API key fields take
// ${ENV_VAR} references expanded at load time, or name an environment
// variable to read.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// TransportKind values accepted in the config file.
const (
	KindStdio          = "stdio"
	KindStreamableHTTP = "streamable_http"
)

// Config is the root configuration.
type Config struct {
	Transports []*TransportConfig `json:"transports" yaml:"transports" validate:"required,min=1,dive"`
	Dispatch   DispatchConfig     `json:"dispatch" yaml:"dispatch"`
	Model      ModelConfig        `json:"model" yaml:"model"`
}

// TransportConfig describes one tool backend.
type TransportConfig struct {
	// ID is the unique transport identifier, used in descriptors and logs.
	ID string `json:"id" yaml:"id" validate:"required"`
	// Kind selects the transport: stdio or streamable_http.
	Kind string `json:"kind" yaml:"kind" validate:"required,oneof=stdio streamable_http"`

	// Command, Args, Env and Dir configure a stdio subprocess.
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Dir     string            `json:"dir,omitempty" yaml:"dir,omitempty"`

	// URL is the base URL of a streamable_http backend.
	URL string `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	// APIKey is the bearer token; use a ${ENV_VAR} reference in the file.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// APIKeyEnv names an environment variable to read the bearer token
	// from when APIKey is empty.
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
}

// DispatchConfig holds dispatch and session knobs. Zero values use the
// package defaults.
type DispatchConfig struct {
	CallTimeout        time.Duration `json:"call_timeout,omitempty" yaml:"call_timeout,omitempty"`
	MaxAttempts        int           `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" validate:"omitempty,min=1"`
	InitialBackoff     time.Duration `json:"initial_backoff,omitempty" yaml:"initial_backoff,omitempty"`
	ConnectTimeout     time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`
	MaxConcurrentCalls int           `json:"max_concurrent_calls,omitempty" yaml:"max_concurrent_calls,omitempty"`
	FailureThreshold   int           `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`
}

// ModelConfig configures the chat model used by the agent command.
type ModelConfig struct {
	Model     string `json:"model,omitempty" yaml:"model,omitempty"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	// SystemPrompt overrides the default agent system prompt.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	// MaxTurns caps model round-trips per chat request.
	MaxTurns int `json:"max_turns,omitempty" yaml:"max_turns,omitempty"`
}

// Load reads, expands and validates the configuration from file.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to load config %q", file)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "invalid config %q", file)
	}
	return cfg, nil
}

// Validate checks the configuration, resolves APIKeyEnv references and
// rejects transports missing their kind-specific fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.WithStack(err)
	}

	seen := make(map[string]bool, len(c.Transports))
	for _, tc := range c.Transports {
		if seen[tc.ID] {
			return errors.Newf("duplicate transport id %q", tc.ID)
		}
		seen[tc.ID] = true

		switch tc.Kind {
		case KindStdio:
			if tc.Command == "" {
				return errors.Newf("transport %q: command is required for kind stdio", tc.ID)
			}
		case KindStreamableHTTP:
			if tc.URL == "" {
				return errors.Newf("transport %q: url is required for kind streamable_http", tc.ID)
			}
		}

		if tc.APIKey == "" && tc.APIKeyEnv != "" {
			tc.APIKey = os.Getenv(tc.APIKeyEnv)
		}
	}

	if c.Model.APIKey == "" && c.Model.APIKeyEnv != "" {
		c.Model.APIKey = os.Getenv(c.Model.APIKeyEnv)
	}
	return nil
}

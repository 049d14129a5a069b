package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/hashicorp/go-multierror"
)

// DefaultSystemPrompt is injected ahead of every forwarded conversation
// unless SYSTEM_PROMPT overrides it.
const DefaultSystemPrompt = `You are Lumora, a friendly, intelligent AI assistant.

You explain things in simple language.
You are polite, calm, and helpful.
You avoid complicated words unless necessary.
You help users step by step.
You sound human, not robotic.
When users share images, analyze them thoroughly and provide helpful insights.
Format your responses using markdown when appropriate for better readability.`

// GatewayConfig is the environment of the lumora-gateway process.
type GatewayConfig struct {
	Addr            string        `env:"LUMORA_GATEWAY_ADDR" envDefault:":8080"`
	UpstreamAPIKey  string        `env:"UPSTREAM_API_KEY"`
	UpstreamBaseURL string        `env:"UPSTREAM_BASE_URL" envDefault:"https://ai.gateway.lovable.dev/v1"`
	AllowedModels   []string      `env:"ALLOWED_MODELS" envSeparator:"," envDefault:"openai/gpt-5,openai/gpt-5-mini,openai/gpt-5-nano"`
	DefaultModel    string        `env:"DEFAULT_MODEL" envDefault:"openai/gpt-5"`
	SystemPrompt    string        `env:"SYSTEM_PROMPT"`
	ClientAPIKey    string        `env:"CLIENT_API_KEY"`
	ClientJWTSecret string        `env:"CLIENT_JWT_SECRET"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"120s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadGatewayConfig parses the process environment. A missing upstream key
// is not an error here: the gateway still starts and answers chat requests
// with a 500 so the misconfiguration shows up in its logs.
func LoadGatewayConfig() (*GatewayConfig, error) {
	cfg := &GatewayConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing env config: %w", err)
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *GatewayConfig) Validate() error {
	var result *multierror.Error

	if c.Addr == "" {
		result = multierror.Append(result, errors.New("LUMORA_GATEWAY_ADDR must not be empty"))
	}
	if u, err := url.Parse(c.UpstreamBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("UPSTREAM_BASE_URL %q is not an absolute URL", c.UpstreamBaseURL))
	}
	if len(c.AllowedModels) == 0 {
		result = multierror.Append(result, errors.New("ALLOWED_MODELS must list at least one model"))
	} else if !slices.Contains(c.AllowedModels, c.DefaultModel) {
		result = multierror.Append(result, fmt.Errorf("DEFAULT_MODEL %q is not in ALLOWED_MODELS", c.DefaultModel))
	}
	if c.ClientAPIKey != "" && c.ClientJWTSecret != "" {
		result = multierror.Append(result, errors.New("set only one of CLIENT_API_KEY and CLIENT_JWT_SECRET"))
	}
	if c.UpstreamTimeout <= 0 {
		result = multierror.Append(result, errors.New("UPSTREAM_TIMEOUT must be positive"))
	}

	return result.ErrorOrNil()
}

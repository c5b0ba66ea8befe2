package deploy

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Mode selects the rotation strategy.
type Mode string

const (
	// ModePinned registers a new task definition revision for the newest
	// pushed image and repoints the service at it.
	ModePinned Mode = "pinned"
	// ModeFloating forces a new deployment of the current revision so the
	// scheduler re-pulls a mutable-tagged image.
	ModeFloating Mode = "floating"
)

// Config holds deploy tool configuration. Every resource name is derived
// from Environment and Component, so one environment string selects the
// cluster, service, task family and image repository together.
type Config struct {
	Environment string `toml:"environment"`
	Region      string `toml:"region"`
	Mode        Mode   `toml:"mode"`
	Component   string `toml:"component"`
	FloatingTag string `toml:"floating_tag"`
	EndpointURL string `toml:"endpoint_url"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Environment: "staging",
		Region:      "us-east-2",
		Mode:        ModePinned,
		Component:   "dealer",
		FloatingTag: "latest",
	}
}

// LoadConfig builds the effective configuration: defaults, then an
// optional TOML file, then environment variables. Flags are applied by
// the caller on top.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Environment = envOrDefault("DEALER_DEPLOY_ENVIRONMENT", c.Environment)
	c.Region = envOrDefault("AWS_REGION", c.Region)
	c.Region = envOrDefault("DEALER_DEPLOY_REGION", c.Region)
	c.Mode = Mode(envOrDefault("DEALER_DEPLOY_MODE", string(c.Mode)))
	c.Component = envOrDefault("DEALER_DEPLOY_COMPONENT", c.Component)
	c.FloatingTag = envOrDefault("DEALER_DEPLOY_FLOATING_TAG", c.FloatingTag)
	c.EndpointURL = envOrDefault("DEALER_DEPLOY_ENDPOINT_URL", c.EndpointURL)
}

// Validate checks required configuration.
func (c Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.Component == "" {
		return fmt.Errorf("component is required")
	}
	switch c.Mode {
	case ModePinned, ModeFloating:
	default:
		return fmt.Errorf("unknown mode %q (expected %q or %q)", c.Mode, ModePinned, ModeFloating)
	}
	if c.Mode == ModeFloating && c.FloatingTag == "" {
		return fmt.Errorf("floating tag is required in floating mode")
	}
	return nil
}

// ClusterName returns the ECS cluster for the environment.
func (c Config) ClusterName() string {
	return fmt.Sprintf("%s-%s-cluster", c.Environment, c.Component)
}

// ServiceName returns the ECS service for the environment.
func (c Config) ServiceName() string {
	return fmt.Sprintf("%s-%s-service", c.Environment, c.Component)
}

// TaskFamily returns the task definition family for the environment.
func (c Config) TaskFamily() string {
	return fmt.Sprintf("%s-%s-task-def", c.Environment, c.Component)
}

// Repository returns the ECR repository holding the environment's images.
func (c Config) Repository() string {
	return fmt.Sprintf("%s-%s", c.Environment, c.Component)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Package appconfig loads the top-level proxy process configuration.
package appconfig

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cortexrouter/semantic-proxy/internal/proxyerr"
	"github.com/cortexrouter/semantic-proxy/internal/routerconfig"
)

// Config is the process-wide configuration (spec §6).
type Config struct {
	Port                  int    `yaml:"port"`
	Host                  string `yaml:"host"`
	Secure                bool   `yaml:"secure"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	UpstreamBase          string `yaml:"upstream_base"`

	// BufferUpstream, when true, fully buffers the upstream response body
	// before replying instead of streaming it — see spec §9 "Streaming vs
	// buffering".
	BufferUpstream bool `yaml:"buffer_upstream"`

	// StrictParseStatus, when true, returns 400 instead of the source's
	// quirky 500 on parse failure — see spec §9 "known quirks".
	StrictParseStatus bool `yaml:"strict_parse_status"`

	Router routerconfig.RouterConfig `yaml:"router"`
}

const (
	defaultPort           = 8080
	defaultHost           = "0.0.0.0"
	defaultRequestTimeout = 30
)

// Load reads and parses a YAML config file, applies defaults, and runs
// full validation. Failures are fatal — callers exit the process non-zero.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, proxyerr.ConfigError("reading config %s: %v", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, proxyerr.ConfigError("parsing config %s: %v", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}

	if c.Host == "" {
		c.Host = defaultHost
	}

	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = defaultRequestTimeout
	}
}

// Validate checks the top-level config and delegates to RouterConfig.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return proxyerr.ConfigError("invalid port %d", c.Port)
	}

	if c.RequestTimeoutSeconds <= 0 {
		return proxyerr.ConfigError("invalid request_timeout_seconds %d", c.RequestTimeoutSeconds)
	}

	if err := c.Router.Validate(); err != nil {
		return err
	}

	if c.UpstreamBase == "" {
		if _, ok := c.Router.DefaultModel(); !ok {
			return proxyerr.ConfigError("upstream_base is empty and router has no default model")
		}
	}

	return nil
}

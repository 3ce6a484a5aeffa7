package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/crate/crate-go/internal/pool"
)

// Config carries the connector settings. All fields can be populated from
// the environment via Load; zero values fall back to sensible defaults so a
// literal Config{} works against a local server.
type Config struct {
	// Servers lists the cluster endpoints. Each entry may itself contain
	// several whitespace-separated endpoints, so both
	// []string{"a:4200", "b:4200"} and []string{"a:4200 b:4200"} work.
	Servers []string `env:"CRATE_SERVERS" envSeparator:","`

	// Scheme is applied to endpoints given without one.
	Scheme string `env:"CRATE_SCHEME" envDefault:"http"`

	// Timeout bounds a single request attempt, not a whole logical call.
	// Zero disables the per-attempt deadline.
	Timeout time.Duration `env:"CRATE_TIMEOUT" envDefault:"30s"`

	// RetryInterval is how long an inactive server rests before health
	// probes contact it again.
	RetryInterval time.Duration `env:"CRATE_RETRY_INTERVAL" envDefault:"30s"`

	// ErrorTrace asks the server to attach stack traces to statement errors.
	ErrorTrace bool `env:"CRATE_ERROR_TRACE" envDefault:"false"`

	// MaxIdleConnsPerServer caps the kept-alive connections per endpoint.
	MaxIdleConnsPerServer int `env:"CRATE_MAX_IDLE_CONNS_PER_SERVER" envDefault:"10"`

	LogLevel  string `env:"CRATE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"CRATE_LOG_FORMAT" envDefault:"console"`

	// OTLPEndpoint enables trace and metric export when set.
	OTLPEndpoint string `env:"CRATE_OTLP_ENDPOINT"`
	OTLPHeaders  string `env:"CRATE_OTLP_HEADERS"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be repaired by defaulting.
func (c *Config) Validate() error {
	switch c.Scheme {
	case "", "http", "https":
	default:
		return fmt.Errorf("unsupported scheme %q", c.Scheme)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.RetryInterval < 0 {
		return fmt.Errorf("retry interval must not be negative, got %s", c.RetryInterval)
	}
	if c.MaxIdleConnsPerServer < 0 {
		return fmt.Errorf("max idle conns per server must not be negative, got %d", c.MaxIdleConnsPerServer)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.Scheme == "" {
		return "http"
	}
	return c.Scheme
}

// serverList flattens the configured endpoints into one spec per entry,
// defaulting to the local server when nothing is configured.
func (c *Config) serverList() []string {
	var specs []string
	for _, entry := range c.Servers {
		specs = append(specs, strings.Fields(entry)...)
	}
	if len(specs) == 0 {
		specs = []string{pool.DefaultServer}
	}
	return specs
}

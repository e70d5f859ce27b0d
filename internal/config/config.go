package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/picklr-io/zipbuilder/internal/retry"
)

// Config is the Lambda function configuration, read from its environment.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json, text

	Region     string `env:"AWS_REGION" envDefault:"us-east-1"`
	S3Endpoint string `env:"ZIPBUILDER_S3_ENDPOINT"` // Optional, for S3-compatible stores (path-style)

	ScratchDir   string `env:"ZIPBUILDER_SCRATCH_DIR" envDefault:"/tmp"`
	BuildScript  string `env:"ZIPBUILDER_BUILD_SCRIPT" envDefault:"build.sh"`
	BuildRunner  string `env:"ZIPBUILDER_BUILD_RUNNER" envDefault:"exec"` // exec, shell
	SetupCommand string `env:"ZIPBUILDER_SETUP_COMMAND"`                  // Run in the scratch dir before every build

	RetryMax       int           `env:"ZIPBUILDER_RETRY_MAX" envDefault:"3"`
	RetryBaseDelay time.Duration `env:"ZIPBUILDER_RETRY_BASE_DELAY" envDefault:"500ms"`
	RetryMaxDelay  time.Duration `env:"ZIPBUILDER_RETRY_MAX_DELAY" envDefault:"10s"`
}

// Load parses and validates the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses the configuration from the given environment map.
// A nil map means the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	var opts env.Options
	if environ != nil {
		opts.Environment = environ
	}

	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the rest of the function cannot act on.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: must be json or text", c.LogFormat)
	}

	switch c.BuildRunner {
	case "exec", "shell":
	default:
		return fmt.Errorf("invalid ZIPBUILDER_BUILD_RUNNER %q: must be exec or shell", c.BuildRunner)
	}

	if c.ScratchDir == "" {
		return fmt.Errorf("ZIPBUILDER_SCRATCH_DIR must not be empty")
	}
	if c.BuildScript == "" {
		return fmt.Errorf("ZIPBUILDER_BUILD_SCRIPT must not be empty")
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("ZIPBUILDER_RETRY_MAX must not be negative, got %d", c.RetryMax)
	}
	return nil
}

// RetryPolicy returns the retry policy for S3 calls and response delivery.
func (c *Config) RetryPolicy() *retry.Policy {
	return &retry.Policy{
		MaxRetries: c.RetryMax,
		BaseDelay:  c.RetryBaseDelay,
		MaxDelay:   c.RetryMaxDelay,
	}
}

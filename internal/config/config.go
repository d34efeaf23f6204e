// Package config loads scanprep settings from the environment.
//
// Values come from SCANPREP_* variables, optionally seeded from a .env file in
// the working directory. Command-line flags override them after loading.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/fpang/scanprep/internal/operation"
)

// Prefix is the environment variable prefix.
const Prefix = "SCANPREP"

// Config holds every setting.
type Config struct {
	// Imaging service
	BaseURL string        `envconfig:"BASE_URL" default:"http://127.0.0.1:5000"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"30s"`

	// Dispatch
	MaxAttempts      int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	RetryStep        time.Duration `envconfig:"RETRY_STEP" default:"1s"`
	AugmentationType string        `envconfig:"AUGMENTATION_TYPE" default:"rotation"`

	// Results
	DownloadDir string `envconfig:"DOWNLOAD_DIR" default:"."`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3Prefix    string `envconfig:"S3_PREFIX" default:"scanprep"`

	// Session and diagnostics
	StateFile string `envconfig:"STATE_FILE"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	Metrics   bool   `envconfig:"METRICS" default:"false"`
}

// Load reads .env (if present) and the SCANPREP_* environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Could not load .env file")
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base URL %q must be an absolute http(s) URL", c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.RetryStep < 0 {
		return fmt.Errorf("retry step must not be negative, got %s", c.RetryStep)
	}
	if _, err := operation.ParseAugmentation(c.AugmentationType); err != nil {
		return err
	}
	return nil
}

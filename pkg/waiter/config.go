package waiter

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultOpenInitialInterval = 50 * time.Microsecond
	defaultOpenMaxInterval     = 10 * time.Millisecond
)

// EnvPrefix prefixes every environment variable LoadConfig reads.
const EnvPrefix = "SHMWAITER"

// Config tunes a Waiter.
type Config struct {
	// OpenTimeout bounds how long Open polls a block another process is
	// constructing or destroying. Zero waits until the context ends.
	OpenTimeout time.Duration `envconfig:"OPEN_TIMEOUT" default:"0s"`
	// OpenInitialInterval and OpenMaxInterval shape the exponential poll.
	OpenInitialInterval time.Duration `envconfig:"OPEN_INITIAL_INTERVAL" default:"50us"`
	OpenMaxInterval     time.Duration `envconfig:"OPEN_MAX_INTERVAL" default:"10ms"`
	// ShmDir holds the backing files of named waiters. Empty means /dev/shm
	// when present, the temp dir otherwise.
	ShmDir string `envconfig:"SHM_DIR"`

	Meter      metric.Meter          `ignored:"true"`
	Tracer     trace.Tracer          `ignored:"true"`
	Registerer prometheus.Registerer `ignored:"true"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		OpenInitialInterval: defaultOpenInitialInterval,
		OpenMaxInterval:     defaultOpenMaxInterval,
	}
}

// LoadConfig returns DefaultConfig overlaid with SHMWAITER_* environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// VerifyConfig checks that cfg is usable.
func VerifyConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.OpenTimeout < 0 {
		return fmt.Errorf("OpenTimeout:%s must not be negative", cfg.OpenTimeout)
	}
	if cfg.OpenInitialInterval <= 0 {
		return fmt.Errorf("OpenInitialInterval:%s must be positive", cfg.OpenInitialInterval)
	}
	if cfg.OpenMaxInterval < cfg.OpenInitialInterval {
		return fmt.Errorf("OpenMaxInterval:%s must not be less than OpenInitialInterval:%s",
			cfg.OpenMaxInterval, cfg.OpenInitialInterval)
	}
	return nil
}

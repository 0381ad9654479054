package engine

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/openlot-io/auctionengine/core"
)

// Config holds engine settings. Library callers construct it directly;
// deployments load it from the environment with FromEnv.
type Config struct {
	// Owner is the governance principal.
	Owner core.Principal `env:"AUCTION_OWNER" envDefault:"governance"`

	// PlatformAccount receives the platform's fee credits.
	PlatformAccount core.Principal `env:"AUCTION_PLATFORM_ACCOUNT" envDefault:"platform"`

	// FeePercent is the initial platform fee rate in whole percent.
	FeePercent int64 `env:"AUCTION_FEE_PERCENT" envDefault:"10"`

	// MaxDuration caps how far in the future an auction may close.
	MaxDuration time.Duration `env:"AUCTION_MAX_DURATION" envDefault:"720h"`
}

// FromEnv loads a Config from AUCTION_* environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration before engine construction.
func (c Config) Validate() error {
	if c.Owner == "" {
		return fmt.Errorf("config: empty owner: %w", core.ErrInvalidParameters)
	}
	if c.PlatformAccount == "" {
		return fmt.Errorf("config: empty platform account: %w", core.ErrInvalidParameters)
	}
	if c.FeePercent < 0 || c.FeePercent > 100 {
		return fmt.Errorf("config: fee percent %d out of range [0,100]: %w", c.FeePercent, core.ErrInvalidParameters)
	}
	if c.MaxDuration <= 0 {
		return fmt.Errorf("config: max duration must be positive: %w", core.ErrInvalidParameters)
	}
	return nil
}

// Package config loads run settings from the environment.
package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Run holds the settings of an example sampler run.
type Run struct {
	Dim         int     `env:"MCMC_DIM" envDefault:"2"`
	Iterations  int     `env:"MCMC_ITERATIONS" envDefault:"20000"`
	BurnIn      int     `env:"MCMC_BURN_IN" envDefault:"2000"`
	Thin        int     `env:"MCMC_THIN" envDefault:"1"`
	Seed        uint64  `env:"MCMC_SEED" envDefault:"42"`
	Variance    float64 `env:"MCMC_PROPOSAL_VARIANCE" envDefault:"0.5"`
	Correlation float64 `env:"MCMC_TARGET_CORRELATION" envDefault:"0.8"`
	StorePath   string  `env:"MCMC_STORE_PATH"`
	RunName     string  `env:"MCMC_RUN_NAME" envDefault:"example"`
}

// Load parses Run from environment variables and validates it.
func Load() (Run, error) {
	cfg, err := env.ParseAs[Run]()
	if err != nil {
		return Run{}, errors.Wrap(err, "parse env")
	}
	if err := cfg.Validate(); err != nil {
		return Run{}, err
	}
	return cfg, nil
}

// Validate checks the settings for values the sampler cannot run with.
func (c Run) Validate() error {
	switch {
	case c.Dim <= 0:
		return errors.Errorf("MCMC_DIM must be positive, got %d", c.Dim)
	case c.Iterations <= 0:
		return errors.Errorf("MCMC_ITERATIONS must be positive, got %d", c.Iterations)
	case c.BurnIn < 0:
		return errors.Errorf("MCMC_BURN_IN must not be negative, got %d", c.BurnIn)
	case c.Thin <= 0:
		return errors.Errorf("MCMC_THIN must be positive, got %d", c.Thin)
	case c.Variance <= 0:
		return errors.Errorf("MCMC_PROPOSAL_VARIANCE must be positive, got %v", c.Variance)
	case c.Correlation <= -1 || c.Correlation >= 1:
		return errors.Errorf("MCMC_TARGET_CORRELATION must be in (-1, 1), got %v", c.Correlation)
	}
	return nil
}

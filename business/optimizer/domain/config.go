package domain

import (
	"time"

	"github.com/fd1az/cfmm-arbitrage/internal/apperror"
)

// Config controls an optimization run.
type Config struct {
	MaxIterations int
	// Tolerance on the norm of the depth-relative excess demand.
	Tolerance float64
	// Memory is the number of (s, y) pairs kept by L-BFGS.
	Memory int
	// Workers bounds concurrent pool evaluations within an iteration.
	Workers int
	// MaxDuration is a wall-clock budget; 0 means none.
	MaxDuration time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 200,
		Tolerance:     1e-6,
		Memory:        8,
		Workers:       4,
		MaxDuration:   2 * time.Second,
	}
}

// Validate fails fast on unusable settings.
func (c Config) Validate() error {
	switch {
	case c.MaxIterations <= 0:
		return apperror.Validation(apperror.CodeConfigurationError, "optimizer max iterations must be positive")
	case !(c.Tolerance > 0):
		return apperror.Validation(apperror.CodeConfigurationError, "optimizer tolerance must be positive")
	case c.Memory < 1:
		return apperror.Validation(apperror.CodeConfigurationError, "optimizer memory must be at least 1")
	case c.Workers < 1:
		return apperror.Validation(apperror.CodeConfigurationError, "optimizer workers must be at least 1")
	case c.MaxDuration < 0:
		return apperror.Validation(apperror.CodeConfigurationError, "optimizer max duration must not be negative")
	}
	return nil
}

package analysis

import (
	"errors"
	"fmt"
	"time"
)

// Config controls batching, polling and retry.
type Config struct {
	BatchSize           int
	Concurrency         int
	PollInterval        time.Duration
	BaseTimeout         time.Duration
	PerParagraphTimeout time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BatchSize:           5,
		Concurrency:         3,
		PollInterval:        500 * time.Millisecond,
		BaseTimeout:         30 * time.Second,
		PerParagraphTimeout: 5 * time.Second,
		MaxRetries:          3,
		RetryDelay:          2 * time.Second,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.BaseTimeout <= 0 {
		errs = append(errs, fmt.Errorf("base timeout must be positive, got %s", c.BaseTimeout))
	}
	if c.PerParagraphTimeout < 0 {
		errs = append(errs, fmt.Errorf("per-paragraph timeout must not be negative, got %s", c.PerParagraphTimeout))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry delay must not be negative, got %s", c.RetryDelay))
	}
	return errors.Join(errs...)
}

// JobTimeout is the wall-clock budget for one job of n paragraphs.
func (c Config) JobTimeout(n int) time.Duration {
	return c.BaseTimeout + time.Duration(n)*c.PerParagraphTimeout
}

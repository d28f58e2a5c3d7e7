package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DurationOrDefault parses a duration string and falls back to defaultValue when empty.
func DurationOrDefault(value string, defaultValue string) (time.Duration, error) {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		candidate = strings.TrimSpace(defaultValue)
	}
	if candidate == "" {
		return 0, fmt.Errorf("duration value is empty")
	}

	d, err := time.ParseDuration(candidate)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", candidate, err)
	}
	return d, nil
}

// RetryPolicy is the parsed form of RetryConfig.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
}

// Policy resolves the retry settings, applying defaults to zero values.
func (c RetryConfig) Policy() (RetryPolicy, error) {
	base, err := DurationOrDefault(c.BaseDelay, DefaultRetryBaseDelay)
	if err != nil {
		return RetryPolicy{}, fmt.Errorf("retry.base_delay: %w", err)
	}
	maxDelay, err := DurationOrDefault(c.MaxDelay, DefaultRetryMaxDelay)
	if err != nil {
		return RetryPolicy{}, fmt.Errorf("retry.max_delay: %w", err)
	}

	p := RetryPolicy{
		MaxAttempts:   c.MaxAttempts,
		BaseDelay:     base,
		BackoffFactor: c.BackoffFactor,
		MaxDelay:      maxDelay,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryMaxAttempts
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = DefaultRetryBackoffFactor
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p, nil
}

// WindowDuration parses the rate-limit window length.
func (c RateLimitConfig) WindowDuration() (time.Duration, error) {
	d, err := DurationOrDefault(c.Window, DefaultRateLimitWindow)
	if err != nil {
		return 0, fmt.Errorf("rate_limit.window: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("rate_limit.window must be positive, got %s", d)
	}
	return d, nil
}

// ExpandPath resolves environment variables and a leading "~/".
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}

	expanded := os.ExpandEnv(trimmed)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		expanded = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(expanded, "~"), "/"))
	}

	return filepath.Clean(expanded), nil
}

package client

import (
	"math"
	"time"
)

// BackoffConfig defines the delay schedule between connection attempts.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultBackoff doubles from 250ms with no cap: 250ms, 500ms, 1s, 2s.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
	}
}

// NextBackoffDelay returns the sleep after failed attempt N (1-based).
// Delays are strictly increasing while under MaxDelay; a Multiplier at
// or below 1.0 would break that contract and falls back to the default.
func NextBackoffDelay(cfg BackoffConfig, attempt int) time.Duration {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultBackoff().InitialDelay
	}
	if cfg.Multiplier <= 1.0 {
		cfg.Multiplier = DefaultBackoff().Multiplier
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

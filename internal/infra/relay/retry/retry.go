// Package retry decides whether a classified failure is worth another attempt and
// how long to wait before it. The policy holds no per-call state: callers own
// the attempt counter, so concurrent sends never share retry progress.
package retry

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/vietddude/relaychat/internal/core/domain"
)

// Config defines retry behavior.
type Config struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	JitterPercent float64       `yaml:"jitter_percent"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxAttempts:   3,
	BaseDelay:     1 * time.Second,
	MaxDelay:      10 * time.Second,
	JitterPercent: 25,
}

// Validate reports a malformed config. A malformed config is a programming error.
func (c Config) Validate() error {
	var errs []error
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be >= 1, got %d", c.MaxAttempts))
	}
	if c.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("base delay must be > 0, got %v", c.BaseDelay))
	}
	if c.MaxDelay < c.BaseDelay {
		errs = append(errs, fmt.Errorf("max delay %v is below base delay %v", c.MaxDelay, c.BaseDelay))
	}
	if c.JitterPercent < 0 || c.JitterPercent > 100 {
		errs = append(errs, fmt.Errorf("jitter percent must be within [0,100], got %v", c.JitterPercent))
	}
	return errors.Join(errs...)
}

// Policy is an immutable retry policy.
type Policy struct {
	cfg    Config
	random func() float64 // uniform in [0,1)
}

// NewPolicy validates cfg and builds a Policy.
func NewPolicy(cfg Config) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	return &Policy{cfg: cfg, random: rand.Float64}, nil
}

// MustPolicy is NewPolicy for configs known at compile time.
func MustPolicy(cfg Config) *Policy {
	p, err := NewPolicy(cfg)
	if err != nil {
		panic(err)
	}
	return p
}

// Config returns the policy's configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// ShouldRetry reports whether attempt (zero-based) may be followed by another one.
// The last permitted attempt is MaxAttempts-1; nothing after it is retried.
func (p *Policy) ShouldRetry(attempt int, err domain.NetworkError) bool {
	return attempt < p.cfg.MaxAttempts-1 && err.Retryable
}

// Delay returns the wait before the attempt following attempt, with jitter applied.
// The result is always within [0, MaxDelay].
func (p *Policy) Delay(attempt int) time.Duration {
	delay := float64(Backoff(attempt, p.cfg.BaseDelay, p.cfg.MaxDelay))

	if p.cfg.JitterPercent > 0 {
		spread := delay * p.cfg.JitterPercent / 100
		delay += (p.random()*2 - 1) * spread
	}

	return clamp(delay, p.cfg.MaxDelay)
}

// Reset exists for callers that expect a resettable policy; there is nothing to reset.
func (p *Policy) Reset() {}

// Backoff is the un-jittered exponential shape base*2^attempt capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(base) * math.Pow(2, float64(attempt))
	return clamp(delay, max)
}

func clamp(delay float64, max time.Duration) time.Duration {
	if delay < 0 || math.IsNaN(delay) {
		return 0
	}
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}

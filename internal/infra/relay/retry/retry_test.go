package retry

import (
	"testing"
	"time"

	"github.com/vietddude/relaychat/internal/core/domain"
)

var (
	retryableErr    = domain.NetworkError{Type: domain.ErrorTypeHTTP, StatusCode: 503, Retryable: true}
	nonRetryableErr = domain.NetworkError{Type: domain.ErrorTypeHTTP, StatusCode: 400, Retryable: false}
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig, false},
		{"zero attempts", Config{MaxAttempts: 0, BaseDelay: time.Second, MaxDelay: time.Second}, true},
		{"zero base", Config{MaxAttempts: 1, BaseDelay: 0, MaxDelay: time.Second}, true},
		{"max below base", Config{MaxAttempts: 1, BaseDelay: 2 * time.Second, MaxDelay: time.Second}, true},
		{"jitter too big", Config{MaxAttempts: 1, BaseDelay: time.Second, MaxDelay: time.Second, JitterPercent: 101}, true},
		{"negative jitter", Config{MaxAttempts: 1, BaseDelay: time.Second, MaxDelay: time.Second, JitterPercent: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMustPolicy_PanicsOnMalformedConfig(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustPolicy(Config{})
}

func TestShouldRetry_Boundary(t *testing.T) {
	p := MustPolicy(Config{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second})

	for a := 0; a < 2; a++ {
		if !p.ShouldRetry(a, retryableErr) {
			t.Errorf("ShouldRetry(%d, retryable) = false, want true", a)
		}
		if p.ShouldRetry(a, nonRetryableErr) {
			t.Errorf("ShouldRetry(%d, non-retryable) = true, want false", a)
		}
	}
	for a := 2; a < 6; a++ {
		if p.ShouldRetry(a, retryableErr) {
			t.Errorf("ShouldRetry(%d, retryable) = true, want false", a)
		}
	}
}

func TestShouldRetry_SingleAttempt(t *testing.T) {
	p := MustPolicy(Config{MaxAttempts: 1, BaseDelay: time.Second, MaxDelay: time.Second})
	if p.ShouldRetry(0, retryableErr) {
		t.Error("a single-attempt policy must never retry")
	}
}

func TestDelay_WithinBounds(t *testing.T) {
	cfg := Config{MaxAttempts: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second, JitterPercent: 100}
	p := MustPolicy(cfg)

	for a := 0; a < 12; a++ {
		for i := 0; i < 200; i++ {
			d := p.Delay(a)
			if d < 0 || d > cfg.MaxDelay {
				t.Fatalf("Delay(%d) = %v, outside [0, %v]", a, d, cfg.MaxDelay)
			}
		}
	}
}

func TestDelay_NoJitterIsExponential(t *testing.T) {
	p := MustPolicy(Config{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second, // capped
		time.Second,
	}
	for a, w := range want {
		if got := p.Delay(a); got != w {
			t.Errorf("Delay(%d) = %v, want %v", a, got, w)
		}
	}
}

func TestDelay_JitterVaries(t *testing.T) {
	p := MustPolicy(Config{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Minute, JitterPercent: 25})

	seen := make(map[time.Duration]struct{})
	for i := 0; i < 50; i++ {
		d := p.Delay(1)
		if d < 1500*time.Millisecond || d > 2500*time.Millisecond {
			t.Fatalf("Delay(1) = %v, outside +-25%% of 2s", d)
		}
		seen[d] = struct{}{}
	}
	if len(seen) < 2 {
		t.Error("expected jittered delays to vary across calls")
	}
}

func TestDelay_GrowsInExpectation(t *testing.T) {
	p := MustPolicy(Config{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Hour, JitterPercent: 50})

	mean := func(a int) time.Duration {
		var sum time.Duration
		for i := 0; i < 500; i++ {
			sum += p.Delay(a)
		}
		return sum / 500
	}

	prev := mean(0)
	for a := 1; a < 5; a++ {
		cur := mean(a)
		if cur <= prev {
			t.Errorf("mean Delay(%d) = %v, not above mean Delay(%d) = %v", a, cur, a-1, prev)
		}
		prev = cur
	}
}

func TestDelay_FixedRandom(t *testing.T) {
	p := MustPolicy(Config{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, JitterPercent: 50})

	p.random = func() float64 { return 0 } // -50%
	if got := p.Delay(0); got != 500*time.Millisecond {
		t.Errorf("low jitter: Delay(0) = %v, want 500ms", got)
	}
	p.random = func() float64 { return 1 } // +50%, clamped at max
	if got := p.Delay(4); got != 10*time.Second {
		t.Errorf("high jitter: Delay(4) = %v, want 10s", got)
	}
}

func TestBackoff(t *testing.T) {
	if got := Backoff(-1, time.Second, time.Minute); got != time.Second {
		t.Errorf("Backoff(-1) = %v, want 1s", got)
	}
	if got := Backoff(100, time.Second, time.Minute); got != time.Minute {
		t.Errorf("Backoff(100) = %v, want cap", got)
	}
}

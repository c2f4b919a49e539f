package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.home.luguber.info/inful/dashlink/internal/config"
	ferrors "git.home.luguber.info/inful/dashlink/internal/foundation/errors"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Mode != config.RetryBackoffLinear {
		t.Fatalf("expected linear default mode got %s", p.Mode)
	}
	if p.MaxRetries != 0 {
		t.Fatalf("expected retries disabled by default, got %d", p.MaxRetries)
	}
}

func TestNewPolicyClampsInitial(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 5*time.Second, 2*time.Second, 5)
	if p.Initial != 2*time.Second {
		t.Fatalf("expected clamped initial 2s got %v", p.Initial)
	}
	if p.Mode != config.RetryBackoffFixed || p.MaxRetries != 5 {
		t.Fatalf("unexpected policy %+v", p)
	}
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(config.RetryConfig{Backoff: "exponential", InitialDelay: "100ms", MaxDelay: "1s", MaxRetries: 3})
	if p.Mode != config.RetryBackoffExponential || p.Initial != 100*time.Millisecond || p.Max != time.Second || p.MaxRetries != 3 {
		t.Fatalf("unexpected policy %+v", p)
	}
}

func TestDelayModes(t *testing.T) {
	ms := time.Millisecond
	cases := []struct {
		name    string
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{"fixed", NewPolicy(config.RetryBackoffFixed, 100*ms, 500*ms, 3), 3, 100 * ms},
		{"linear 1", NewPolicy(config.RetryBackoffLinear, 100*ms, 250*ms, 5), 1, 100 * ms},
		{"linear 2", NewPolicy(config.RetryBackoffLinear, 100*ms, 250*ms, 5), 2, 200 * ms},
		{"linear capped", NewPolicy(config.RetryBackoffLinear, 100*ms, 250*ms, 5), 3, 250 * ms},
		{"exp 2", NewPolicy(config.RetryBackoffExponential, 50*ms, 160*ms, 5), 2, 100 * ms},
		{"exp capped", NewPolicy(config.RetryBackoffExponential, 50*ms, 160*ms, 5), 3, 160 * ms},
		{"exp overflow", NewPolicy(config.RetryBackoffExponential, 50*ms, 160*ms, 5), 64, 160 * ms},
		{"zero attempt", NewPolicy(config.RetryBackoffLinear, 10*ms, 20*ms, 1), 0, 0},
	}
	for _, c := range cases {
		if got := c.policy.Delay(c.attempt); got != c.want {
			t.Fatalf("%s: expected %v got %v", c.name, c.want, got)
		}
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 3)
	calls := 0
	retries := 0
	err := p.Do(t.Context(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(int, error) { retries++ })
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 || retries != 2 {
		t.Fatalf("expected 3 calls and 2 retries, got %d and %d", calls, retries)
	}
}

func TestDoStopsOnFatal(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 5)
	calls := 0
	err := p.Do(t.Context(), func(context.Context) error {
		calls++
		return ferrors.ValidationError("bad batch").Build()
	}, nil)
	if err == nil || calls != 1 {
		t.Fatalf("expected one call and an error, got %d calls err=%v", calls, err)
	}
}

func TestDoHonoursContext(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Hour, time.Hour, 1)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := p.Do(ctx, func(context.Context) error { return errors.New("x") }, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

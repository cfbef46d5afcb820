package fallback

import (
	"testing"
	"time"

	"github.com/hyperlab-be/ralph/internal/clock"
)

func TestGetAgentForIterationDefaultsToPrimary(t *testing.T) {
	o := New(ChainConfig{Primary: "claude", Chain: []string{"opencode"}, Enabled: true, Cooldown: time.Minute}, clock.NewFake(time.Now()))
	if got := o.GetAgentForIteration(); got != "claude" {
		t.Errorf("got %q, want claude", got)
	}
}

func TestReportErrorCoolsPrimaryAndSwitchesToFallback(t *testing.T) {
	fake := clock.NewFake(time.Now())
	o := New(ChainConfig{Primary: "claude", Chain: []string{"opencode"}, Enabled: true, Cooldown: time.Minute}, fake)

	next := o.ReportError("claude", true)
	if next != "opencode" {
		t.Errorf("ReportError returned %q, want opencode", next)
	}
	if got := o.GetAgentForIteration(); got != "opencode" {
		t.Errorf("GetAgentForIteration() = %q, want opencode", got)
	}
}

func TestReportErrorNonRateLimitDoesNotCool(t *testing.T) {
	fake := clock.NewFake(time.Now())
	o := New(ChainConfig{Primary: "claude", Chain: []string{"opencode"}, Enabled: true, Cooldown: time.Minute}, fake)

	next := o.ReportError("claude", false)
	if next != "" {
		t.Errorf("expected empty string for non-rate-limit error, got %q", next)
	}
	if got := o.GetAgentForIteration(); got != "claude" {
		t.Errorf("got %q, want claude still primary", got)
	}
}

func TestCooldownExpiresAfterAdvance(t *testing.T) {
	fake := clock.NewFake(time.Now())
	o := New(ChainConfig{Primary: "claude", Chain: nil, Enabled: false, Cooldown: time.Minute}, fake)

	o.ReportError("claude", true)
	fake.Advance(2 * time.Minute)
	if got := o.GetAgentForIteration(); got != "claude" {
		t.Errorf("expected primary available again after cooldown elapses, got %q", got)
	}
}

func TestReportSuccessClearsStreak(t *testing.T) {
	fake := clock.NewFake(time.Now())
	o := New(ChainConfig{Primary: "claude", Enabled: false, Cooldown: time.Minute}, fake)
	o.ReportError("claude", true)
	o.ReportSuccess("claude")

	stats := o.Stats()
	if len(stats) != 1 || stats[0].ConsecutiveRateLimit != 0 || !stats[0].Available {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestAllCoolingFallsBackToPrimary(t *testing.T) {
	fake := clock.NewFake(time.Now())
	o := New(ChainConfig{Primary: "claude", Chain: []string{"opencode"}, Enabled: true, Cooldown: time.Hour}, fake)
	o.ReportError("claude", true)
	o.ReportError("opencode", true)
	if got := o.GetAgentForIteration(); got != "claude" {
		t.Errorf("got %q, want primary returned when all cooling", got)
	}
}

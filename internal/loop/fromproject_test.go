package loop

import (
	"testing"
	"time"

	"github.com/hyperlab-be/ralph/internal/config"
)

func TestConfigFromProjectMapsRalphAndAgentsTables(t *testing.T) {
	pc := &config.ProjectConfig{
		Ralph: config.RalphConfig{
			PrdName:           "feature",
			MaxIterations:     20,
			MaxCostUSD:        5.5,
			CompletionPromise: "<done/>",
			UseWorktree:       true,
			ErrorStrategy:     "skip",
			AgentTimeoutSecs:  120,
			AssignmentStaleSecs: 90,
			Retry: config.RetryTuning{
				MaxAttempts: 4, InitialDelayMs: 500, MaxDelayMs: 8000, BackoffMultiplier: 2.5,
			},
			Fallback: config.FallbackTuning{
				Primary: "claude", Chain: []string{"codex"}, CooldownSecs: 30, Enabled: true,
			},
		},
		Agents: map[string]config.AgentTypeSpec{
			"claude": {Program: "claude", Args: []string{"--print", "-p"}},
			"codex":  {Program: "codex", Args: []string{"exec"}},
		},
	}

	cfg := ConfigFromProject("/work/proj", pc)

	if cfg.ProjectPath != "/work/proj" || cfg.PrdName != "feature" {
		t.Fatalf("unexpected base fields: %+v", cfg)
	}
	if cfg.MaxIterations != 20 || cfg.MaxCostUSD != 5.5 || !cfg.UseWorktree {
		t.Fatalf("unexpected ralph fields: %+v", cfg)
	}
	if cfg.AssignmentStaleAfter != 90*time.Second {
		t.Fatalf("unexpected assignment stale mapping: %v", cfg.AssignmentStaleAfter)
	}
	if cfg.RetryConfig.MaxAttempts != 4 || cfg.RetryConfig.BackoffMultiplier != 2.5 {
		t.Fatalf("unexpected retry mapping: %+v", cfg.RetryConfig)
	}
	if cfg.FallbackConfig.Primary != "claude" || len(cfg.FallbackConfig.Chain) != 1 || cfg.FallbackConfig.Cooldown.Seconds() != 30 {
		t.Fatalf("unexpected fallback mapping: %+v", cfg.FallbackConfig)
	}
	if len(cfg.Agents) != 2 || cfg.Agents["codex"].Program != "codex" {
		t.Fatalf("unexpected agents mapping: %+v", cfg.Agents)
	}
}

func TestConfigFromProjectFallsBackToLegacyAgentTable(t *testing.T) {
	pc := &config.ProjectConfig{
		Agent:  config.AgentConfig{Model: "claude"},
		Agents: map[string]config.AgentTypeSpec{"claude": {Program: "claude"}},
	}

	cfg := ConfigFromProject("/work/proj", pc)
	if cfg.FallbackConfig.Primary != "claude" {
		t.Fatalf("expected legacy agent table to seed the primary, got %+v", cfg.FallbackConfig)
	}
}

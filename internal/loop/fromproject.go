package loop

import (
	"time"

	"github.com/hyperlab-be/ralph/internal/config"
	"github.com/hyperlab-be/ralph/internal/fallback"
	"github.com/hyperlab-be/ralph/internal/retry"
)

// ConfigFromProject builds a RalphLoop Config from a loaded ralph.toml,
// leaving fields the project config doesn't set at RalphLoop's own
// defaults (applied by New via Config.applyDefaults).
func ConfigFromProject(projectPath string, pc *config.ProjectConfig) Config {
	cfg := Config{
		ProjectPath:       projectPath,
		PrdName:           pc.Ralph.PrdName,
		MaxIterations:     pc.Ralph.MaxIterations,
		MaxCostUSD:        pc.Ralph.MaxCostUSD,
		CompletionPromise: pc.Ralph.CompletionPromise,
		UseWorktree:       pc.Ralph.UseWorktree,
		ErrorStrategy:     pc.Ralph.ErrorStrategy,
		AgentTimeoutSecs:  pc.Ralph.AgentTimeoutSecs,
		AssignmentStaleAfter: time.Duration(pc.Ralph.AssignmentStaleSecs) * time.Second,
		RetryConfig: retry.Config{
			MaxAttempts:       pc.Ralph.Retry.MaxAttempts,
			InitialDelayMs:    pc.Ralph.Retry.InitialDelayMs,
			MaxDelayMs:        pc.Ralph.Retry.MaxDelayMs,
			BackoffMultiplier: pc.Ralph.Retry.BackoffMultiplier,
		},
		FallbackConfig: fallback.ChainConfig{
			Primary:  pc.Ralph.Fallback.Primary,
			Chain:    pc.Ralph.Fallback.Chain,
			Cooldown: time.Duration(pc.Ralph.Fallback.CooldownSecs) * time.Second,
			Enabled:  pc.Ralph.Fallback.Enabled,
		},
		Agents: make(map[string]AgentSpec, len(pc.Agents)),
	}
	for name, spec := range pc.Agents {
		cfg.Agents[name] = AgentSpec{Program: spec.Program, Args: spec.Args}
	}
	if cfg.FallbackConfig.Primary == "" && pc.Agent.Model != "" {
		// No [ralph.fallback] configured: fall back to a single agent
		// type named after the legacy [agent] table, if one was wired
		// in under that name in [agents].
		if _, ok := cfg.Agents[pc.Agent.Model]; ok {
			cfg.FallbackConfig.Primary = pc.Agent.Model
		}
	}
	return cfg
}

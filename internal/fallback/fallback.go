// Package fallback implements FallbackOrchestrator: when the primary
// agent type is rate-limited, transparently switch to another configured
// agent type for the next iteration, with per-agent cooldowns that back
// off exponentially on repeated rate limits.
package fallback

import (
	"math"
	"time"

	"github.com/hyperlab-be/ralph/internal/clock"
)

// ChainConfig describes the fallback chain and whether it's enabled.
type ChainConfig struct {
	Primary  string
	Chain    []string
	Cooldown time.Duration
	Enabled  bool
}

type agentState struct {
	availableAt          time.Time
	consecutiveRateLimit int
}

// Orchestrator tracks per-agent-type availability.
type Orchestrator struct {
	cfg   ChainConfig
	clock clock.Clock
	state map[string]*agentState
}

// New returns an Orchestrator for cfg, using clk for cooldown timing.
func New(cfg ChainConfig, clk clock.Clock) *Orchestrator {
	if clk == nil {
		clk = clock.System{}
	}
	return &Orchestrator{cfg: cfg, clock: clk, state: make(map[string]*agentState)}
}

func (o *Orchestrator) stateFor(agent string) *agentState {
	s, ok := o.state[agent]
	if !ok {
		s = &agentState{}
		o.state[agent] = s
	}
	return s
}

// candidates returns primary followed by the fallback chain.
func (o *Orchestrator) candidates() []string {
	if !o.cfg.Enabled {
		return []string{o.cfg.Primary}
	}
	out := make([]string, 0, len(o.cfg.Chain)+1)
	out = append(out, o.cfg.Primary)
	out = append(out, o.cfg.Chain...)
	return out
}

// GetAgentForIteration returns the first candidate whose cooldown has
// elapsed. If every candidate is cooling, it returns the primary anyway;
// the loop will run and likely re-hit the limit, which is an acceptable
// worst case.
func (o *Orchestrator) GetAgentForIteration() string {
	now := o.clock.Now()
	for _, agent := range o.candidates() {
		s := o.stateFor(agent)
		if !now.Before(s.availableAt) {
			return agent
		}
	}
	return o.cfg.Primary
}

// ReportSuccess clears an agent's rate-limit streak and marks it
// immediately available.
func (o *Orchestrator) ReportSuccess(agent string) {
	s := o.stateFor(agent)
	s.consecutiveRateLimit = 0
	s.availableAt = o.clock.Now()
}

// ReportError records a failure for agent. When isRateLimit is true it
// applies exponential cooldown and returns the next candidate that would
// currently be chosen; otherwise it returns "" (no fallback switch).
func (o *Orchestrator) ReportError(agent string, isRateLimit bool) string {
	if !isRateLimit {
		return ""
	}
	s := o.stateFor(agent)
	backoff := time.Duration(float64(o.cfg.Cooldown) * math.Pow(2, float64(s.consecutiveRateLimit)))
	s.availableAt = o.clock.Now().Add(backoff)
	s.consecutiveRateLimit++
	return o.GetAgentForIteration()
}

// AgentStats reports current cooldown state for one agent type.
type AgentStats struct {
	Agent                string
	Available            bool
	ConsecutiveRateLimit int
}

// Stats returns current availability and rate-limit counts for every
// agent in the chain.
func (o *Orchestrator) Stats() []AgentStats {
	now := o.clock.Now()
	out := make([]AgentStats, 0, len(o.candidates()))
	for _, agent := range o.candidates() {
		s := o.stateFor(agent)
		out = append(out, AgentStats{
			Agent:                agent,
			Available:            !now.Before(s.availableAt),
			ConsecutiveRateLimit: s.consecutiveRateLimit,
		})
	}
	return out
}

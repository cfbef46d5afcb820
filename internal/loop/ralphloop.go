// RalphLoop is the outer state machine that drives one PRD to
// completion: regenerate the brief, spawn an agent, retry or fall back
// on failure, cross-check the completion promise against the PRD, and
// checkpoint after every iteration so a crash can resume cleanly.
//
// It composes every other internal package into a reusable driver that
// cmd/ wraps with cobra commands instead of owning the loop itself.
package loop

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hyperlab-be/ralph/internal/agentmgr"
	"github.com/hyperlab-be/ralph/internal/assignments"
	"github.com/hyperlab-be/ralph/internal/brief"
	"github.com/hyperlab-be/ralph/internal/clock"
	"github.com/hyperlab-be/ralph/internal/completion"
	"github.com/hyperlab-be/ralph/internal/eventbus"
	"github.com/hyperlab-be/ralph/internal/fallback"
	"github.com/hyperlab-be/ralph/internal/fsstore"
	"github.com/hyperlab-be/ralph/internal/learnings"
	"github.com/hyperlab-be/ralph/internal/prd"
	"github.com/hyperlab-be/ralph/internal/progress"
	"github.com/hyperlab-be/ralph/internal/prompt"
	"github.com/hyperlab-be/ralph/internal/ratelimit"
	"github.com/hyperlab-be/ralph/internal/retry"
	"github.com/hyperlab-be/ralph/internal/streamparse"
	"github.com/hyperlab-be/ralph/internal/worktree"
)

// Phase is one state in the RalphLoop state machine.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseRetrying  Phase = "retrying"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
	PhasePaused    Phase = "paused"
)

// State is the RalphLoop's current point-in-time status.
type State struct {
	Phase     Phase
	Iteration int
	Attempt   int
	Reason    string
	DelayMs   int64
}

// AgentSpec names the executable and fixed argument prefix for one agent
// type. The iteration prompt is appended as the trailing argument, the
// same shape as a `claude --print --dangerously-skip-permissions -p
// <prompt>` invocation.
type AgentSpec struct {
	Program string
	Args    []string
}

// buildArgs returns the full argv for a spawn: the spec's fixed prefix
// followed by the rendered prompt as the final argument.
func (s AgentSpec) buildArgs(promptText string) []string {
	args := make([]string, len(s.Args)+1)
	copy(args, s.Args)
	args[len(s.Args)] = promptText
	return args
}

// Config configures one RalphLoop execution.
type Config struct {
	ExecutionID string
	ProjectPath string
	PrdName     string

	Agents    map[string]AgentSpec
	AgentDir  string // cwd for spawned agent processes; defaults to ProjectPath
	AgentEnv  []string

	MaxIterations     int
	MaxCostUSD        float64
	CompletionPromise string
	PromptTemplate    string

	UseWorktree bool

	RetryConfig      retry.Config
	ErrorStrategy    string // "retry" | "skip" | "abort"
	FallbackConfig   fallback.ChainConfig
	AgentTimeoutSecs int

	// AssignmentStaleAfter is how long an active assignment may go without
	// a heartbeat before Init's resume reaping releases it.
	AssignmentStaleAfter time.Duration
}

const (
	ErrorStrategyRetry = "retry"
	ErrorStrategySkip  = "skip"
	ErrorStrategyAbort = "abort"
)

func (c *Config) applyDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 50
	}
	if c.CompletionPromise == "" {
		c.CompletionPromise = completion.DefaultPromise
	}
	if c.ErrorStrategy == "" {
		c.ErrorStrategy = ErrorStrategyRetry
	}
	if c.RetryConfig.MaxAttempts == 0 {
		c.RetryConfig = retry.DefaultConfig()
	}
	if c.AgentDir == "" {
		c.AgentDir = c.ProjectPath
	}
	if c.AssignmentStaleAfter <= 0 {
		c.AssignmentStaleAfter = 10 * time.Minute
	}
}

// heartbeatInterval is how often spawnAndWait touches the active
// assignment's heartbeat while an agent attempt is running.
const heartbeatInterval = 5 * time.Second

// errCancelled signals that the RalphLoop was cancelled mid-iteration.
var errCancelled = errors.New("ralphloop: cancelled")

// RalphLoop drives a single PRD execution through to completion, crash,
// cancellation, or iteration/cost exhaustion.
type RalphLoop struct {
	cfg         Config
	clock       clock.Clock
	bus         *eventbus.Bus
	agentMgr    *agentmgr.Manager
	fallbackOrc *fallback.Orchestrator
	worktreePool *worktree.Pool
	executionID string

	uiRoot      string
	briefDir    string
	worktreePath string
	branch      string

	prdStore  *prd.Store
	prog      *progress.Tracker
	assignMgr *assignments.Manager
	learnMgr  *learnings.Manager
	briefB    *brief.Builder
	promptB   *prompt.Builder
	detector  *completion.Detector

	mu           sync.Mutex
	state        State
	totalCostUSD float64
	totalDurMs   int64

	cancelled   atomic.Bool
	pauseReq    atomic.Bool
	pauseReason string
}

// New returns a RalphLoop ready for Init. clk and bus may be nil (a
// system clock and a no-op unstarted bus are used respectively).
func New(cfg Config, clk clock.Clock, bus *eventbus.Bus) *RalphLoop {
	cfg.applyDefaults()
	if clk == nil {
		clk = clock.System{}
	}
	executionID := cfg.ExecutionID
	if executionID == "" {
		executionID = "exec-" + uuid.NewString()
	}
	return &RalphLoop{
		cfg:          cfg,
		clock:        clk,
		bus:          bus,
		executionID:  executionID,
		agentMgr:     agentmgr.New(),
		fallbackOrc:  fallback.New(cfg.FallbackConfig, clk),
		worktreePool: worktree.New(cfg.ProjectPath),
		detector:     completion.New(cfg.CompletionPromise),
	}
}

// ExecutionID returns the execution id stamped into assignments.json and
// every published status event.
func (l *RalphLoop) ExecutionID() string { return l.executionID }

// State returns the current state under lock.
func (l *RalphLoop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *RalphLoop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	l.publish("")
}

// Cancel requests the loop stop at its next checkpoint, killing any
// in-flight agent.
func (l *RalphLoop) Cancel() {
	l.cancelled.Store(true)
	l.agentMgr.KillAll()
}

// Pause requests the loop stop after the current iteration completes,
// rather than mid-iteration like Cancel. reason is carried into the
// Paused state.
func (l *RalphLoop) Pause(reason string) {
	l.pauseReq.Store(true)
	l.mu.Lock()
	l.pauseReason = reason
	l.mu.Unlock()
}

// Init creates/loads the PRD, initializes the progress/assignments/
// learnings files and the initial brief, detects a resumable checkpoint,
// and (if configured) sets up the worktree. It returns the iteration
// number Run should start at.
func (l *RalphLoop) Init(seed *prd.PRD) (int, error) {
	mainRoot := filepath.Join(l.cfg.ProjectPath, ".ralph-ui")
	mainPrdStore := prd.NewStore(mainRoot, l.cfg.PrdName)

	if !mainPrdStore.Exists() {
		if seed == nil {
			return 0, fmt.Errorf("ralphloop: prd %q does not exist and no seed was provided", l.cfg.PrdName)
		}
		if err := mainPrdStore.Save(seed); err != nil {
			return 0, fmt.Errorf("ralphloop: seed prd: %w", err)
		}
	}

	p, err := mainPrdStore.Load()
	if err != nil {
		return 0, fmt.Errorf("ralphloop: load prd: %w", err)
	}

	mainProgress := progress.New(mainPrdStore.ProgressPath(), l.clock)
	if err := mainProgress.Initialize(); err != nil {
		return 0, fmt.Errorf("ralphloop: init progress: %w", err)
	}

	l.briefDir = filepath.Join(mainRoot, "briefs", fsstore.SanitizeComponent(l.cfg.PrdName))
	l.assignMgr = assignments.New(filepath.Join(l.briefDir, "assignments.json"), l.clock)
	if err := l.assignMgr.Initialize(l.executionID); err != nil {
		return 0, fmt.Errorf("ralphloop: init assignments: %w", err)
	}
	if reaped, err := l.assignMgr.ReapStale(l.cfg.AssignmentStaleAfter); err == nil && len(reaped) > 0 {
		mainProgress.AddNote(0, progress.NoteGeneral, fmt.Sprintf("reclaimed %d stale assignment(s) on resume: %v", len(reaped), reaped))
	}
	l.learnMgr = learnings.New(filepath.Join(l.briefDir, "learnings.json"), l.clock)
	if err := l.learnMgr.Initialize(); err != nil {
		return 0, fmt.Errorf("ralphloop: init learnings: %w", err)
	}
	l.briefB = brief.New(l.briefDir, l.clock, l.assignMgr, l.learnMgr)

	initialBody, err := l.briefB.Generate(p, "", 0)
	if err != nil {
		return 0, fmt.Errorf("ralphloop: generate initial brief: %w", err)
	}
	if err := l.briefB.Persist(initialBody, 0); err != nil {
		return 0, fmt.Errorf("ralphloop: persist initial brief: %w", err)
	}

	startIteration := 1
	if l.assignMgr.CanResume() {
		last, err := l.assignMgr.GetCurrentIteration()
		if err != nil {
			return 0, fmt.Errorf("ralphloop: read resume checkpoint: %w", err)
		}
		startIteration = last + 1
	}

	activeRoot := mainRoot
	l.branch = p.Branch
	if l.cfg.UseWorktree {
		res, err := l.worktreePool.Setup(p.Branch, l.cfg.PrdName)
		if err != nil {
			return 0, fmt.Errorf("ralphloop: setup worktree: %w", err)
		}
		activeRoot = filepath.Join(res.Path, ".ralph-ui")
		l.worktreePath = res.Path
		l.branch = res.Branch

		p.Metadata.LastWorktreePath = res.Path
		if err := mainPrdStore.Save(p); err != nil {
			return 0, fmt.Errorf("ralphloop: record worktree path: %w", err)
		}
	}

	l.uiRoot = activeRoot
	l.prdStore = prd.NewStore(activeRoot, l.cfg.PrdName)
	l.prog = progress.New(l.prdStore.ProgressPath(), l.clock)
	if err := l.prog.Initialize(); err != nil {
		return 0, fmt.Errorf("ralphloop: init active progress: %w", err)
	}
	l.promptB = prompt.New(l.cfg.PromptTemplate, l.cfg.CompletionPromise)

	l.setState(State{Phase: PhaseIdle, Iteration: startIteration - 1})
	return startIteration, nil
}

// Run drives the loop from startIteration (as returned by Init) until it
// reaches a terminal or paused state.
func (l *RalphLoop) Run(ctx context.Context, startIteration int) (State, error) {
	stop := make(chan struct{})
	go l.watchControl(ControlPath(l.cfg.ProjectPath, l.cfg.PrdName), stop)
	defer close(stop)

	iteration := startIteration
	for {
		if l.cancelled.Load() {
			return l.finish(State{Phase: PhaseCancelled, Iteration: iteration}), nil
		}
		if l.pauseReq.Load() {
			l.pauseReq.Store(false)
			reason := l.takePauseReason()
			return l.finish(State{Phase: PhasePaused, Iteration: iteration, Reason: reason}), nil
		}
		if iteration > l.cfg.MaxIterations {
			return l.finish(State{Phase: PhaseFailed, Iteration: iteration, Reason: "max iterations reached"}), fmt.Errorf("ralphloop: max iterations reached")
		}
		if l.cfg.MaxCostUSD > 0 && l.totalCostUSD >= l.cfg.MaxCostUSD {
			return l.finish(State{Phase: PhaseFailed, Iteration: iteration, Reason: "max cost exceeded"}), nil
		}

		p, err := l.prdStore.Load()
		if err != nil {
			return l.finish(State{Phase: PhaseFailed, Iteration: iteration, Reason: err.Error()}), err
		}
		if p.AllPass() {
			return l.finish(State{Phase: PhaseCompleted, Iteration: iteration - 1}), nil
		}

		l.setState(State{Phase: PhaseRunning, Iteration: iteration})
		l.prog.StartIteration(iteration)

		outcome, iterErr := l.runIteration(ctx, p, iteration)

		l.totalCostUSD += outcome.costUSD
		l.totalDurMs += outcome.durationMs
		l.prog.EndIteration(iteration, iterErr == nil)

		if iterErr != nil {
			if errors.Is(iterErr, errCancelled) {
				return l.finish(State{Phase: PhaseCancelled, Iteration: iteration}), nil
			}
			switch l.cfg.ErrorStrategy {
			case ErrorStrategySkip:
				l.prog.AddNote(iteration, progress.NoteSkip, fmt.Sprintf("iteration skipped after exhausting retries: %v", iterErr))
				if outcome.agentID != "" {
					_ = l.assignMgr.Release(outcome.agentID)
				}
			case ErrorStrategyAbort:
				return l.finish(State{Phase: PhaseFailed, Iteration: iteration, Reason: iterErr.Error()}), iterErr
			default:
				return l.finish(State{Phase: PhaseFailed, Iteration: iteration, Reason: iterErr.Error()}), iterErr
			}
		} else if outcome.completionClaimed {
			if reloaded, err := l.prdStore.Load(); err == nil && reloaded.AllPass() {
				l.syncBack()
				return l.finish(State{Phase: PhaseCompleted, Iteration: iteration}), nil
			}
			l.prog.AddNote(iteration, progress.NoteGeneral, "agent emitted the completion promise but the prd still has failing stories")
		}

		l.syncBack()
		_ = l.assignMgr.SetIteration(iteration)
		iteration++
	}
}

// iterationOutcome summarizes one completed (possibly retried) iteration.
type iterationOutcome struct {
	agentID           string
	costUSD           float64
	durationMs        int64
	completionClaimed bool
}

// runIteration regenerates the brief, picks an agent type via fallback,
// builds the prompt, then retry-spawns until success, exhaustion, or
// cancellation.
func (l *RalphLoop) runIteration(ctx context.Context, p *prd.PRD, iteration int) (iterationOutcome, error) {
	agentType := l.fallbackOrc.GetAgentForIteration()
	spec, ok := l.cfg.Agents[agentType]
	if !ok {
		return iterationOutcome{}, fmt.Errorf("ralphloop: no AgentSpec configured for agent type %q", agentType)
	}

	current := p.NextStory()
	baseAgentID := fmt.Sprintf("%s-iter-%d", l.executionID, iteration)

	briefBody, err := l.briefB.Generate(p, baseAgentID, iteration)
	if err != nil {
		return iterationOutcome{}, fmt.Errorf("generate brief: %w", err)
	}
	if err := l.briefB.Persist(briefBody, iteration); err != nil {
		return iterationOutcome{}, fmt.Errorf("persist brief: %w", err)
	}
	promptText := l.promptB.BuildIterationPrompt(briefBody, iteration)

	if current != nil {
		if err := l.assignMgr.AssignStoryWithFiles(baseAgentID, agentType, current.ID, nil, iteration); err != nil {
			l.prog.AddNote(iteration, progress.NoteGeneral, fmt.Sprintf("could not record assignment for story %s: %v", current.ID, err))
		}
	}

	var lastErr error
	for attempt := 1; attempt <= l.cfg.RetryConfig.MaxAttempts; attempt++ {
		if l.cancelled.Load() {
			return iterationOutcome{agentID: baseAgentID}, errCancelled
		}
		if attempt > 1 {
			l.setState(State{Phase: PhaseRetrying, Iteration: iteration, Attempt: attempt, Reason: lastErr.Error()})
		}

		agentID := fmt.Sprintf("%s-attempt-%d", baseAgentID, attempt)
		l.publishAgent(agentID)

		result, spawnErr := l.spawnAndWait(ctx, agentID, baseAgentID, spec, promptText)
		if spawnErr != nil {
			lastErr = spawnErr
			if !l.cfg.RetryConfig.ShouldRetryAgent(-1, spawnErr.Error()) {
				return iterationOutcome{agentID: baseAgentID}, spawnErr
			}
			l.sleepBackoff(attempt)
			continue
		}

		isRateLimited := result.rateLimitInfo != nil && result.rateLimitInfo.IsRateLimited
		if isRateLimited {
			l.prog.AddNote(iteration, progress.NoteRateLimit, fmt.Sprintf("agent %s rate-limited on attempt %d", agentType, attempt))
			if next := l.fallbackOrc.ReportError(agentType, true); next != "" && next != agentType {
				if nextSpec, ok := l.cfg.Agents[next]; ok {
					agentType = next
					spec = nextSpec
				}
			}
		}

		if result.success {
			l.fallbackOrc.ReportSuccess(agentType)
			if current != nil {
				_ = l.assignMgr.Complete(baseAgentID)
			}
			added, _ := l.learnMgr.ExtractAndSave(result.outputTail, iteration, storyIDOr(current))
			if added > 0 {
				l.prog.AddNote(iteration, progress.NoteGeneral, fmt.Sprintf("captured %d learnings", added))
			}
			return iterationOutcome{
				agentID:           agentID,
				costUSD:           result.costUSD,
				durationMs:        result.durationMs,
				completionClaimed: result.completionClaimed,
			}, nil
		}

		lastErr = fmt.Errorf("agent exited %d", result.exitCode)
		if !isRateLimited && !l.cfg.RetryConfig.ShouldRetryAgent(result.exitCode, result.outputTail) {
			return iterationOutcome{agentID: agentID}, lastErr
		}
		l.prog.AddNote(iteration, progress.NoteRetry, retry.FormatRetryNote(attempt, lastErr.Error(), l.cfg.RetryConfig.DelayForAttempt(attempt)))
		l.sleepBackoff(attempt)
	}

	if current != nil {
		_ = l.assignMgr.Release(baseAgentID)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("exhausted %d attempts", l.cfg.RetryConfig.MaxAttempts)
	}
	return iterationOutcome{agentID: baseAgentID}, lastErr
}

func storyIDOr(s *prd.Story) string {
	if s == nil {
		return ""
	}
	return s.ID
}

func (l *RalphLoop) sleepBackoff(attempt int) {
	delay := l.cfg.RetryConfig.DelayForAttempt(attempt)
	deadline := l.clock.Now().Add(delay)
	for l.clock.Now().Before(deadline) {
		if l.cancelled.Load() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// spawnResult is the outcome of one spawn-and-wait attempt.
type spawnResult struct {
	success           bool
	exitCode          int
	outputTail        string
	completionClaimed bool
	rateLimitInfo     *ratelimit.Info
	costUSD           float64
	durationMs        int64
}

// costPattern pulls total_cost_usd out of a stream-json result line; the
// ambient stream parser doesn't surface it, so the loop extracts it
// directly from the raw captured output.
var costPattern = regexp.MustCompile(`"total_cost_usd"\s*:\s*([0-9.]+)`)
var durationPattern = regexp.MustCompile(`"duration_ms"\s*:\s*([0-9]+)`)

// spawnAndWait spawns one agent attempt, takes it out of the manager
// immediately so the poll-wait below doesn't race the manager's own
// monitor goroutine, and polls every 250ms for either exit, cancellation,
// or timeout. assignmentID, if non-empty, is heartbeated periodically so
// a crash mid-attempt doesn't leave a dangling active assignment.
func (l *RalphLoop) spawnAndWait(ctx context.Context, agentID, assignmentID string, spec AgentSpec, promptText string) (spawnResult, error) {
	args := spec.buildArgs(promptText)
	if _, err := l.agentMgr.Spawn(ctx, agentID, agentmgr.SpawnConfig{
		Program: spec.Program,
		Args:    args,
		Dir:     l.cfg.AgentDir,
		Env:     l.cfg.AgentEnv,
		Flavor:  streamparse.FlavorStreamJSON,
	}); err != nil {
		return spawnResult{}, fmt.Errorf("spawn: %w", err)
	}

	handle, err := l.agentMgr.TakeChild(agentID)
	if err != nil {
		return spawnResult{}, fmt.Errorf("take child: %w", err)
	}

	var timeoutAt time.Time
	if l.cfg.AgentTimeoutSecs > 0 {
		timeoutAt = l.clock.Now().Add(time.Duration(l.cfg.AgentTimeoutSecs) * time.Second)
	}

	var exitCode int
	nextHeartbeat := l.clock.Now().Add(heartbeatInterval)
	for {
		if code, ok := handle.TryWait(ctx); ok {
			exitCode = code
			break
		}
		if l.cancelled.Load() {
			_ = handle.Kill()
			handle.Wait()
			return spawnResult{}, errCancelled
		}
		if !timeoutAt.IsZero() && l.clock.Now().After(timeoutAt) {
			_ = handle.Kill()
			handle.Wait()
			l.agentMgr.EmitAgentExit(agentID, -1)
			return spawnResult{success: false, exitCode: -1, outputTail: string(handle.History())}, nil
		}
		if assignmentID != "" && l.clock.Now().After(nextHeartbeat) {
			_ = l.assignMgr.Heartbeat(assignmentID, l.clock.Now())
			nextHeartbeat = l.clock.Now().Add(heartbeatInterval)
		}
		time.Sleep(250 * time.Millisecond)
	}
	l.agentMgr.EmitAgentExit(agentID, exitCode)

	output := string(handle.History())
	tail := output
	if len(tail) > 4096 {
		tail = tail[len(tail)-4096:]
	}

	res := spawnResult{
		success:           exitCode == 0,
		exitCode:          exitCode,
		outputTail:        tail,
		completionClaimed: l.detector.Check(output),
		rateLimitInfo:     ratelimit.Detect(tail),
	}
	if m := costPattern.FindStringSubmatch(output); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			res.costUSD = v
		}
	}
	if m := durationPattern.FindStringSubmatch(output); m != nil {
		if v, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			res.durationMs = v
		}
	}
	return res, nil
}

// syncBack copies the active PRD/progress state back into the main
// project when running out of a worktree: the main checkout must
// reflect progress even if the loop is killed before a clean finish.
func (l *RalphLoop) syncBack() {
	if !l.cfg.UseWorktree || l.worktreePath == "" {
		return
	}
	_ = l.worktreePool.SyncBack(l.worktreePath, l.cfg.PrdName)
}

func (l *RalphLoop) finish(s State) State {
	l.setState(s)
	return s
}

func (l *RalphLoop) takePauseReason() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.pauseReason
	l.pauseReason = ""
	return r
}

// publish emits the current state as a status event plus snapshot. It is
// a no-op if no bus was supplied.
func (l *RalphLoop) publish(currentAgentID string) {
	if l.bus == nil {
		return
	}
	l.mu.Lock()
	s := l.state
	l.mu.Unlock()

	var prdStatus *eventbus.PrdStatus
	if l.prdStore != nil {
		if p, err := l.prdStore.Load(); err == nil {
			completed, total := p.CompletedCount()
			_ = total
			ids := make([]string, 0, completed)
			for _, story := range p.Stories {
				if story.Passes {
					ids = append(ids, story.ID)
				}
			}
			var currentStory string
			if next := p.NextStory(); next != nil {
				currentStory = next.ID
			}
			prdStatus = &eventbus.PrdStatus{AllPass: p.AllPass(), CurrentStory: currentStory, CompletedIDs: ids}
		}
	}

	metrics := &eventbus.IterationMetrics{
		Iteration:       s.Iteration,
		TotalCostUSD:    l.totalCostUSD,
		TotalDurationMs: l.totalDurMs,
	}
	if prdStatus != nil {
		metrics.StoriesPassed = len(prdStatus.CompletedIDs)
	}

	now := l.clock.Now()
	evt := eventbus.RalphLoopStatusEvent{
		ExecutionID:      l.executionID,
		State:            string(s.Phase),
		PrdStatus:        prdStatus,
		IterationMetrics: metrics,
		Timestamp:        now,
		CurrentAgentID:   currentAgentID,
		WorktreePath:     l.worktreePath,
		Branch:           l.branch,
		ProgressMessage:  s.Reason,
	}
	snap := eventbus.ExecutionSnapshot{
		ExecutionID:      l.executionID,
		State:            string(s.Phase),
		Iteration:        s.Iteration,
		Reason:           s.Reason,
		DelayMs:          s.DelayMs,
		PrdStatus:        prdStatus,
		IterationMetrics: metrics,
		CurrentAgentID:   currentAgentID,
		WorktreePath:     l.worktreePath,
		Branch:           l.branch,
		ProgressMessage:  s.Reason,
		UpdatedAt:        now,
	}
	l.bus.Publish(evt, snap)
	_ = fsstore.WriteJSON(SnapshotPath(l.cfg.ProjectPath, l.cfg.PrdName), snap)
}

func (l *RalphLoop) publishAgent(agentID string) {
	l.publish(agentID)
}

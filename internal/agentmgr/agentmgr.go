// Package agentmgr spawns opaque agent CLI child processes, captures
// their stdout/stderr, maintains a PTY-style history ring buffer per
// agent, classifies lines through StreamParser and RateLimitDetector,
// and fans events out on channels.
//
// Each agent's state is bundled into an owned record behind a handle;
// the manager's top-level mutex is held only for map insert/remove,
// never across a blocking read or wait.
package agentmgr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/hyperlab-be/ralph/internal/ansi"
	"github.com/hyperlab-be/ralph/internal/ratelimit"
	"github.com/hyperlab-be/ralph/internal/ringbuffer"
	"github.com/hyperlab-be/ralph/internal/streamparse"
)

// ErrAgentNotFound is returned by operations referencing an unknown
// agent id.
var ErrAgentNotFound = errors.New("agentmgr: agent not found")

// ErrSpawnFailed wraps an underlying exec failure (binary not found, OS
// refused exec).
var ErrSpawnFailed = errors.New("agentmgr: spawn failed")

// SpawnConfig describes how to launch one agent child process.
type SpawnConfig struct {
	Program string
	Args    []string
	Dir     string
	Env     []string
	Flavor  streamparse.Flavor
}

// LogEntry is one classified, displayable line of agent output.
type LogEntry struct {
	AgentID   string
	Timestamp time.Time
	Level     string // "info" | "warn"
	Message   string
}

// RateLimitEvent pairs a detected rate-limit signal with its agent.
type RateLimitEvent struct {
	AgentID string
	Info    ratelimit.Info
}

// CompletionEvent reports a spawned agent's terminal outcome, emitted
// only after the child has been fully reaped.
type CompletionEvent struct {
	AgentID  string
	Success  bool
	ExitCode int
	Error    error
}

// Events bundles the channels AgentManager fans events out on. Channels
// are generously buffered; a send that would still block is dropped
// rather than stalling a reader goroutine, the same non-blocking
// philosophy internal/eventbus applies to status events.
type Events struct {
	Logs        chan LogEntry
	RateLimits  chan RateLimitEvent
	Completions chan CompletionEvent
	ToolStarts  chan streamparse.ToolCallStart
	ToolResults chan streamparse.ToolCallComplete
	Subagents   chan streamparse.SubagentEvent
}

func newEvents() *Events {
	const buf = 1024
	return &Events{
		Logs:        make(chan LogEntry, buf),
		RateLimits:  make(chan RateLimitEvent, buf),
		Completions: make(chan CompletionEvent, buf),
		ToolStarts:  make(chan streamparse.ToolCallStart, buf),
		ToolResults: make(chan streamparse.ToolCallComplete, buf),
		Subagents:   make(chan streamparse.SubagentEvent, buf),
	}
}

func trySend[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// waitResult is what the single background waiter goroutine produces.
type waitResult struct {
	exitCode int
	err      error
}

// agent bundles one spawned child's owned state. cmd.Wait() is called
// exactly once, by the waiter goroutine started in Spawn; both the
// monitor loop and a caller that has Taken the child observe its result
// through done, never by calling Wait a second time.
type agent struct {
	id   string
	cmd  *exec.Cmd
	hist *ringbuffer.RingBuffer
	done chan waitResult // buffered, never closed; a reader puts the result back after taking it

	mu          sync.Mutex
	taken       bool
	ptyID       string
	monitorStop context.CancelFunc
}

// ChildHandle lets a caller await a taken child's exit without racing the
// manager's own Wait call.
type ChildHandle struct {
	agentID string
	cmd     *exec.Cmd
	done    chan waitResult
	hist    *ringbuffer.RingBuffer
}

// History returns the output captured for this child so far, including
// after it has exited. Needed because TakeChild removes the agent from
// the manager's own PTYHistory index.
func (h *ChildHandle) History() []byte {
	return h.hist.Snapshot()
}

// Pid returns the child's OS pid.
func (h *ChildHandle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Kill terminates the child immediately.
func (h *ChildHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// TryWait performs a non-blocking check for exit, for callers that poll
// on their own interval. ok is false if the child hasn't exited yet.
func (h *ChildHandle) TryWait(ctx context.Context) (exitCode int, ok bool) {
	select {
	case r, open := <-h.done:
		if open {
			return r.exitCode, true
		}
		return 0, false
	case <-ctx.Done():
		return 0, false
	default:
		return 0, false
	}
}

// Wait blocks until the child exits.
func (h *ChildHandle) Wait() (exitCode int, err error) {
	r := <-h.done
	return r.exitCode, r.err
}

// Manager owns child process handles and PTY history buffers, keyed by
// agent id.
type Manager struct {
	events *Events

	mu     sync.Mutex
	agents map[string]*agent
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{
		events: newEvents(),
		agents: make(map[string]*agent),
	}
}

// Events returns the manager's fan-out channels.
func (m *Manager) Events() *Events { return m.events }

// Spawn starts cfg.Program as a child process with stdin closed and
// stdout/stderr captured, registers two reader goroutines, a single
// waiter goroutine, and a monitor goroutine, and returns the OS pid. It
// sleeps 100ms after start to detect an immediate crash; if the process
// has already exited by then, the crash is logged as a diagnostic line
// but Spawn still returns success with the exit recorded.
func (m *Manager) Spawn(ctx context.Context, agentID string, cfg SpawnConfig) (int, error) {
	cmd := exec.Command(cfg.Program, cfg.Args...)
	cmd.Dir = cfg.Dir
	if cfg.Env != nil {
		cmd.Env = cfg.Env
	}
	cmd.Stdin = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	monitorCtx, monitorStop := context.WithCancel(context.Background())
	a := &agent{
		id:          agentID,
		cmd:         cmd,
		hist:        ringbuffer.New(ringbuffer.DefaultCapacity),
		done:        make(chan waitResult, 1),
		monitorStop: monitorStop,
	}

	m.mu.Lock()
	m.agents[agentID] = a
	m.mu.Unlock()

	parser := streamparse.New(cfg.Flavor)
	var streamsDone sync.WaitGroup
	streamsDone.Add(2)
	go func() { defer streamsDone.Done(); m.pumpStream(a, stdout, parser) }()
	go func() { defer streamsDone.Done(); m.pumpStream(a, stderr, parser) }()

	go func() {
		streamsDone.Wait()
		err := cmd.Wait()
		exitCode := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if err != nil {
			exitCode = -1
		}
		a.done <- waitResult{exitCode: exitCode, err: err}
	}()

	time.Sleep(100 * time.Millisecond)
	select {
	case r := <-a.done:
		a.done <- r // put it back for the real consumer (monitor or TakeChild)
		trySend(m.events.Logs, LogEntry{
			AgentID: agentID, Timestamp: time.Now(), Level: "warn",
			Message: fmt.Sprintf("agent exited immediately with code %d", r.exitCode),
		})
	default:
	}

	go m.monitor(monitorCtx, a)

	return cmd.Process.Pid, nil
}

// pumpStream reads lines from r, appends each raw line (escape sequences
// kept, CRLF-terminated) to the agent's history buffer, classifies the
// ANSI-stripped text through StreamParser and RateLimitDetector, and
// fans out the resulting events. Runs until EOF;
// never holds the manager's top-level mutex.
func (m *Manager) pumpStream(a *agent, r io.Reader, parser *streamparse.Parser) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := scanner.Text()
		a.hist.WriteString(raw + "\r\n")

		clean := ansi.Strip(raw)
		parsed := parser.ParseLine(clean)

		if parsed.DisplayText != "" {
			trySend(m.events.Logs, LogEntry{
				AgentID: a.id, Timestamp: time.Now(), Level: "info", Message: parsed.DisplayText,
			})
		}
		for _, ts := range parsed.ToolStarts {
			trySend(m.events.ToolStarts, ts)
		}
		for _, tr := range parsed.ToolResults {
			trySend(m.events.ToolResults, tr)
		}
		for _, se := range parsed.Subagents {
			trySend(m.events.Subagents, se)
		}
		if info := ratelimit.Detect(clean); info != nil {
			trySend(m.events.RateLimits, RateLimitEvent{AgentID: a.id, Info: *info})
		}
	}
}

// monitor waits (cooperatively) for either cancellation — meaning
// TakeChild has claimed the agent — or the child's exit, in which case it
// removes the agent from the manager and emits a CompletionEvent.
func (m *Manager) monitor(ctx context.Context, a *agent) {
	select {
	case <-ctx.Done():
		return
	case r, open := <-a.done:
		if !open {
			return
		}
		a.done <- r // leave it available in case anything else peeks
		m.mu.Lock()
		delete(m.agents, a.id)
		m.mu.Unlock()
		trySend(m.events.Completions, CompletionEvent{
			AgentID: a.id, Success: r.err == nil, ExitCode: r.exitCode, Error: r.err,
		})
	}
}

// TakeChild removes agentID from the manager so the caller can wait on it
// directly without holding the manager lock during a long wait, and stops
// the agent's monitor goroutine. Call this before any long wait.
func (m *Manager) TakeChild(agentID string) (*ChildHandle, error) {
	m.mu.Lock()
	a, ok := m.agents[agentID]
	if ok {
		delete(m.agents, agentID)
	}
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	a.mu.Lock()
	a.taken = true
	a.mu.Unlock()
	a.monitorStop()

	return &ChildHandle{agentID: agentID, cmd: a.cmd, done: a.done, hist: a.hist}, nil
}

// EmitAgentExit appends an exit log entry. Used by a caller after it has
// performed an external Wait following TakeChild.
func (m *Manager) EmitAgentExit(agentID string, exitCode int) {
	trySend(m.events.Logs, LogEntry{
		AgentID: agentID, Timestamp: time.Now(), Level: "info",
		Message: fmt.Sprintf("agent exited with code %d", exitCode),
	})
}

// Kill terminates agentID's process immediately.
func (m *Manager) Kill(agentID string) error {
	m.mu.Lock()
	a, ok := m.agents[agentID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	if a.cmd.Process == nil {
		return nil
	}
	return a.cmd.Process.Kill()
}

// KillAll terminates every currently tracked agent.
func (m *Manager) KillAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		_ = m.Kill(id)
	}
}

// RegisterPTY associates a PTY id with agentID (for observers correlating
// terminal sessions with agent ids).
func (m *Manager) RegisterPTY(agentID, ptyID string) error {
	m.mu.Lock()
	a, ok := m.agents[agentID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	a.mu.Lock()
	a.ptyID = ptyID
	a.mu.Unlock()
	return nil
}

// UnregisterPTY clears agentID's associated PTY id.
func (m *Manager) UnregisterPTY(agentID string) {
	m.mu.Lock()
	a, ok := m.agents[agentID]
	m.mu.Unlock()
	if !ok {
		return
	}
	a.mu.Lock()
	a.ptyID = ""
	a.mu.Unlock()
}

// PTYHistory returns the accumulated raw output (ANSI escape sequences
// included) captured for agentID so far.
func (m *Manager) PTYHistory(agentID string) ([]byte, error) {
	m.mu.Lock()
	a, ok := m.agents[agentID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return a.hist.Snapshot(), nil
}

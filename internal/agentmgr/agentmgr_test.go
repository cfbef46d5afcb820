package agentmgr

import (
	"context"
	"testing"
	"time"

	"github.com/hyperlab-be/ralph/internal/streamparse"
)

func drainLogs(t *testing.T, m *Manager, timeout time.Duration) []LogEntry {
	t.Helper()
	var entries []LogEntry
	deadline := time.After(timeout)
	for {
		select {
		case e := <-m.Events().Logs:
			entries = append(entries, e)
		case <-deadline:
			return entries
		}
	}
}

func TestSpawnEmitsLogsAndCompletion(t *testing.T) {
	m := New()
	ctx := context.Background()

	pid, err := m.Spawn(ctx, "agent-1", SpawnConfig{
		Program: "/bin/sh",
		Args:    []string{"-c", "echo hello world; echo goodbye"},
		Flavor:  streamparse.FlavorStreamJSON,
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if pid == 0 {
		t.Error("expected nonzero pid")
	}

	var completion *CompletionEvent
	deadline := time.After(3 * time.Second)
	var logs []LogEntry
loop:
	for {
		select {
		case e := <-m.Events().Logs:
			logs = append(logs, e)
		case c := <-m.Events().Completions:
			cc := c
			completion = &cc
			break loop
		case <-deadline:
			t.Fatal("timed out waiting for completion event")
		}
	}

	if completion == nil || !completion.Success || completion.ExitCode != 0 {
		t.Fatalf("unexpected completion: %+v", completion)
	}

	foundHello := false
	for _, l := range logs {
		if l.AgentID != "agent-1" {
			t.Errorf("log entry with wrong agent id: %+v", l)
		}
		if l.Message == "hello world" {
			foundHello = true
		}
	}
	if !foundHello {
		t.Errorf("expected a log line for 'hello world', got %+v", logs)
	}
}

func TestSpawnNonZeroExit(t *testing.T) {
	m := New()
	ctx := context.Background()

	if _, err := m.Spawn(ctx, "agent-2", SpawnConfig{
		Program: "/bin/sh",
		Args:    []string{"-c", "exit 7"},
		Flavor:  streamparse.FlavorStreamJSON,
	}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	select {
	case c := <-m.Events().Completions:
		if c.Success {
			t.Error("expected Success=false for nonzero exit")
		}
		if c.ExitCode != 7 {
			t.Errorf("expected exit code 7, got %d", c.ExitCode)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for completion event")
	}
}

func TestSpawnDetectsRateLimit(t *testing.T) {
	m := New()
	ctx := context.Background()

	if _, err := m.Spawn(ctx, "agent-3", SpawnConfig{
		Program: "/bin/sh",
		Args:    []string{"-c", "echo 'error: HTTP 429 too many requests'; exit 0"},
		Flavor:  streamparse.FlavorStreamJSON,
	}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	select {
	case rl := <-m.Events().RateLimits:
		if rl.AgentID != "agent-3" {
			t.Errorf("expected agent-3, got %s", rl.AgentID)
		}
		if !rl.Info.IsRateLimited {
			t.Error("expected IsRateLimited=true")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for rate limit event")
	}

	// Drain to completion so the goroutine doesn't leak past the test.
	select {
	case <-m.Events().Completions:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for completion event")
	}
}

func TestTakeChildRemovesFromManagerAndAllowsExternalWait(t *testing.T) {
	m := New()
	ctx := context.Background()

	if _, err := m.Spawn(ctx, "agent-4", SpawnConfig{
		Program: "/bin/sh",
		Args:    []string{"-c", "sleep 0.2; exit 3"},
		Flavor:  streamparse.FlavorStreamJSON,
	}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	handle, err := m.TakeChild("agent-4")
	if err != nil {
		t.Fatalf("TakeChild: %v", err)
	}
	if handle.Pid() == 0 {
		t.Error("expected nonzero pid on handle")
	}

	exitCode, err := handle.Wait()
	if err != nil {
		if exitCode != 3 {
			t.Errorf("expected exit code 3, got %d (err=%v)", exitCode, err)
		}
	} else if exitCode != 3 {
		t.Errorf("expected exit code 3, got %d", exitCode)
	}

	// After TakeChild, the manager must no longer own the agent and must
	// not emit a CompletionEvent for it.
	if _, err := m.PTYHistory("agent-4"); err == nil {
		t.Error("expected agent-4 to be removed from the manager after TakeChild")
	}
	select {
	case c := <-m.Events().Completions:
		t.Errorf("did not expect a CompletionEvent after TakeChild, got %+v", c)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestKillTerminatesProcess(t *testing.T) {
	m := New()
	ctx := context.Background()

	if _, err := m.Spawn(ctx, "agent-5", SpawnConfig{
		Program: "/bin/sh",
		Args:    []string{"-c", "sleep 30"},
		Flavor:  streamparse.FlavorStreamJSON,
	}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if err := m.Kill("agent-5"); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	select {
	case c := <-m.Events().Completions:
		if c.Success {
			t.Error("expected Success=false after Kill")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for completion event after Kill")
	}
}

func TestKillUnknownAgentReturnsError(t *testing.T) {
	m := New()
	if err := m.Kill("does-not-exist"); err == nil {
		t.Error("expected error for unknown agent")
	}
}

func TestRegisterAndUnregisterPTY(t *testing.T) {
	m := New()
	ctx := context.Background()

	if _, err := m.Spawn(ctx, "agent-6", SpawnConfig{
		Program: "/bin/sh",
		Args:    []string{"-c", "sleep 0.3"},
		Flavor:  streamparse.FlavorStreamJSON,
	}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if err := m.RegisterPTY("agent-6", "pty-1"); err != nil {
		t.Fatalf("RegisterPTY: %v", err)
	}
	m.UnregisterPTY("agent-6")

	if err := m.RegisterPTY("no-such-agent", "pty-2"); err == nil {
		t.Error("expected error registering PTY for unknown agent")
	}

	// Drain so the test doesn't leak the completion goroutine.
	select {
	case <-m.Events().Completions:
	case <-time.After(3 * time.Second):
	}
}

func TestPTYHistoryReturnsCapturedOutput(t *testing.T) {
	m := New()
	ctx := context.Background()

	if _, err := m.Spawn(ctx, "agent-7", SpawnConfig{
		Program: "/bin/sh",
		Args:    []string{"-c", "echo captured-line; sleep 1"},
		Flavor:  streamparse.FlavorStreamJSON,
	}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	// Give the pump goroutines a moment to write into the history buffer
	// before the process exits and the agent is reaped out of the map.
	time.Sleep(50 * time.Millisecond)

	hist, err := m.PTYHistory("agent-7")
	if err != nil {
		t.Fatalf("PTYHistory: %v", err)
	}
	if !containsString(string(hist), "captured-line") {
		t.Errorf("expected history to contain captured-line, got %q", hist)
	}

	select {
	case <-m.Events().Completions:
	case <-time.After(3 * time.Second):
	}
}

func containsString(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}

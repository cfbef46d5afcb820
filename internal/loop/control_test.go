package loop

import (
	"context"
	"testing"
	"time"
)

func TestControlPathPauseStopsARunningLoop(t *testing.T) {
	l, dir := newTestLoop(t, "exit 0", ErrorStrategyRetry)
	l.cfg.MaxIterations = 50

	start, err := l.Init(seedPRD())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := RequestControl(dir, "feature", ControlRequest{Pause: true, PauseReason: "out-of-process pause"}); err != nil {
		t.Fatalf("RequestControl: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := l.Run(ctx, start)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.Phase != PhasePaused || state.Reason != "out-of-process pause" {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestControlPathCancelStopsARunningLoop(t *testing.T) {
	l, dir := newTestLoop(t, "sleep 30", ErrorStrategyRetry)
	l.cfg.AgentTimeoutSecs = 0

	start, err := l.Init(seedPRD())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	go func() {
		time.Sleep(150 * time.Millisecond)
		if err := RequestControl(dir, "feature", ControlRequest{Cancel: true}); err != nil {
			t.Errorf("RequestControl: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := l.Run(ctx, start)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.Phase != PhaseCancelled {
		t.Fatalf("expected PhaseCancelled, got %+v", state)
	}
}

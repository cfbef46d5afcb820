package loop

import (
	"path/filepath"
	"time"

	"github.com/hyperlab-be/ralph/internal/fsstore"
)

// ControlRequest is the file-based control-plane message an out-of-
// process `ralph pause`/`ralph cancel` invocation writes for a running
// RalphLoop to notice. The two CLI invocations are separate processes
// sharing no memory, only the project's .ralph-ui directory, so this is
// the same atomic-JSON mechanism every other manager in this repository
// uses to coordinate across process boundaries.
type ControlRequest struct {
	Pause       bool   `json:"pause,omitempty"`
	PauseReason string `json:"pause_reason,omitempty"`
	Cancel      bool   `json:"cancel,omitempty"`
}

// ControlPath returns the path a running execution for prdName polls for
// out-of-process pause/cancel requests.
func ControlPath(projectPath, prdName string) string {
	return filepath.Join(projectPath, ".ralph-ui", "briefs", fsstore.SanitizeComponent(prdName), "control.json")
}

// RequestControl writes req to the control file for an out-of-process
// caller to signal a running loop.
func RequestControl(projectPath, prdName string, req ControlRequest) error {
	return fsstore.WriteJSON(ControlPath(projectPath, prdName), req)
}

const controlPollInterval = 200 * time.Millisecond

// watchControl polls path until stop is closed, applying any pending
// pause/cancel request to l and clearing the file so it isn't re-applied.
func (l *RalphLoop) watchControl(path string, stop <-chan struct{}) {
	ticker := time.NewTicker(controlPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			var req ControlRequest
			if err := fsstore.ReadJSON(path, &req); err != nil {
				continue
			}
			if !req.Pause && !req.Cancel {
				continue
			}
			_ = fsstore.WriteJSON(path, ControlRequest{})
			if req.Cancel {
				l.Cancel()
				return
			}
			if req.Pause {
				l.Pause(req.PauseReason)
			}
		}
	}
}

// SnapshotPath returns the path a running execution for prdName persists
// its latest ExecutionSnapshot to, for a cross-process `get-snapshot`
// read that doesn't need a live connection to the loop's event bus.
func SnapshotPath(projectPath, prdName string) string {
	return filepath.Join(projectPath, ".ralph-ui", "briefs", fsstore.SanitizeComponent(prdName), "snapshot.json")
}

// BriefsDir returns the directory BriefBuilder persists BRIEF.md and
// BRIEF-{N}.md into for prdName.
func BriefsDir(projectPath, prdName string) string {
	return filepath.Join(projectPath, ".ralph-ui", "briefs", fsstore.SanitizeComponent(prdName))
}

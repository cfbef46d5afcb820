package worktree

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestKeyIsStableAndDependsOnInputs(t *testing.T) {
	k1 := Key("/a/project", "main")
	k2 := Key("/a/project", "main")
	if k1 != k2 {
		t.Errorf("expected stable key, got %q vs %q", k1, k2)
	}
	if len(k1) != 8 {
		t.Errorf("expected 8 hex chars, got %q", k1)
	}
	if Key("/a/project", "develop") == k1 {
		t.Error("expected different branch to yield different key")
	}
}

func TestBranchNameSanitizesSlashes(t *testing.T) {
	got := BranchName("feature/foo", "abcd1234")
	if got != "ralph/feature-foo-abcd1234" {
		t.Errorf("got %q", got)
	}
}

func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@t.com", "GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@t.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init", "-q", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-q", "-m", "initial")
}

func TestSetupCreatesThenReuses(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	project := t.TempDir()
	initGitRepo(t, project)

	prdDir := filepath.Join(project, ".ralph-ui", "prds")
	if err := os.MkdirAll(prdDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(prdDir, "demo.json"), []byte(`{"title":"x"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	pool := New(project)
	first, err := pool.Setup("main", "demo")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if !first.Created {
		t.Error("expected first Setup to create a new worktree")
	}
	if _, err := os.Stat(filepath.Join(first.Path, ".ralph-ui", "prds", "demo.json")); err != nil {
		t.Errorf("expected PRD seeded into new worktree: %v", err)
	}

	// Simulate in-flight work: write a marker file that must survive reuse.
	marker := filepath.Join(first.Path, "in-progress-marker.txt")
	if err := os.WriteFile(marker, []byte("do not clobber"), 0o644); err != nil {
		t.Fatal(err)
	}

	second, err := pool.Setup("main", "demo")
	if err != nil {
		t.Fatalf("second Setup: %v", err)
	}
	if second.Created {
		t.Error("expected second Setup to reuse the existing worktree")
	}
	if second.Path != first.Path || second.Key != first.Key {
		t.Errorf("expected identical path/key on reuse: %+v vs %+v", first, second)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("expected in-progress marker preserved across reuse: %v", err)
	}
}

func TestSyncBackCopiesPRDFiles(t *testing.T) {
	project := t.TempDir()
	worktreePath := t.TempDir()

	wtPrdDir := filepath.Join(worktreePath, ".ralph-ui", "prds")
	if err := os.MkdirAll(wtPrdDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(wtPrdDir, "demo.json"), []byte(`{"title":"synced"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(wtPrdDir, "demo-progress.txt"), []byte("log line"), 0o644); err != nil {
		t.Fatal(err)
	}

	pool := New(project)
	if err := pool.SyncBack(worktreePath, "demo"); err != nil {
		t.Fatalf("SyncBack: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(project, ".ralph-ui", "prds", "demo.json"))
	if err != nil || string(data) != `{"title":"synced"}` {
		t.Errorf("synced json = %q, %v", data, err)
	}
}

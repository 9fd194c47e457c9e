// Package checkpoint wraps accepted mutations in git commits so every
// change to the working tree is atomic, attributable, and reversible.
package checkpoint

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// GitRunner executes a git command and returns its combined output.
// This abstraction allows mocking in tests.
type GitRunner func(workDir string, args ...string) (string, error)

// defaultGitRunner runs git as a real subprocess.
func defaultGitRunner(workDir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = workDir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// Manager creates checkpoints in the project's git history.
type Manager struct {
	WorkDir string
	Runner  GitRunner // if nil, uses the real git subprocess
	Log     *zap.Logger

	branch string // non-empty once a session branch is active
}

// NewManager returns a Manager for workDir.
func NewManager(workDir string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{WorkDir: workDir, Log: log}
}

func (m *Manager) run(args ...string) (string, error) {
	runner := m.Runner
	if runner == nil {
		runner = defaultGitRunner
	}
	return runner(m.WorkDir, args...)
}

// EnsureRepo makes sure the working directory is inside a git repository,
// initializing one with an initial commit when it is not.
func (m *Manager) EnsureRepo() error {
	_, err := m.run("rev-parse", "--git-dir")
	if err == nil {
		return nil
	}
	if !isExitCode128(err) {
		return fmt.Errorf("checking git repository: %w", err)
	}

	m.Log.Info("no git repository found, initializing one",
		zap.String("dir", m.WorkDir))

	if out, err := m.run("init"); err != nil {
		return fmt.Errorf("git init: %w: %s", err, strings.TrimSpace(out))
	}
	if out, err := m.run("add", "-A"); err != nil {
		return fmt.Errorf("git add: %w: %s", err, strings.TrimSpace(out))
	}
	if out, err := m.run("commit", "--allow-empty", "-m", "Initial commit"); err != nil {
		return fmt.Errorf("git commit: %w: %s", err, strings.TrimSpace(out))
	}
	return nil
}

// StartSessionBranch creates and checks out a branch for this session so
// checkpoints accumulate off the user's current branch. The branch name is
// timestamp-derived.
func (m *Manager) StartSessionBranch(now time.Time) (string, error) {
	name := "tandem-session-" + now.Format("20060102-150405")
	if out, err := m.run("checkout", "-b", name); err != nil {
		return "", fmt.Errorf("creating session branch %s: %w: %s", name, err, strings.TrimSpace(out))
	}
	m.branch = name
	m.Log.Info("started session branch", zap.String("branch", name))
	return name, nil
}

// Branch returns the active session branch, or "" when committing to the
// user's current branch.
func (m *Manager) Branch() string { return m.branch }

// Commit stages everything and records one checkpoint, returning its id.
// The commit is created even when the staged tree is unchanged (a failed
// command is still checkpoint-worthy), so the id is always valid.
func (m *Manager) Commit(message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		message = "tandem checkpoint"
	}

	if out, err := m.run("add", "-A"); err != nil {
		return "", fmt.Errorf("git add: %w: %s", err, strings.TrimSpace(out))
	}
	if out, err := m.run("commit", "--allow-empty", "-m", message); err != nil {
		return "", fmt.Errorf("git commit: %w: %s", err, strings.TrimSpace(out))
	}
	out, err := m.run("rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w: %s", err, strings.TrimSpace(out))
	}

	id := strings.TrimSpace(out)
	m.Log.Info("created checkpoint",
		zap.String("id", id),
		zap.String("message", message))
	return id, nil
}

// isExitCode128 reports whether err is an *exec.ExitError with exit code
// 128, which git uses for "not a repository".
func isExitCode128(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() == 128
	}
	return false
}

// Package runner executes shell commands on the operator's behalf.
// Commands run with the invoking user's full privileges; this tool is a
// local pair-programming aid, not a sandbox.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// maxCapturedOutput caps stdout/stderr carried back into the conversation.
const maxCapturedOutput = 50000

// ExitInfo captures how a command finished.
type ExitInfo struct {
	Code   int
	Stdout string
	Stderr string
}

// Runner executes commands through a shell. No timeout is imposed here;
// cancellation is honored between directives, not mid-command.
type Runner struct {
	Shell   string // defaults to /bin/bash
	WorkDir string
	Log     *zap.Logger
}

// New returns a Runner rooted at workDir.
func New(workDir string, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Shell: "/bin/bash", WorkDir: workDir, Log: log}
}

// Run executes command via the shell, capturing stdout, stderr, and the
// exit code. A non-zero exit is not an error: it is data for the model.
// The returned error covers only spawn failures.
func (r *Runner) Run(ctx context.Context, command string) (ExitInfo, error) {
	shell := r.Shell
	if shell == "" {
		shell = "/bin/bash"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = r.WorkDir
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Log.Debug("running command", zap.String("command", command))

	err := cmd.Run()
	info := ExitInfo{
		Code:   0,
		Stdout: truncate(stdout.String()),
		Stderr: truncate(stderr.String()),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			info.Code = exitErr.ExitCode()
			r.Log.Info("command exited non-zero",
				zap.String("command", command),
				zap.Int("code", info.Code))
			return info, nil
		}
		return info, fmt.Errorf("starting command: %w", err)
	}

	r.Log.Debug("command completed",
		zap.Int("stdout_bytes", len(info.Stdout)),
		zap.Int("stderr_bytes", len(info.Stderr)))
	return info, nil
}

func truncate(s string) string {
	if len(s) > maxCapturedOutput {
		return s[:maxCapturedOutput] + "\n...[truncated]"
	}
	return s
}

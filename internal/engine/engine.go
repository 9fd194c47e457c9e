// Package engine wires the pieces together: it owns the active session,
// dispatches approved directives, and drives full conversation turns.
package engine

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fakeyudi/tandem/internal/checkpoint"
	"github.com/fakeyudi/tandem/internal/config"
	"github.com/fakeyudi/tandem/internal/gate"
	"github.com/fakeyudi/tandem/internal/patch"
	"github.com/fakeyudi/tandem/internal/runner"
	"github.com/fakeyudi/tandem/internal/session"
	"github.com/fakeyudi/tandem/internal/turn"
	"github.com/fakeyudi/tandem/internal/workspace"
)

//go:embed system_prompt.txt
var basePrompt string

// Engine is the composition root for one interactive session.
type Engine struct {
	cfg     config.Config
	workDir string

	store       session.Store
	sess        *session.Session
	gate        gate.Gate
	checkpoints *checkpoint.Manager
	patches     *patch.Engine
	commands    *runner.Runner
	turns       *turn.Runner
	watcher     *workspace.Watcher
	log         *zap.Logger
	out         io.Writer

	// Result blocks from bypass commands, folded into the next user turn.
	pending []string
}

// Options carries the collaborators an Engine needs.
type Options struct {
	Config      config.Config
	WorkDir     string
	Store       session.Store
	Session     *session.Session
	Gate        gate.Gate
	Checkpoints *checkpoint.Manager
	Client      turn.StreamClient
	Watcher     *workspace.Watcher
	Out         io.Writer
	Log         *zap.Logger
}

// New assembles an Engine from its collaborators.
func New(opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	e := &Engine{
		cfg:         opts.Config,
		workDir:     opts.WorkDir,
		store:       opts.Store,
		sess:        opts.Session,
		gate:        opts.Gate,
		checkpoints: opts.Checkpoints,
		patches:     patch.NewEngine(opts.Config.MatchDistance),
		commands:    runner.New(opts.WorkDir, log),
		watcher:     opts.Watcher,
		log:         log,
		out:         out,
	}
	e.commands.Shell = opts.Config.Shell
	e.turns = turn.NewRunner(opts.Client, e, out, opts.Config.MaxTokens, log)
	return e
}

// Session returns the active session.
func (e *Engine) Session() *session.Session {
	return e.sess
}

// Dispatch executes one directive after the gate approves it. Commands are
// always checkpointed so their commit hash anchors a rollback point; patches
// are checkpointed only when at least one hunk landed.
func (e *Engine) Dispatch(ctx context.Context, d turn.Directive) (turn.Result, error) {
	ok, err := e.gate.Authorize(d)
	if err != nil {
		return turn.Result{}, err
	}
	if !ok {
		e.log.Info("directive skipped", zap.String("directive", d.ID))
		return turn.Result{Accepted: false}, nil
	}

	switch d.Kind {
	case turn.KindPatch:
		return e.dispatchPatch(ctx, d)
	default:
		return e.dispatchCommand(ctx, d)
	}
}

func (e *Engine) dispatchCommand(ctx context.Context, d turn.Directive) (turn.Result, error) {
	info, err := e.commands.Run(ctx, d.Content)
	if err != nil {
		return turn.Result{}, fmt.Errorf("running command: %w", err)
	}

	res := turn.Result{
		Accepted: true,
		ExitCode: info.Code,
		Stdout:   info.Stdout,
		Stderr:   info.Stderr,
	}
	// Failed commands are checkpointed too: even a non-zero exit may have
	// mutated the tree.
	id, err := e.checkpoints.Commit(d.CommitMessage())
	if err != nil {
		return turn.Result{}, fmt.Errorf("checkpointing command: %w", err)
	}
	res.CheckpointID = id
	res.Lint = e.runLint(ctx)
	e.discardSelfEdits()
	return res, nil
}

func (e *Engine) dispatchPatch(ctx context.Context, d turn.Directive) (turn.Result, error) {
	target := d.Target
	if !filepath.IsAbs(target) {
		target = filepath.Join(e.workDir, target)
	}
	outcome, err := e.patches.Apply(target, d.Content)
	if err != nil {
		if errors.Is(err, patch.ErrMissingTarget) {
			return turn.Result{
				Accepted: true,
				Err:      fmt.Sprintf("Error applying diff: patch target does not exist: %s", d.Target),
			}, nil
		}
		return turn.Result{
			Accepted: true,
			Err:      fmt.Sprintf("Error applying diff: %v", err),
		}, nil
	}

	res := turn.Result{
		Accepted:    true,
		FailedHunks: outcome.Failed,
	}
	if !outcome.Changed() {
		res.Err = "Error applying diff: no hunks could be applied"
		return res, nil
	}

	if err := os.WriteFile(target, []byte(outcome.NewContent), 0o644); err != nil {
		return turn.Result{}, fmt.Errorf("writing patched file: %w", err)
	}
	if e.watcher != nil {
		e.watcher.Suppress(target)
	}
	res.NewContent = outcome.NewContent

	id, err := e.checkpoints.Commit(d.CommitMessage())
	if err != nil {
		return turn.Result{}, fmt.Errorf("checkpointing patch: %w", err)
	}
	res.CheckpointID = id
	res.Lint = e.runLint(ctx)
	return res, nil
}

// runLint runs the configured lint command, returning its combined output.
func (e *Engine) runLint(ctx context.Context) string {
	if e.cfg.LintCommand == "" {
		return ""
	}
	info, err := e.commands.Run(ctx, e.cfg.LintCommand)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(info.Stdout + info.Stderr)
}

// SendUserTurn appends the user's message, runs one full model turn, and
// persists the session. Out-of-band edits noticed since the last turn and
// pending bypass results are folded into the message so the model sees them.
func (e *Engine) SendUserTurn(ctx context.Context, text string) error {
	content := e.contextualize(text)
	e.sess.Append(session.RoleUser, content)

	reply, err := e.turns.RunTurn(ctx, e.systemPrompt(), e.sess.Messages)
	if err != nil {
		// Drop the user message too: a turn that never produced a reply
		// should not skew the next request.
		e.sess.Messages = e.sess.Messages[:len(e.sess.Messages)-1]
		return err
	}

	e.sess.Append(session.RoleAssistant, reply)
	if err := e.store.Save(e.sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// RunBypass executes a user-initiated command immediately, without model
// involvement. Its result block is queued for the next turn.
func (e *Engine) RunBypass(ctx context.Context, line string) error {
	d := turn.NewUserCommand(line)
	res, err := e.Dispatch(ctx, d)
	if err != nil {
		return err
	}

	fmt.Fprint(e.out, res.Stdout)
	if res.Stderr != "" {
		fmt.Fprint(e.out, res.Stderr)
	}

	block := "<command>\n<content>" + d.Content + "</content>\n</command>\n" + res.Render(turn.KindCommand)
	e.pending = append(e.pending, "I ran this command myself:\n"+block)
	return nil
}

// contextualize folds pending bypass results and out-of-band edits into
// the raw user text.
func (e *Engine) contextualize(text string) string {
	var parts []string
	parts = append(parts, e.pending...)
	e.pending = nil

	if e.watcher != nil {
		if edited := e.watcher.Drain(); len(edited) > 0 {
			parts = append(parts, "<user_edits>\nFiles I edited since your last reply:\n"+strings.Join(edited, "\n")+"\n</user_edits>")
		}
	}

	if len(parts) == 0 {
		return text
	}
	parts = append(parts, text)
	return strings.Join(parts, "\n\n")
}

// discardSelfEdits clears watcher events produced by a command the tool
// itself just ran.
func (e *Engine) discardSelfEdits() {
	if e.watcher != nil {
		e.watcher.Drain()
	}
}

// systemPrompt renders the base instructions plus a snapshot of the host
// and the project tree.
func (e *Engine) systemPrompt() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(basePrompt))
	b.WriteString("\n\n<environment_info>\n")
	b.WriteString(workspace.Environment(e.workDir))
	b.WriteString("\n</environment_info>\n\n<cwd_tree>\n")
	b.WriteString(workspace.Tree(e.workDir, e.cfg.IgnorePatterns))
	b.WriteString("\n</cwd_tree>")
	return b.String()
}

// ClearSession starts a fresh conversation, deleting the stored one.
func (e *Engine) ClearSession() error {
	if err := e.store.Clear(e.sess); err != nil {
		return err
	}
	e.sess.Reset(time.Now())
	e.pending = nil
	return nil
}

// SwitchSession replaces the active session with a stored one.
func (e *Engine) SwitchSession(id string) error {
	sess, err := e.store.LoadByID(id)
	if err != nil {
		return err
	}
	e.sess = sess
	e.pending = nil
	return nil
}

// SessionPath returns where the active session is (or will be) stored.
func (e *Engine) SessionPath() string {
	if e.sess.StoreID() == "" {
		return ""
	}
	return filepath.Join(e.cfg.SessionsDir, e.sess.StoreID()+".json")
}

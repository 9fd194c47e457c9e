package engine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/tandem/internal/checkpoint"
	"github.com/fakeyudi/tandem/internal/config"
	"github.com/fakeyudi/tandem/internal/engine"
	"github.com/fakeyudi/tandem/internal/session"
	"github.com/fakeyudi/tandem/internal/turn"
)

// fixedGate approves or rejects everything.
type fixedGate struct{ allow bool }

func (g fixedGate) Authorize(turn.Directive) (bool, error) { return g.allow, nil }

// fakeGit records git invocations and fakes checkpoint ids.
type fakeGit struct {
	calls [][]string
}

func (f *fakeGit) run(_ string, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	if args[0] == "rev-parse" && len(args) > 1 && args[1] == "--short" {
		return fmt.Sprintf("abc%04d\n", len(f.calls)), nil
	}
	return "", nil
}

func (f *fakeGit) commits() int {
	n := 0
	for _, c := range f.calls {
		if c[0] == "commit" {
			n++
		}
	}
	return n
}

// scriptedClient replays model calls and records requests.
type scriptedClient struct {
	script   []func(onDelta func(string)) (turn.Stop, error)
	requests []turn.Request
}

func (c *scriptedClient) Stream(_ context.Context, req turn.Request, onDelta func(string)) (turn.Stop, error) {
	i := len(c.requests)
	c.requests = append(c.requests, req)
	if i >= len(c.script) {
		return turn.Stop{}, fmt.Errorf("unscripted call %d", i)
	}
	return c.script[i](onDelta)
}

func say(text string) func(func(string)) (turn.Stop, error) {
	return func(onDelta func(string)) (turn.Stop, error) {
		onDelta(text)
		return turn.Stop{Reason: turn.StopEndTurn}, nil
	}
}

func newEngine(t *testing.T, cfg config.Config, client turn.StreamClient, git *fakeGit, allow bool) (*engine.Engine, session.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := session.NewStore(filepath.Join(dir, ".tandem", "sessions"))
	require.NoError(t, err)

	cp := checkpoint.NewManager(dir, nil)
	cp.Runner = git.run

	e := engine.New(engine.Options{
		Config:      cfg,
		WorkDir:     dir,
		Store:       store,
		Session:     session.New(time.Now()),
		Gate:        fixedGate{allow: allow},
		Checkpoints: cp,
		Client:      client,
		Out:         &bytes.Buffer{},
	})
	return e, store, dir
}

func TestDispatchCommandRunsAndCheckpoints(t *testing.T) {
	git := &fakeGit{}
	e, _, _ := newEngine(t, config.Defaults(), &scriptedClient{}, git, true)

	res, err := e.Dispatch(context.Background(), turn.Directive{
		Kind:    turn.KindCommand,
		Content: "echo hello",
		Purpose: "greet",
	})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.NotEmpty(t, res.CheckpointID)
	assert.Equal(t, 1, git.commits())
}

func TestDispatchFailedCommandStillCheckpoints(t *testing.T) {
	git := &fakeGit{}
	e, _, _ := newEngine(t, config.Defaults(), &scriptedClient{}, git, true)

	res, err := e.Dispatch(context.Background(), turn.Directive{
		Kind:    turn.KindCommand,
		Content: "echo oops >&2; exit 3",
	})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.NotEmpty(t, res.CheckpointID)
	assert.Equal(t, 1, git.commits())
}

func TestDispatchRejectedDirective(t *testing.T) {
	git := &fakeGit{}
	e, _, _ := newEngine(t, config.Defaults(), &scriptedClient{}, git, false)

	res, err := e.Dispatch(context.Background(), turn.Directive{
		Kind:    turn.KindCommand,
		Content: "rm -rf /",
	})

	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Zero(t, git.commits())
}

func TestDispatchPatchRewritesFile(t *testing.T) {
	git := &fakeGit{}
	e, _, dir := newEngine(t, config.Defaults(), &scriptedClient{}, git, true)

	target := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(target, []byte("def foo():\n    pass\n"), 0o644))

	res, err := e.Dispatch(context.Background(), turn.Directive{
		Kind:    turn.KindPatch,
		Target:  "app.py",
		Content: "@@\n-def foo():\n+def bar():\n     pass\n",
	})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Empty(t, res.FailedHunks)
	assert.NotEmpty(t, res.CheckpointID)

	updated, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(updated), "def bar():")
	assert.Equal(t, 1, git.commits())
}

func TestDispatchPatchMissingTarget(t *testing.T) {
	git := &fakeGit{}
	e, _, _ := newEngine(t, config.Defaults(), &scriptedClient{}, git, true)

	res, err := e.Dispatch(context.Background(), turn.Directive{
		Kind:    turn.KindPatch,
		Target:  "gone.py",
		Content: "@@\n-old\n+new\n",
	})

	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Contains(t, res.Err, "does not exist")
	assert.Zero(t, git.commits())
}

func TestSendUserTurnAppendsAndSaves(t *testing.T) {
	client := &scriptedClient{script: []func(func(string)) (turn.Stop, error){
		say("Sure, I can help with that."),
	}}
	e, store, _ := newEngine(t, config.Defaults(), client, &fakeGit{}, true)

	err := e.SendUserTurn(context.Background(), "help me refactor")
	require.NoError(t, err)

	loaded, err := store.LoadLatest()
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, session.RoleUser, loaded.Messages[0].Role)
	assert.Equal(t, "help me refactor", loaded.Messages[0].Content)
	assert.Equal(t, session.RoleAssistant, loaded.Messages[1].Role)
	assert.Equal(t, "Sure, I can help with that.", loaded.Messages[1].Content)
}

func TestSendUserTurnTransportErrorRollsBack(t *testing.T) {
	client := &scriptedClient{script: []func(func(string)) (turn.Stop, error){
		func(func(string)) (turn.Stop, error) {
			return turn.Stop{}, errors.New("connection reset")
		},
	}}
	e, _, _ := newEngine(t, config.Defaults(), client, &fakeGit{}, true)

	err := e.SendUserTurn(context.Background(), "hello?")

	require.Error(t, err)
	assert.Empty(t, e.Session().Messages)
}

func TestSendUserTurnSystemPromptHasWorkspaceContext(t *testing.T) {
	client := &scriptedClient{script: []func(func(string)) (turn.Stop, error){say("ok")}}
	e, _, dir := newEngine(t, config.Defaults(), client, &fakeGit{}, true)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	require.NoError(t, e.SendUserTurn(context.Background(), "hi"))

	require.Len(t, client.requests, 1)
	sys := client.requests[0].System
	assert.Contains(t, sys, "<environment_info>")
	assert.Contains(t, sys, "<cwd_tree>")
	assert.Contains(t, sys, "notes.txt")
	assert.Contains(t, sys, "<command>")
}

func TestRunBypassFoldsIntoNextTurn(t *testing.T) {
	client := &scriptedClient{script: []func(func(string)) (turn.Stop, error){say("noted")}}
	git := &fakeGit{}
	e, _, _ := newEngine(t, config.Defaults(), client, git, true)

	require.NoError(t, e.RunBypass(context.Background(), "!echo from-user"))
	assert.Equal(t, 1, git.commits())

	require.NoError(t, e.SendUserTurn(context.Background(), "what did that print?"))

	require.Len(t, client.requests, 1)
	msgs := client.requests[0].Messages
	require.NotEmpty(t, msgs)
	user := msgs[len(msgs)-1].Content
	assert.Contains(t, user, "I ran this command myself:")
	assert.Contains(t, user, "from-user")
	assert.Contains(t, user, `<result userskipped="false"`)
	assert.True(t, strings.HasSuffix(user, "what did that print?"))
}

func TestLintCommandOutputAttached(t *testing.T) {
	cfg := config.Defaults()
	cfg.LintCommand = "echo lint-clean"
	git := &fakeGit{}
	e, _, _ := newEngine(t, cfg, &scriptedClient{}, git, true)

	res, err := e.Dispatch(context.Background(), turn.Directive{
		Kind:    turn.KindCommand,
		Content: "true",
	})

	require.NoError(t, err)
	assert.Equal(t, "lint-clean", res.Lint)
}

// The lint hook after a patch runs under the caller's context, so a
// cancelled dispatch does not linger in the lint command.
func TestPatchLintHonorsContext(t *testing.T) {
	cfg := config.Defaults()
	cfg.LintCommand = "echo lint-clean"
	git := &fakeGit{}
	e, _, dir := newEngine(t, cfg, &scriptedClient{}, git, true)

	target := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(target, []byte("def foo():\n    pass\n"), 0o644))
	directive := turn.Directive{
		Kind:    turn.KindPatch,
		Target:  "app.py",
		Content: "@@\n-def foo():\n+def bar():\n     pass\n",
	}

	res, err := e.Dispatch(context.Background(), directive)
	require.NoError(t, err)
	assert.Equal(t, "lint-clean", res.Lint)

	require.NoError(t, os.WriteFile(target, []byte("def foo():\n    pass\n"), 0o644))
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	res, err = e.Dispatch(cancelled, directive)
	require.NoError(t, err)
	assert.Empty(t, res.Lint)
}

func TestClearSessionStartsFresh(t *testing.T) {
	client := &scriptedClient{script: []func(func(string)) (turn.Stop, error){say("hi")}}
	e, store, _ := newEngine(t, config.Defaults(), client, &fakeGit{}, true)

	require.NoError(t, e.SendUserTurn(context.Background(), "hello"))
	require.NoError(t, e.ClearSession())

	assert.Empty(t, e.Session().Messages)
	_, err := store.LoadLatest()
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestSwitchSession(t *testing.T) {
	client := &scriptedClient{script: []func(func(string)) (turn.Stop, error){say("first")}}
	e, store, _ := newEngine(t, config.Defaults(), client, &fakeGit{}, true)

	require.NoError(t, e.SendUserTurn(context.Background(), "one"))

	archived := session.New(time.Now())
	archived.Append(session.RoleUser, "archived question")
	require.NoError(t, store.Save(archived))

	require.NoError(t, e.SwitchSession(archived.StoreID()))
	require.Len(t, e.Session().Messages, 1)
	assert.Equal(t, "archived question", e.Session().Messages[0].Content)

	ids, err := store.List()
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

package gate_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/tandem/internal/gate"
	"github.com/fakeyudi/tandem/internal/turn"
)

func directive() turn.Directive {
	return turn.Directive{
		ID:      "d1",
		Kind:    turn.KindCommand,
		Content: "ls -la",
		Purpose: "list files",
	}
}

func TestAuthorizeAccepts(t *testing.T) {
	for _, answer := range []string{"y\n", "yes\n", "\n", "  Y  \n"} {
		var out bytes.Buffer
		g := gate.NewTerminalGate(strings.NewReader(answer), &out, nil)

		ok, err := g.Authorize(directive())

		require.NoError(t, err)
		assert.True(t, ok, "answer %q should approve", answer)
		assert.Contains(t, out.String(), "ls -la")
	}
}

func TestAuthorizeRejects(t *testing.T) {
	for _, answer := range []string{"n\n", "no\n", "anything else\n"} {
		var out bytes.Buffer
		g := gate.NewTerminalGate(strings.NewReader(answer), &out, nil)

		ok, err := g.Authorize(directive())

		require.NoError(t, err)
		assert.False(t, ok, "answer %q should reject", answer)
	}
}

func TestAuthorizeUserInitiatedSkipsPrompt(t *testing.T) {
	var out bytes.Buffer
	// No input available: the gate must not read at all.
	g := gate.NewTerminalGate(strings.NewReader(""), &out, nil)

	d := turn.NewUserCommand("!git status")
	ok, err := g.Authorize(d)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, out.String())
}

func TestAuthorizeShowsPurposeAndTarget(t *testing.T) {
	var out bytes.Buffer
	g := gate.NewTerminalGate(strings.NewReader("n\n"), &out, nil)

	_, err := g.Authorize(turn.Directive{
		Kind:    turn.KindPatch,
		Target:  "app.py",
		Content: "@@\n-foo\n+bar",
		Purpose: "rename foo to bar",
	})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "app.py")
	assert.Contains(t, out.String(), "rename foo to bar")
}

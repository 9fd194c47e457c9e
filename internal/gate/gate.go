// Package gate is the human-consent boundary: no directive causes a side
// effect until the operator has approved it here.
package gate

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/fakeyudi/tandem/internal/turn"
)

var (
	kindCommandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	kindPatchStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	purposeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	contentStyle     = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("238")).
				Padding(0, 1)
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("178")).Bold(true)
)

// Gate mediates consent for one directive at a time.
type Gate interface {
	// Authorize blocks until the operator answers. It returns true when
	// the directive may execute. User-initiated directives are implicitly
	// approved without prompting.
	Authorize(d turn.Directive) (bool, error)
}

// TerminalGate prompts for y/n on the operator's terminal.
type TerminalGate struct {
	In  io.Reader
	Out io.Writer
	Log *zap.Logger

	reader *bufio.Reader
}

// NewTerminalGate builds a gate reading answers from in and writing the
// rendered directive to out.
func NewTerminalGate(in io.Reader, out io.Writer, log *zap.Logger) *TerminalGate {
	if log == nil {
		log = zap.NewNop()
	}
	// Reuse an existing buffered reader so the caller's own reads on the
	// same stream do not lose buffered input.
	reader, ok := in.(*bufio.Reader)
	if !ok {
		reader = bufio.NewReader(in)
	}
	return &TerminalGate{In: in, Out: out, Log: log, reader: reader}
}

// Authorize renders the directive and waits for the operator's answer.
// An empty answer counts as approval; anything other than y/yes declines.
func (g *TerminalGate) Authorize(d turn.Directive) (bool, error) {
	if d.UserInitiated {
		return true, nil
	}

	fmt.Fprintln(g.Out)
	fmt.Fprintln(g.Out, g.renderDirective(d))
	fmt.Fprint(g.Out, promptStyle.Render("Execute? (Y/n): "))

	line, err := g.reader.ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("reading approval answer: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	approved := answer == "" || answer == "y" || answer == "yes"
	g.Log.Info("approval decision",
		zap.String("directive", d.ID),
		zap.String("kind", d.Kind.String()),
		zap.Bool("approved", approved))
	return approved, nil
}

func (g *TerminalGate) renderDirective(d turn.Directive) string {
	var header string
	switch d.Kind {
	case turn.KindPatch:
		header = kindPatchStyle.Render("PATCH") + " " + d.Target
	default:
		header = kindCommandStyle.Render("COMMAND")
	}
	if d.Purpose != "" {
		header += "  " + purposeStyle.Render(d.Purpose)
	}
	return header + "\n" + contentStyle.Render(d.Content)
}

package turn

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Directive is one model-requested action extracted from a closed marker
// region. It is created by the parser, consumed exactly once by the
// dispatcher, and never mutated.
type Directive struct {
	ID      string
	Kind    Kind
	Target  string // patch target path; empty for commands
	Payload string // raw text between the markers
	Content string // command text or diff body
	Purpose string
	// UserInitiated marks a directive the operator typed directly (the
	// bypass path). These skip the approval prompt.
	UserInitiated bool
}

var (
	targetPattern  = regexp.MustCompile(`(?s)<target>(.*?)</target>`)
	contentPattern = regexp.MustCompile(`(?s)<content>(.*?)</content>`)
	purposePattern = regexp.MustCompile(`(?s)<purpose>(.*?)</purpose>`)
)

// ParsePayload extracts the tagged sub-fields from a directive payload.
// A payload without a <content> tag degrades to treating the whole payload
// as the content; this is never a fatal condition.
func ParsePayload(kind Kind, raw string) Directive {
	d := Directive{
		ID:      uuid.New().String(),
		Kind:    kind,
		Payload: raw,
	}

	if m := targetPattern.FindStringSubmatch(raw); m != nil {
		d.Target = strings.TrimSpace(m[1])
	}
	if m := purposePattern.FindStringSubmatch(raw); m != nil {
		d.Purpose = strings.TrimSpace(m[1])
	}
	if m := contentPattern.FindStringSubmatch(raw); m != nil {
		d.Content = strings.TrimSpace(m[1])
	} else {
		d.Content = strings.TrimSpace(raw)
	}

	return d
}

// NewUserCommand builds a user-initiated command directive from a bypass
// line (the leading "!" prefix is stripped if present).
func NewUserCommand(line string) Directive {
	content := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "!"))
	return Directive{
		ID:            uuid.New().String(),
		Kind:          KindCommand,
		Payload:       content,
		Content:       content,
		UserInitiated: true,
	}
}

// CommitMessage returns the directive's purpose, or a synthesized
// description when none was supplied.
func (d Directive) CommitMessage() string {
	if d.Purpose != "" {
		return d.Purpose
	}
	if d.Kind == KindPatch {
		return "Applied diff to " + d.Target
	}
	return "Executed command: " + d.Content
}

// Result is the outcome of exactly one directive. It is rendered into the
// transcript verbatim so the model can react to it within the same turn.
type Result struct {
	Accepted     bool
	ExitCode     int
	Stdout       string
	Stderr       string
	NewContent   string // full updated file text for patches
	FailedHunks  []int
	CheckpointID string
	Err          string // directive-level failure, folded into the block
	Lint         string // optional lint hook output
}

// Render produces the model-visible result block for a directive of the
// given kind. The shapes mirror what the model is prompted to expect.
// The block ends at the closing tag with no trailing newline: the turn
// runner sends the transcript back as an assistant prefill, and the API
// rejects prefill ending in whitespace.
func (r Result) Render(kind Kind) string {
	var b strings.Builder

	if !r.Accepted {
		b.WriteString(`<result userskipped="true">` + "\n")
		b.WriteString("User skipped execution.\n")
		b.WriteString("</result>")
		return b.String()
	}

	if r.Err != "" {
		b.WriteString(`<result userskipped="false">` + "\n")
		b.WriteString(r.Err + "\n")
		b.WriteString("</result>")
		return b.String()
	}

	switch kind {
	case KindCommand:
		fmt.Fprintf(&b, "<result userskipped=%q returncode=%q commit_hash=%q>\n",
			"false", strconv.Itoa(r.ExitCode), r.CheckpointID)
		b.WriteString(r.Stdout + "\n")
		b.WriteString(r.Stderr + "\n")
	case KindPatch:
		fmt.Fprintf(&b, "<result userskipped=%q commit_hash=%q>\n", "false", r.CheckpointID)
		if len(r.FailedHunks) > 0 {
			b.WriteString("<failed_hunks>" + joinInts(r.FailedHunks) + "</failed_hunks>\n")
		}
		b.WriteString("<edited_file>\n")
		b.WriteString(r.NewContent)
		if !strings.HasSuffix(r.NewContent, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("</edited_file>\n")
	}

	if r.Lint != "" {
		b.WriteString("<lint_result>\n" + r.Lint + "\n</lint_result>\n")
	}
	b.WriteString("</result>")
	return b.String()
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ", ")
}

// Package patch turns unified-diff-style text blocks into whole-file
// updates. Hunks are located by content similarity rather than exact line
// offsets, so a diff generated against slightly stale context still applies.
package patch

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ErrMissingTarget is returned when the target file does not exist and the
// diff is not purely additive.
var ErrMissingTarget = errors.New("patch target does not exist")

// DefaultMatchDistance is how far (in characters) a hunk may drift from its
// expected location and still be applied. It directly sets the boundary
// between a reported hunk mismatch and a silent misapplication.
const DefaultMatchDistance = 1000000

// Outcome is the result of applying a diff. A non-empty Failed list is not
// an error: matched hunks are still applied and the caller reports the
// mismatches back to the model.
type Outcome struct {
	// NewContent is the complete resulting file text. Callers persist it
	// with a full overwrite, never a line patch.
	NewContent string
	// Applied is the number of hunks that matched and were applied.
	Applied int
	// Failed lists the 1-based indexes of hunks that could not be located
	// within the match distance.
	Failed []int
}

// Changed reports whether applying the diff modified the content.
func (o *Outcome) Changed() bool { return o.Applied > 0 }

// Engine applies diffs with fuzzy hunk matching.
type Engine struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewEngine returns an Engine with the given match distance.
// Pass DefaultMatchDistance unless the caller has a reason to tighten it.
func NewEngine(matchDistance int) *Engine {
	dmp := diffmatchpatch.New()
	dmp.MatchDistance = matchDistance
	return &Engine{dmp: dmp}
}

// Apply reads targetPath, applies diffText, and returns the outcome.
// The file itself is not written; the caller owns persistence.
// A missing target is an error unless the diff only adds lines, in which
// case the diff applies against empty content (a new file).
func (e *Engine) Apply(targetPath, diffText string) (*Outcome, error) {
	hunks := ParseDiff(diffText)

	current := ""
	data, err := os.ReadFile(targetPath)
	switch {
	case err == nil:
		current = string(data)
	case errors.Is(err, os.ErrNotExist):
		if !purelyAdditive(hunks) {
			return nil, fmt.Errorf("%w: %s", ErrMissingTarget, targetPath)
		}
	default:
		return nil, fmt.Errorf("reading patch target %s: %w", targetPath, err)
	}

	return e.ApplyToContent(current, hunks), nil
}

// ApplyToContent applies parsed hunks to content. Each hunk applies
// independently against the evolving text; a hunk that cannot be located
// within the match distance is recorded in Failed and the text is left as
// it was before that hunk.
func (e *Engine) ApplyToContent(content string, hunks []Hunk) *Outcome {
	out := &Outcome{NewContent: content}

	for i, hunk := range hunks {
		patches := e.dmp.PatchMake(hunk.diffs)
		next, applied := e.dmp.PatchApply(patches, out.NewContent)
		if !allApplied(applied) {
			out.Failed = append(out.Failed, i+1)
			continue
		}
		out.NewContent = next
		out.Applied++
	}

	return out
}

// Hunk is one contiguous change region parsed from a diff.
type Hunk struct {
	diffs []diffmatchpatch.Diff
}

// ParseDiff splits a unified-diff-style text into hunks. `---`/`+++` file
// headers are ignored, `@@` lines delimit hunks, and lines outside the
// ` `/`+`/`-` prefixes are skipped. A payload with no diff structure at all
// parses to zero hunks.
func ParseDiff(diffText string) []Hunk {
	dmp := diffmatchpatch.New()

	var hunks []Hunk
	var current []diffmatchpatch.Diff

	flush := func() {
		if len(current) == 0 {
			return
		}
		current = dmp.DiffCleanupMerge(current)
		hunks = append(hunks, Hunk{diffs: current})
		current = nil
	}

	for _, line := range strings.Split(diffText, "\n") {
		if strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++") {
			continue
		}
		if strings.HasPrefix(line, "@@") {
			flush()
			continue
		}
		switch {
		case strings.HasPrefix(line, " "):
			current = append(current, diffmatchpatch.Diff{Type: diffmatchpatch.DiffEqual, Text: line[1:] + "\n"})
		case strings.HasPrefix(line, "+"):
			current = append(current, diffmatchpatch.Diff{Type: diffmatchpatch.DiffInsert, Text: line[1:] + "\n"})
		case strings.HasPrefix(line, "-"):
			current = append(current, diffmatchpatch.Diff{Type: diffmatchpatch.DiffDelete, Text: line[1:] + "\n"})
		}
	}
	flush()

	return hunks
}

// purelyAdditive reports whether every line in every hunk is an insertion.
func purelyAdditive(hunks []Hunk) bool {
	for _, h := range hunks {
		for _, d := range h.diffs {
			if d.Type != diffmatchpatch.DiffInsert {
				return false
			}
		}
	}
	return true
}

func allApplied(results []bool) bool {
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

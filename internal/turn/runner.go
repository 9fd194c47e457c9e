package turn

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/fakeyudi/tandem/internal/session"
)

// state is the protocol position between model calls. Transitions are
// driven by the stop reason of each call, never by inspecting the text.
type state int

const (
	stateGenerating state = iota
	stateAwaitingDirectiveClose
	stateDispatching
	stateDone
)

// Dispatcher resolves one directive: approval, execution, checkpoint.
// A rejected directive comes back with Accepted=false; an error is
// reserved for failures that must abort the whole turn.
type Dispatcher interface {
	Dispatch(ctx context.Context, d Directive) (Result, error)
}

// Runner converts one user turn into one assistant turn, possibly spanning
// several underlying model calls. It is an explicit loop, not recursion, so
// a turn with many directives cannot grow the call stack.
type Runner struct {
	Client     StreamClient
	Dispatcher Dispatcher
	// Out receives the live stream: text deltas, markers, and rendered
	// result blocks, exactly as they enter the transcript.
	Out       io.Writer
	MaxTokens int
	Log       *zap.Logger
}

// NewRunner wires a turn runner.
func NewRunner(client StreamClient, dispatcher Dispatcher, out io.Writer, maxTokens int, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Runner{Client: client, Dispatcher: dispatcher, Out: out, MaxTokens: maxTokens, Log: log}
}

// RunTurn streams the assistant's response to history, resolving each
// embedded directive before resuming generation. It returns the final
// assistant text: narrative, markers, payloads, and result blocks, in
// stream order. A transport error aborts the turn with no usable text.
func (r *Runner) RunTurn(ctx context.Context, system string, history []session.Message) (string, error) {
	var transcript strings.Builder
	st := stateGenerating
	openKind := KindCommand

	for st != stateDone {
		var buf strings.Builder
		stop, err := r.Client.Stream(ctx, Request{
			System:        system,
			Messages:      history,
			Prefix:        transcript.String(),
			StopSequences: StopMarkers(),
			MaxTokens:     r.MaxTokens,
		}, func(delta string) {
			buf.WriteString(delta)
			fmt.Fprint(r.Out, delta)
		})
		if err != nil {
			return "", fmt.Errorf("model stream: %w", err)
		}

		if stop.Reason == StopEndTurn {
			transcript.WriteString(buf.String())
			st = stateDone
			continue
		}

		marker := Marker(stop.Sequence)
		if !marker.known() {
			return "", fmt.Errorf("transport stopped on unknown sequence %q", stop.Sequence)
		}

		switch {
		case marker.Opens():
			// A directive region begins. The next call accumulates its
			// payload. An open inside an unclosed region simply restarts
			// the region; the model sees its own text either way.
			openKind = marker.DirectiveKind()
			transcript.WriteString(buf.String())
			transcript.WriteString(string(marker))
			fmt.Fprint(r.Out, string(marker))
			st = stateAwaitingDirectiveClose

		case marker.Closes():
			// The buffer since the open marker is the directive payload.
			// A close with no matching open still dispatches, with the
			// kind inferred from the close marker itself.
			kind := openKind
			if st != stateAwaitingDirectiveClose {
				kind = marker.DirectiveKind()
				r.Log.Warn("close marker without open; dispatching anyway",
					zap.String("marker", string(marker)))
			}
			st = stateDispatching
			fmt.Fprintln(r.Out, string(marker))

			directive := ParsePayload(kind, buf.String())
			r.Log.Info("dispatching directive",
				zap.String("id", directive.ID),
				zap.String("kind", kind.String()),
				zap.String("target", directive.Target))

			result, err := r.Dispatcher.Dispatch(ctx, directive)
			if err != nil {
				return "", fmt.Errorf("dispatching %s directive: %w", kind, err)
			}

			block := result.Render(kind)
			transcript.WriteString(buf.String())
			transcript.WriteString(string(marker) + "\n")
			transcript.WriteString(block)
			fmt.Fprint(r.Out, block)

			if !result.Accepted {
				// Rejection ends the continuation loop; the model gets a
				// fresh user turn before it may try again.
				r.Log.Info("directive rejected by operator, ending turn",
					zap.String("id", directive.ID))
				return transcript.String(), nil
			}
			st = stateGenerating
		}
	}

	return transcript.String(), nil
}

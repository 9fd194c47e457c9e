package turn

import (
	"context"

	"github.com/fakeyudi/tandem/internal/session"
)

// StopReason says how a model call finished.
type StopReason int

const (
	// StopEndTurn means the model ended its turn naturally.
	StopEndTurn StopReason = iota
	// StopSequence means generation halted on one of the stop markers.
	StopSequence
)

func (r StopReason) String() string {
	if r == StopSequence {
		return "stop_sequence"
	}
	return "end_turn"
}

// Stop is the terminal signal of one streamed model call.
type Stop struct {
	Reason StopReason
	// Sequence is the marker text that halted generation when Reason is
	// StopSequence.
	Sequence string
}

// Request is one model call: the conversation so far plus the assistant
// prefix accumulated during the current turn.
type Request struct {
	System        string
	Messages      []session.Message
	Prefix        string // partial assistant text to continue from; may be empty
	StopSequences []string
	MaxTokens     int
}

// StreamClient is the transport contract the turn runner depends on. The
// implementation calls onDelta for every incremental text chunk, in order,
// and returns how generation stopped. Any returned error aborts the turn.
type StreamClient interface {
	Stream(ctx context.Context, req Request, onDelta func(text string)) (Stop, error)
}

// Package turn drives one user turn through the stop-marker protocol:
// it streams assistant text, pauses at embedded command/diff directives,
// dispatches them, folds results back into the transcript, and resumes
// generation until the model ends the turn naturally.
package turn

// Kind distinguishes the two directive flavors the model can emit.
type Kind int

const (
	KindCommand Kind = iota
	KindPatch
)

func (k Kind) String() string {
	if k == KindPatch {
		return "patch"
	}
	return "command"
}

// Marker is a stop sequence delimiting a directive region in the model's
// output stream. The vocabulary lives here as data so no string literal is
// scattered through the state machine.
type Marker string

const (
	MarkerOpenCommand  Marker = "<command>"
	MarkerCloseCommand Marker = "</command>"
	MarkerOpenPatch    Marker = "<diff>"
	MarkerClosePatch   Marker = "</diff>"
)

// StopMarkers returns the full marker vocabulary for the transport's
// stop-sequence set.
func StopMarkers() []string {
	return []string{
		string(MarkerOpenCommand),
		string(MarkerCloseCommand),
		string(MarkerOpenPatch),
		string(MarkerClosePatch),
	}
}

// Opens reports whether m begins a directive region.
func (m Marker) Opens() bool {
	return m == MarkerOpenCommand || m == MarkerOpenPatch
}

// Closes reports whether m ends a directive region.
func (m Marker) Closes() bool {
	return m == MarkerCloseCommand || m == MarkerClosePatch
}

// DirectiveKind returns the directive kind a marker belongs to.
func (m Marker) DirectiveKind() Kind {
	if m == MarkerOpenPatch || m == MarkerClosePatch {
		return KindPatch
	}
	return KindCommand
}

// known reports whether m is part of the marker vocabulary.
func (m Marker) known() bool {
	switch m {
	case MarkerOpenCommand, MarkerCloseCommand, MarkerOpenPatch, MarkerClosePatch:
		return true
	}
	return false
}

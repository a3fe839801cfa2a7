// Package speech provides the output sink boundary: the bridge hands
// finished utterances to a Sink and never deals with the synthesizer
// directly.
package speech

// Sink is the contract for delivering utterances to the user. Blank text
// and an unavailable backend are no-ops, not errors; errors report
// transient per-call failures only.
type Sink interface {
	// Initialize probes the backend. Idempotent; returns false permanently
	// once the backend is known unavailable.
	Initialize() bool
	// Speak voices text. When interrupt is true any in-flight speech is
	// cut off first.
	Speak(text string, interrupt bool) error
	// DisplayBraille mirrors text to a braille device, if one is wired.
	DisplayBraille(text string) error
	// Stop silences any in-flight output.
	Stop() error
	// Active reports whether a real backend is in use.
	Active() bool
}

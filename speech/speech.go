// Package speech plays assistant replies through the platform's native
// text-to-speech command. Playback failures are non-critical; a machine
// with no TTS installed just stays silent.
package speech

import "strings"

var disabled bool

func Disable() { disabled = true }

type Engine struct{}

func New() *Engine { return &Engine{} }

// Speak voices text in the given BCP-47 language tag. Blocks until the
// utterance finishes; run it from a goroutine when the caller must not
// wait.
func (e *Engine) Speak(text, language string) error {
	if disabled || strings.TrimSpace(text) == "" {
		return nil
	}
	return speak(text, language)
}

// Null is a no-op synthesizer for headless runs.
type Null struct{}

func (Null) Speak(text, language string) error { return nil }

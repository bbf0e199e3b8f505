// Package cue plays short audible cues around the recording lifecycle so
// the user knows when the microphone is hot without looking at the screen.
package cue

var disabled bool

func Disable() { disabled = true }

const (
	sampleRate = 44100

	// Arm cue: high pitch, short — mic is now recording
	armFreq   = 1320
	armVolume = 0.5
	armDecay  = 60

	// Done cue: medium pitch — recording accepted
	doneFreq   = 880
	doneVolume = 0.5
	doneDecay  = 40

	// Deny cue: low double-beep — rejection or device problem
	denyFreq   = 330
	denyVolume = 0.6
	denyDecay  = 30
)

//go:build !linux && !darwin

package cue

// No cue playback on this platform - cues disabled.

func Init() {}
func Arm()  {}
func Done() {}
func Deny() {}

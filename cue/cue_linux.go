//go:build linux

package cue

import (
	"math"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

var (
	armSamples  []int16
	doneSamples []int16
	denySamples []int16
	soundOnce   sync.Once
)

func initSound() {
	armSamples = tone(sampleRate, armFreq, 0.2, armVolume, armDecay)
	doneSamples = tone(sampleRate, doneFreq, 0.2, doneVolume, doneDecay)
	denySamples = doubleTone(sampleRate, denyFreq, 0.08, 0.05, denyVolume, denyDecay)
}

// tone renders an exponentially decaying sine as interleaved stereo.
func tone(sampleRate int, freq, duration, volume, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		s := int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
		samples[i*2] = s
		samples[i*2+1] = s
	}
	return samples
}

func doubleTone(sampleRate int, freq, beepDur, gapDur, volume, decay float64) []int16 {
	beep := tone(sampleRate, freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur)*2)
	result := make([]int16, 0, len(beep)*2+len(gap))
	result = append(result, beep...)
	result = append(result, gap...)
	result = append(result, beep...)
	return result
}

func playSamples(samples []int16) {
	if len(samples) == 0 {
		return
	}
	c, err := pulse.NewClient()
	if err != nil {
		return
	}
	defer c.Close()

	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	stream, err := c.NewPlayback(reader,
		pulse.PlaybackStereo,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm), uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		return
	}
	stream.Start()
	stream.Drain()
	stream.Stop()
	stream.Close()
}

func Init() {
	soundOnce.Do(initSound)
}

func Arm() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	go playSamples(armSamples)
}

func Done() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	go playSamples(doneSamples)
}

func Deny() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	go playSamples(denySamples)
}

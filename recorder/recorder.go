// Package recorder turns a capture device plus an encoder into finished
// audio artifacts. One Recorder owns one capture device; Start/Stop pairs
// produce one artifact each, and a background monitor watches input levels
// for silence.
package recorder

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"voxbank/audio"
	"voxbank/encoder"
	"voxbank/log"
)

var (
	ErrBusy = errors.New("recording already in progress")
	// ErrTooShort: less than 100ms of audio was captured, not worth sending.
	ErrTooShort = errors.New("recording too short")
)

const minFrames = encoder.SampleRate / 10

// Config tunes one Recorder. All callbacks are invoked from internal
// goroutines and must not block.
type Config struct {
	Format string // "wav" or "flac"

	// AutoStopOnSilence ends the capture after 30s without speech.
	AutoStopOnSilence bool

	OnLevel   func(rms float64)
	OnSilence func(ev SilenceEvent)
	OnTick    func(elapsed time.Duration)
}

type Recorder struct {
	ctx    audio.Context
	device *audio.DeviceInfo
	cfg    Config

	mu        sync.Mutex
	capture   audio.CaptureDevice
	pcm       []byte
	frames    uint64
	startedAt time.Time
	active    bool
	finished  bool

	speechTick atomic.Bool
	done       chan struct{}
	closeOnce  sync.Once

	seq atomic.Uint64
}

func New(ctx audio.Context, device *audio.DeviceInfo, cfg Config) *Recorder {
	if cfg.Format == "" {
		cfg.Format = "wav"
	}
	return &Recorder{ctx: ctx, device: device, cfg: cfg}
}

// Start opens the device and begins buffering PCM. A second Start without
// an intervening Stop returns ErrBusy.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return ErrBusy
	}
	r.active = true
	r.finished = false
	r.pcm = r.pcm[:0]
	r.frames = 0
	r.startedAt = time.Now()
	r.done = make(chan struct{})
	r.closeOnce = sync.Once{}
	r.mu.Unlock()

	capture, err := r.ctx.NewCapture(r.device, audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	})
	if err != nil {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
		return err
	}

	capture.SetCallback(func(data []byte, frameCount uint32) {
		if len(data) == 0 {
			return
		}
		r.mu.Lock()
		if !r.active || r.finished {
			r.mu.Unlock()
			return
		}
		r.pcm = append(r.pcm, data...)
		r.frames += uint64(frameCount)
		r.mu.Unlock()

		rms := rmsOf(data)
		if rms > speechRMSThreshold {
			r.speechTick.Store(true)
		}
		if r.cfg.OnLevel != nil {
			r.cfg.OnLevel(rms)
		}
	})

	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.capture = capture
	r.mu.Unlock()

	go r.monitor()
	return nil
}

func (r *Recorder) monitor() {
	mon := newSilenceMonitor(r.cfg.AutoStopOnSilence)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if r.cfg.OnTick != nil {
				r.cfg.OnTick(time.Since(r.startedAt))
			}
			ev := mon.Tick(r.speechTick.Swap(false))
			if ev == SilenceNone {
				continue
			}
			if r.cfg.OnSilence != nil {
				r.cfg.OnSilence(ev)
			}
			if ev == SilenceAutoStop {
				log.Info("silence_auto_stop")
				r.release()
				return
			}
		}
	}
}

// release detaches the callback and stops the device; buffered PCM stays
// until Stop collects it.
func (r *Recorder) release() {
	r.mu.Lock()
	capture := r.capture
	if r.finished || capture == nil {
		r.mu.Unlock()
		return
	}
	r.finished = true
	r.mu.Unlock()

	capture.Stop()
	capture.ClearCallback()
	capture.Close()
	r.closeOnce.Do(func() { close(r.done) })
}

// Stop ends the capture and encodes what was buffered into an artifact.
// Stopping while idle is a no-op returning no artifact.
func (r *Recorder) Stop() (*audio.Artifact, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil, nil
	}
	r.mu.Unlock()

	r.release()

	r.mu.Lock()
	pcm := r.pcm
	frames := r.frames
	r.active = false
	r.capture = nil
	r.pcm = nil
	r.mu.Unlock()

	if frames < minFrames {
		return nil, ErrTooShort
	}

	enc, err := encoder.New(r.cfg.Format)
	if err != nil {
		return nil, err
	}

	encodeStart := time.Now()
	samples := bytesToSamples(pcm)
	for off := 0; off < len(samples); off += encoder.BlockSize {
		end := off + encoder.BlockSize
		if end > len(samples) {
			end = len(samples)
		}
		if err := enc.EncodeBlock(samples[off:end]); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}

	data := enc.Bytes()
	audioLen := float64(frames) / float64(encoder.SampleRate)
	rawKB := float64(len(pcm)) / 1024
	outKB := float64(len(data)) / 1024
	compression := 0.0
	if rawKB > 0 {
		compression = (1 - outKB/rawKB) * 100
	}
	log.Recording(log.RecordingMetrics{
		AudioLengthS:     audioLen,
		RawSizeKB:        rawKB,
		CompressedSizeKB: outKB,
		CompressionPct:   compression,
		EncodeTimeMs:     float64(time.Since(encodeStart).Milliseconds()),
	}, r.cfg.Format, "capture")

	return &audio.Artifact{
		Data: data,
		MIME: enc.MIME(),
		Seq:  r.seq.Add(1),
	}, nil
}

// Abort ends the capture and discards whatever was buffered.
func (r *Recorder) Abort() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.release()

	r.mu.Lock()
	r.active = false
	r.capture = nil
	r.pcm = nil
	r.frames = 0
	r.mu.Unlock()
}

// Active reports whether a capture is currently buffering.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active && !r.finished
}

func rmsOf(data []byte) float64 {
	if len(data) < 2 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(data[i:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(len(data)/2))
}

func bytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

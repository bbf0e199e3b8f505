package audio

import (
	"os"
	"sync"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replays canned PCM through the CaptureDevice interface so the
// recorder and the headless test mode can run without a real microphone.
type FakeContext struct {
	pcm      []byte
	OpenErr  error // returned by NewCapture when set
	StartErr error // returned by the capture's Start when set

	Last *FakeCapture // most recently opened capture
}

func NewFakeContext(pcm []byte) *FakeContext {
	return &FakeContext{pcm: pcm}
}

// NewFakeContextFromWAV loads a WAV fixture, stripping the RIFF header.
func NewFakeContextFromWAV(wavPath string) (*FakeContext, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) > WAVHeaderSize {
		data = data[WAVHeaderSize:]
	}
	return &FakeContext{pcm: data}, nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	f.Last = &FakeCapture{pcm: f.pcm, startErr: f.StartErr}
	return f.Last, nil
}

type FakeCapture struct {
	pcm      []byte
	startErr error

	mu       sync.Mutex
	cb       DataCallback
	started  bool
	Stops    int // Stop call count, for paired acquire/release assertions
	Clears   int // ClearCallback call count
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.Clears++
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

// Start feeds the whole PCM fixture synchronously, one chunk at a time, in
// arrival order. Deterministic on purpose: by the time Start returns every
// chunk has been delivered.
func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return ErrDeviceUnavailable
	}
	f.started = true
	cb := f.cb
	f.mu.Unlock()

	if cb == nil {
		return nil
	}
	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	for pos := 0; pos < len(f.pcm); {
		end := min(pos+chunkBytes, len(f.pcm))
		chunk := make([]byte, end-pos)
		copy(chunk, f.pcm[pos:end])
		cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
		pos = end
	}
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	f.started = false
	f.Stops++
	f.mu.Unlock()
}

func (f *FakeCapture) Close() {}

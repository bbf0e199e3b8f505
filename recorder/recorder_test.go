package recorder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"voxbank/audio"
	"voxbank/encoder"
)

// sinePCM builds n samples of loud 16-bit PCM so the level callback sees
// speech-grade RMS.
func sinePCM(n int) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(8000)
		if i%2 == 1 {
			v = -8000
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestStartStopProducesWAV(t *testing.T) {
	pcm := sinePCM(encoder.SampleRate) // 1 second
	ctx := audio.NewFakeContext(pcm)

	var levels int
	rec := New(ctx, nil, Config{Format: "wav", OnLevel: func(rms float64) {
		if rms <= 0 {
			t.Errorf("rms = %v, want > 0", rms)
		}
		levels++
	}})

	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	art, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if art.MIME != "audio/wav" {
		t.Errorf("MIME = %q", art.MIME)
	}
	if !bytes.HasPrefix(art.Data, []byte("RIFF")) {
		t.Error("artifact is not a WAV file")
	}
	if len(art.Data) != audio.WAVHeaderSize+len(pcm) {
		t.Errorf("artifact size = %d, want %d", len(art.Data), audio.WAVHeaderSize+len(pcm))
	}
	if levels == 0 {
		t.Error("level callback never fired")
	}
}

func TestStartWhileActiveIsBusy(t *testing.T) {
	ctx := audio.NewFakeContext(sinePCM(encoder.SampleRate))
	rec := New(ctx, nil, Config{})

	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rec.Start(); !errors.Is(err, ErrBusy) {
		t.Errorf("second Start = %v, want ErrBusy", err)
	}
	if _, err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	rec := New(audio.NewFakeContext(nil), nil, Config{})
	art, err := rec.Stop()
	if err != nil {
		t.Errorf("Stop while idle = %v, want nil", err)
	}
	if art != nil {
		t.Error("Stop while idle returned an artifact")
	}
}

func TestTooShortRecording(t *testing.T) {
	// 50ms of audio, below the 100ms floor.
	ctx := audio.NewFakeContext(sinePCM(encoder.SampleRate / 20))
	rec := New(ctx, nil, Config{})

	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := rec.Stop(); !errors.Is(err, ErrTooShort) {
		t.Errorf("Stop = %v, want ErrTooShort", err)
	}
}

func TestStopReleasesDevice(t *testing.T) {
	ctx := audio.NewFakeContext(sinePCM(encoder.SampleRate))
	rec := New(ctx, nil, Config{})

	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	cap := ctx.Last
	if cap.Stops != 1 {
		t.Errorf("Stops = %d, want 1", cap.Stops)
	}
	if cap.Clears != 1 {
		t.Errorf("Clears = %d, want 1", cap.Clears)
	}
	if rec.Active() {
		t.Error("recorder still active after Stop")
	}
}

func TestAbortDiscardsAudio(t *testing.T) {
	ctx := audio.NewFakeContext(sinePCM(encoder.SampleRate))
	rec := New(ctx, nil, Config{})

	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec.Abort()
	if rec.Active() {
		t.Error("recorder active after Abort")
	}
	if art, err := rec.Stop(); err != nil || art != nil {
		t.Errorf("Stop after Abort = (%v, %v), want (nil, nil)", art, err)
	}
	if ctx.Last.Clears != 1 {
		t.Errorf("Clears = %d, want 1", ctx.Last.Clears)
	}
}

func TestStartErrorLeavesRecorderIdle(t *testing.T) {
	ctx := audio.NewFakeContext(sinePCM(encoder.SampleRate))
	ctx.StartErr = audio.ErrDeviceUnavailable
	rec := New(ctx, nil, Config{})

	if err := rec.Start(); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("Start = %v, want ErrDeviceUnavailable", err)
	}
	if rec.Active() {
		t.Error("recorder active after failed Start")
	}

	// A later Start must work once the device recovers.
	ctx.StartErr = nil
	if err := rec.Start(); err != nil {
		t.Fatalf("Start after recovery: %v", err)
	}
	if _, err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestFlacFormat(t *testing.T) {
	ctx := audio.NewFakeContext(sinePCM(encoder.SampleRate))
	rec := New(ctx, nil, Config{Format: "flac"})

	if err := rec.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	art, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if art.MIME != "audio/flac" {
		t.Errorf("MIME = %q", art.MIME)
	}
	if !bytes.HasPrefix(art.Data, []byte("fLaC")) {
		t.Error("artifact is not a FLAC file")
	}
}

func TestSequenceNumbersIncrease(t *testing.T) {
	ctx := audio.NewFakeContext(sinePCM(encoder.SampleRate))
	rec := New(ctx, nil, Config{})

	var seqs []uint64
	for i := 0; i < 3; i++ {
		if err := rec.Start(); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		art, err := rec.Stop()
		if err != nil {
			t.Fatalf("Stop %d: %v", i, err)
		}
		seqs = append(seqs, art.Seq)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Errorf("seqs = %v, want strictly increasing", seqs)
		}
	}
}

func TestSilenceMonitorWarnsAndClears(t *testing.T) {
	mon := newSilenceMonitor(false)

	var ev SilenceEvent
	for i := 0; i < 80; i++ {
		ev = mon.Tick(false)
		if ev != SilenceNone {
			break
		}
	}
	if ev != SilenceWarn {
		t.Fatalf("after 8s silence got %v, want SilenceWarn", ev)
	}

	cleared := false
	for i := 0; i < 80; i++ {
		if mon.Tick(true) == SilenceWarnClear {
			cleared = true
			break
		}
	}
	if !cleared {
		t.Error("warning never cleared after speech resumed")
	}
}

func TestSilenceMonitorAutoStop(t *testing.T) {
	mon := newSilenceMonitor(true)

	var got SilenceEvent
	for i := 0; i < 400; i++ {
		ev := mon.Tick(false)
		if ev == SilenceAutoStop {
			got = ev
			break
		}
	}
	if got != SilenceAutoStop {
		t.Fatal("auto-stop never fired after 30s of silence")
	}
}

func TestSilenceMonitorNoAutoStopWhenDisabled(t *testing.T) {
	mon := newSilenceMonitor(false)
	for i := 0; i < 400; i++ {
		if mon.Tick(false) == SilenceAutoStop {
			t.Fatal("auto-stop fired with autoStop disabled")
		}
	}
}

package encoder

import (
	"bytes"
	"encoding/binary"
	"sync"
)

// WavEncoder buffers PCM and emits a RIFF/WAVE blob on Close. The backend
// stores enrollment and verification samples as .wav, so this is the default
// artifact format.
type WavEncoder struct {
	mu          sync.Mutex
	data        bytes.Buffer
	out         []byte
	totalFrames uint64
	closed      bool
}

func NewWav() (*WavEncoder, error) {
	return &WavEncoder{}, nil
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	buf := make([]byte, len(block)*2)
	for i, s := range block {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	e.data.Write(buf)
	e.totalFrames += uint64(len(block))
	return nil
}

func (e *WavEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	pcm := e.data.Bytes()
	const headerSize = 44
	byteRate := SampleRate * Channels * BitsPerSample / 8
	blockAlign := Channels * BitsPerSample / 8

	out := make([]byte, 0, headerSize+len(pcm))
	var hdr bytes.Buffer
	hdr.WriteString("RIFF")
	binary.Write(&hdr, binary.LittleEndian, uint32(36+len(pcm)))
	hdr.WriteString("WAVE")
	hdr.WriteString("fmt ")
	binary.Write(&hdr, binary.LittleEndian, uint32(16))
	binary.Write(&hdr, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&hdr, binary.LittleEndian, uint16(Channels))
	binary.Write(&hdr, binary.LittleEndian, uint32(SampleRate))
	binary.Write(&hdr, binary.LittleEndian, uint32(byteRate))
	binary.Write(&hdr, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&hdr, binary.LittleEndian, uint16(BitsPerSample))
	hdr.WriteString("data")
	binary.Write(&hdr, binary.LittleEndian, uint32(len(pcm)))

	out = append(out, hdr.Bytes()...)
	out = append(out, pcm...)
	e.out = out
	return nil
}

func (e *WavEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out
}

func (e *WavEncoder) TotalFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalFrames
}

func (e *WavEncoder) MIME() string { return "audio/wav" }

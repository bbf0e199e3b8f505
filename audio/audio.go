package audio

import "errors"

const WAVHeaderSize = 44

// Acquisition failures callers care about. Backends map their native
// errors onto these so nothing above this package sees pulse/malgo types.
var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// Artifact is one completed recording: an immutable byte blob with its
// MIME type and a locally assigned sequence id. Never mutated after
// assembly; ownership passes to whoever received it.
type Artifact struct {
	Data []byte
	MIME string
	Seq  uint64
}

// Ext returns the file extension the backend expects for this artifact.
func (a *Artifact) Ext() string {
	switch a.MIME {
	case "audio/flac":
		return "flac"
	default:
		return "wav"
	}
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

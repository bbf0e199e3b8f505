package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	convFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: VOXBANK_LOG_PATH environment variable
	envPath := os.Getenv("VOXBANK_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	convPath := filepath.Join(dir, "conversation_log.txt")
	convFile, err = os.OpenFile(convPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if convFile != nil {
		convFile.Close()
		convFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// Request records one backend round-trip with its timing breakdown source.
func Request(op string, status int, totalMs float64, connReused bool) {
	if !logReady {
		return
	}
	connStatus := "new"
	if connReused {
		connStatus = "reused"
	}
	diagLog.Info().
		Str("op", op).
		Int("status", status).
		Float64("total_ms", totalMs).
		Str("conn", connStatus).
		Msg("request")
}

func LoginVoice(username string, success bool, score float64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("username", username).
		Bool("success", success).
		Float64("score", score).
		Msg("voice_verification")
}

func OTPAttempt(username string, success bool, attempt int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("username", username).
		Bool("success", success).
		Int("attempt", attempt).
		Msg("otp_verification")
}

func EnrollResult(username string, sampleCount int, success bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("username", username).
		Int("samples", sampleCount).
		Bool("success", success).
		Msg("enrollment")
}

// RecordingMetrics summarizes one finished capture.
type RecordingMetrics struct {
	AudioLengthS     float64
	RawSizeKB        float64
	CompressedSizeKB float64
	CompressionPct   float64
	EncodeTimeMs     float64
}

func Recording(m RecordingMetrics, format, purpose string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("format", format).
		Str("purpose", purpose).
		Float64("audio_s", m.AudioLengthS).
		Float64("raw_kb", m.RawSizeKB).
		Float64("compressed_kb", m.CompressedSizeKB).
		Float64("compression_pct", m.CompressionPct).
		Float64("encode_ms", m.EncodeTimeMs).
		Msg("recording")
}

func CommandTurn(intent, language string, audio bool, totalMs float64) {
	if !logReady {
		return
	}
	mode := "text"
	if audio {
		mode = "audio"
	}
	diagLog.Info().
		Str("intent", intent).
		Str("language", language).
		Str("mode", mode).
		Float64("total_ms", totalMs).
		Msg("command")
}

// Conversation appends one turn to the plain-text conversation log.
func Conversation(role, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, role, text)
	convFile.WriteString(line)
}

func SessionStart(username, language string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("username", username).
		Str("language", language).
		Msg("session_start")
}

func SessionEnd(turns int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("turns", turns).
		Msg("session_end")
}

// Package auth runs the two-factor login sequence: voice verification
// first, then an emailed one-time passcode. Both must pass before a
// session is Authenticated.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"voxbank/api"
	"voxbank/audio"
	"voxbank/log"
)

type State int

const (
	Idle State = iota
	VoiceCheckPending
	VoiceVerified
	VoiceRejected
	OtpPending
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case VoiceCheckPending:
		return "voice_check_pending"
	case VoiceVerified:
		return "voice_verified"
	case VoiceRejected:
		return "voice_rejected"
	case OtpPending:
		return "otp_pending"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ErrCanceled is returned when a call's result arrived after Cancel reset
// the sequence; the result was discarded.
var ErrCanceled = errors.New("login attempt canceled")

type Config struct {
	// MaxOTPAttempts bounds wrong-code submissions before the whole
	// sequence fails and the user must restart from voice.
	MaxOTPAttempts int

	// ConfirmTimeout caps the score-retrieval re-verification after a
	// correct OTP. On timeout the stage-one score is kept.
	ConfirmTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxOTPAttempts: 5,
		ConfirmTimeout: 15 * time.Second,
	}
}

// Sequencer is one login attempt. Not restartable concurrently: calls are
// serialized by the caller (one user, one flow), the mutex only protects
// against a Cancel racing an in-flight response.
type Sequencer struct {
	client api.Client
	cfg    Config

	mu       sync.Mutex
	state    State
	username string
	score    float64
	reason   string
	artifact *audio.Artifact
	attempts int
	gen      uint64
}

func NewSequencer(client api.Client, cfg Config) *Sequencer {
	if cfg.MaxOTPAttempts <= 0 {
		cfg.MaxOTPAttempts = DefaultConfig().MaxOTPAttempts
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfig().ConfirmTimeout
	}
	return &Sequencer{client: client, cfg: cfg}
}

func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Score is the voice-match score, meaningful from VoiceVerified onward.
func (s *Sequencer) Score() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

func (s *Sequencer) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Reason is the server-supplied message for the last rejection or failure,
// surfaced verbatim.
func (s *Sequencer) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// SubmitVoice runs stage one. On a match it immediately requests OTP
// delivery and lands in OtpPending; on an authoritative miss it lands in
// VoiceRejected with the server's reason. No automatic retries.
func (s *Sequencer) SubmitVoice(ctx context.Context, username string, artifact *audio.Artifact) (State, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return s.State(), api.Invalid("username must not be empty")
	}
	if artifact == nil || len(artifact.Data) == 0 {
		return s.State(), api.Invalid("no audio sample recorded")
	}

	s.mu.Lock()
	switch s.state {
	case Idle, VoiceRejected, Failed:
	default:
		st := s.state
		s.mu.Unlock()
		return st, api.Invalid("login already in progress")
	}
	s.gen++
	gen := s.gen
	s.state = VoiceCheckPending
	s.username = username
	s.artifact = artifact
	s.reason = ""
	s.attempts = 0
	s.mu.Unlock()

	result, err := s.client.VerifyVoice(ctx, username, artifact)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return Idle, ErrCanceled
	}
	if err != nil {
		s.state = Idle
		s.reason = err.Error()
		s.mu.Unlock()
		return Idle, err
	}
	log.LoginVoice(username, result.Success, result.Score)
	if !result.Success {
		s.state = VoiceRejected
		s.reason = result.Message
		s.mu.Unlock()
		return VoiceRejected, &api.RejectionError{Op: "verify_voice", Message: result.Message}
	}
	s.state = VoiceVerified
	s.score = result.Score
	s.mu.Unlock()

	return s.requestOTP(ctx, username, gen)
}

func (s *Sequencer) requestOTP(ctx context.Context, username string, gen uint64) (State, error) {
	err := s.client.IssueOTP(ctx, username)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return Idle, ErrCanceled
	}
	if err != nil {
		// Voice already passed; stay there so ResendOTP can retry
		// delivery without a new recording.
		s.reason = err.Error()
		return s.state, err
	}
	s.state = OtpPending
	return OtpPending, nil
}

// ResendOTP asks for a fresh code. Valid once voice has been verified.
func (s *Sequencer) ResendOTP(ctx context.Context) (State, error) {
	s.mu.Lock()
	if s.state != VoiceVerified && s.state != OtpPending {
		st := s.state
		s.mu.Unlock()
		return st, api.Invalid("no verified voice login to resend a code for")
	}
	gen := s.gen
	username := s.username
	s.mu.Unlock()
	return s.requestOTP(ctx, username, gen)
}

// SubmitOTP runs stage two. The code must be exactly six digits. A wrong
// code keeps the state at OtpPending for another attempt, up to the
// configured bound; a correct code re-verifies the stored voice sample to
// refresh the match score before landing in Authenticated.
func (s *Sequencer) SubmitOTP(ctx context.Context, code string) (State, error) {
	code = strings.TrimSpace(code)
	if len(code) != 6 || !allDigits(code) {
		return s.State(), api.Invalid("code must be exactly 6 digits")
	}

	s.mu.Lock()
	if s.state != OtpPending {
		st := s.state
		s.mu.Unlock()
		return st, api.Invalid("no code is expected in state %s", st)
	}
	gen := s.gen
	username := s.username
	s.mu.Unlock()

	result, err := s.client.VerifyOTP(ctx, username, code)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return Idle, ErrCanceled
	}
	if err != nil {
		s.reason = err.Error()
		s.mu.Unlock()
		return OtpPending, err
	}
	s.attempts++
	log.OTPAttempt(username, result.Success, s.attempts)
	if !result.Success {
		s.reason = result.Message
		if s.attempts >= s.cfg.MaxOTPAttempts {
			s.state = Failed
			s.reason = "too many incorrect codes"
			s.mu.Unlock()
			return Failed, &api.RejectionError{Op: "verify_otp", Message: "too many incorrect codes"}
		}
		s.mu.Unlock()
		return OtpPending, &api.RejectionError{Op: "verify_otp", Message: result.Message}
	}
	artifact := s.artifact
	s.mu.Unlock()

	// The OTP endpoint does not return the match score, so re-run the
	// voice check to retain it. Bounded: on error or timeout the stage-one
	// score stands.
	confirmCtx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	confirm, confirmErr := s.client.VerifyVoice(confirmCtx, username, artifact)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return Idle, ErrCanceled
	}
	if confirmErr == nil && confirm.Success {
		s.score = confirm.Score
	}
	s.state = Authenticated
	s.reason = ""
	s.artifact = nil
	return Authenticated, nil
}

// Cancel resets the sequence to Idle from any state. Responses of calls
// still in flight are discarded when they land.
func (s *Sequencer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state = Idle
	s.username = ""
	s.score = 0
	s.reason = ""
	s.artifact = nil
	s.attempts = 0
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

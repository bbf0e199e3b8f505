package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"voxbank/api"
	"voxbank/audio"
)

var ctx = context.Background()

func voiceSample() *audio.Artifact {
	return &audio.Artifact{Data: []byte("pcm"), MIME: "audio/wav"}
}

func TestHappyPath(t *testing.T) {
	fake := &api.FakeClient{
		VoiceResults: []api.VoiceResult{
			{Success: true, Score: 0.92, Message: "welcome"},
			{Success: true, Score: 0.95}, // post-OTP confirmation
		},
	}
	seq := NewSequencer(fake, DefaultConfig())

	st, err := seq.SubmitVoice(ctx, "alice", voiceSample())
	if err != nil {
		t.Fatalf("SubmitVoice: %v", err)
	}
	if st != OtpPending {
		t.Fatalf("state = %v, want OtpPending", st)
	}
	if fake.IssueOTPCalls != 1 {
		t.Errorf("IssueOTP calls = %d, want 1", fake.IssueOTPCalls)
	}

	st, err = seq.SubmitOTP(ctx, "482913")
	if err != nil {
		t.Fatalf("SubmitOTP: %v", err)
	}
	if st != Authenticated {
		t.Fatalf("state = %v, want Authenticated", st)
	}
	if seq.Score() != 0.95 {
		t.Errorf("score = %v, want re-verified 0.95", seq.Score())
	}
	if seq.Username() != "alice" {
		t.Errorf("username = %q", seq.Username())
	}
}

func TestVoiceRejection(t *testing.T) {
	fake := &api.FakeClient{
		VoiceResults: []api.VoiceResult{{Success: false, Score: 0.41, Message: "voice did not match"}},
	}
	seq := NewSequencer(fake, DefaultConfig())

	st, err := seq.SubmitVoice(ctx, "alice", voiceSample())
	var rej *api.RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want *RejectionError", err)
	}
	if st != VoiceRejected {
		t.Errorf("state = %v, want VoiceRejected", st)
	}
	if seq.Reason() != "voice did not match" {
		t.Errorf("reason = %q", seq.Reason())
	}
	if fake.IssueOTPCalls != 0 {
		t.Error("OTP issued after voice rejection")
	}

	// A fresh attempt from VoiceRejected is allowed.
	if _, err := seq.SubmitVoice(ctx, "alice", voiceSample()); err != nil {
		t.Fatalf("retry SubmitVoice: %v", err)
	}
}

func TestVoiceNetworkFailureReturnsToIdle(t *testing.T) {
	fake := &api.FakeClient{
		VoiceErrs: []error{&api.NetworkError{Op: "verify_voice", Err: errors.New("connection refused")}},
	}
	seq := NewSequencer(fake, DefaultConfig())

	st, err := seq.SubmitVoice(ctx, "alice", voiceSample())
	var ne *api.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want *NetworkError", err)
	}
	if st != Idle {
		t.Errorf("state = %v, want Idle", st)
	}
}

func TestSubmitVoiceValidation(t *testing.T) {
	seq := NewSequencer(&api.FakeClient{}, DefaultConfig())

	var ve *api.ValidationError
	if _, err := seq.SubmitVoice(ctx, "  ", voiceSample()); !errors.As(err, &ve) {
		t.Errorf("empty username: err = %v, want *ValidationError", err)
	}
	if _, err := seq.SubmitVoice(ctx, "alice", nil); !errors.As(err, &ve) {
		t.Errorf("nil artifact: err = %v, want *ValidationError", err)
	}
	if seq.State() != Idle {
		t.Errorf("state = %v after failed validation, want Idle", seq.State())
	}
}

func TestOTPCodeValidation(t *testing.T) {
	fake := &api.FakeClient{}
	seq := NewSequencer(fake, DefaultConfig())
	if _, err := seq.SubmitVoice(ctx, "alice", voiceSample()); err != nil {
		t.Fatal(err)
	}

	var ve *api.ValidationError
	for _, code := range []string{"", "12345", "1234567", "12345a", "abc123", "12 456"} {
		if _, err := seq.SubmitOTP(ctx, code); !errors.As(err, &ve) {
			t.Errorf("SubmitOTP(%q) = %v, want *ValidationError", code, err)
		}
	}
	if len(fake.OTPCalls) != 0 {
		t.Error("malformed codes reached the backend")
	}
	if seq.State() != OtpPending {
		t.Errorf("state = %v, want OtpPending", seq.State())
	}
}

func TestWrongOTPAllowsRetry(t *testing.T) {
	fake := &api.FakeClient{
		OTPResults: []api.OTPResult{
			{Success: false, Message: "invalid code"},
			{Success: true, Message: "verified"},
		},
	}
	seq := NewSequencer(fake, DefaultConfig())
	if _, err := seq.SubmitVoice(ctx, "alice", voiceSample()); err != nil {
		t.Fatal(err)
	}

	st, err := seq.SubmitOTP(ctx, "000000")
	var rej *api.RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want *RejectionError", err)
	}
	if st != OtpPending {
		t.Fatalf("state = %v, want OtpPending after wrong code", st)
	}

	st, err = seq.SubmitOTP(ctx, "482913")
	if err != nil {
		t.Fatalf("retry SubmitOTP: %v", err)
	}
	if st != Authenticated {
		t.Errorf("state = %v, want Authenticated", st)
	}
}

func TestOTPAttemptBound(t *testing.T) {
	fake := &api.FakeClient{}
	for i := 0; i < 5; i++ {
		fake.OTPResults = append(fake.OTPResults, api.OTPResult{Success: false, Message: "invalid code"})
	}
	seq := NewSequencer(fake, Config{MaxOTPAttempts: 3, ConfirmTimeout: time.Second})
	if _, err := seq.SubmitVoice(ctx, "alice", voiceSample()); err != nil {
		t.Fatal(err)
	}

	var st State
	for i := 0; i < 3; i++ {
		st, _ = seq.SubmitOTP(ctx, "000000")
	}
	if st != Failed {
		t.Fatalf("state = %v after 3 wrong codes, want Failed", st)
	}
	var ve *api.ValidationError
	if _, err := seq.SubmitOTP(ctx, "000000"); !errors.As(err, &ve) {
		t.Errorf("SubmitOTP from Failed = %v, want *ValidationError", err)
	}
}

func TestConfirmFailureKeepsStageOneScore(t *testing.T) {
	fake := &api.FakeClient{
		VoiceResults: []api.VoiceResult{{Success: true, Score: 0.92}},
		VoiceErrs: []error{
			nil, // first verification succeeds
			&api.NetworkError{Op: "verify_voice", Err: errors.New("timeout")},
		},
	}
	seq := NewSequencer(fake, DefaultConfig())
	if _, err := seq.SubmitVoice(ctx, "alice", voiceSample()); err != nil {
		t.Fatal(err)
	}

	st, err := seq.SubmitOTP(ctx, "482913")
	if err != nil {
		t.Fatalf("SubmitOTP: %v", err)
	}
	if st != Authenticated {
		t.Fatalf("state = %v, want Authenticated despite failed confirmation", st)
	}
	if seq.Score() != 0.92 {
		t.Errorf("score = %v, want stage-one 0.92", seq.Score())
	}
}

func TestCancelDiscardsLateResponse(t *testing.T) {
	gate := make(chan struct{})
	blocking := &blockingClient{
		FakeClient: &api.FakeClient{},
		gate:       gate,
		inFlight:   make(chan struct{}, 1),
	}
	seq := NewSequencer(blocking, DefaultConfig())

	done := make(chan struct{})
	var st State
	var err error
	go func() {
		st, err = seq.SubmitVoice(ctx, "alice", voiceSample())
		close(done)
	}()

	// Wait until the voice call is in flight, then cancel under it.
	blocking.waitInFlight(t)
	seq.Cancel()
	close(gate)
	<-done

	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("err = %v, want ErrCanceled", err)
	}
	if st != Idle || seq.State() != Idle {
		t.Errorf("state = %v/%v, want Idle", st, seq.State())
	}
	if seq.Username() != "" {
		t.Errorf("username = %q after Cancel, want empty", seq.Username())
	}
}

func TestOTPIssueFailureAllowsResend(t *testing.T) {
	fake := &api.FakeClient{
		IssueOTPErr: &api.NetworkError{Op: "issue_otp", Err: errors.New("smtp down")},
	}
	seq := NewSequencer(fake, DefaultConfig())

	st, err := seq.SubmitVoice(ctx, "alice", voiceSample())
	var ne *api.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want *NetworkError", err)
	}
	if st != VoiceVerified {
		t.Fatalf("state = %v, want VoiceVerified", st)
	}

	// Re-recording is not the retry path: a second voice submission is
	// refused while the verified login is live.
	var ve *api.ValidationError
	if _, err := seq.SubmitVoice(ctx, "alice", voiceSample()); !errors.As(err, &ve) {
		t.Errorf("SubmitVoice from VoiceVerified = %v, want *ValidationError", err)
	}

	// Retrying code delivery is.
	fake.IssueOTPErr = nil
	st, err = seq.ResendOTP(ctx)
	if err != nil {
		t.Fatalf("ResendOTP after delivery failure: %v", err)
	}
	if st != OtpPending {
		t.Errorf("state = %v, want OtpPending", st)
	}
}

func TestResendOTP(t *testing.T) {
	fake := &api.FakeClient{}
	seq := NewSequencer(fake, DefaultConfig())
	if _, err := seq.SubmitVoice(ctx, "alice", voiceSample()); err != nil {
		t.Fatal(err)
	}

	if _, err := seq.ResendOTP(ctx); err != nil {
		t.Fatalf("ResendOTP: %v", err)
	}
	if fake.IssueOTPCalls != 2 {
		t.Errorf("IssueOTP calls = %d, want 2", fake.IssueOTPCalls)
	}

	var ve *api.ValidationError
	idle := NewSequencer(fake, DefaultConfig())
	if _, err := idle.ResendOTP(ctx); !errors.As(err, &ve) {
		t.Errorf("ResendOTP from Idle = %v, want *ValidationError", err)
	}
}

// blockingClient stalls VerifyVoice until the gate opens so tests can
// interleave Cancel with an in-flight call.
type blockingClient struct {
	*api.FakeClient
	gate     chan struct{}
	inFlight chan struct{}
}

func (b *blockingClient) waitInFlight(t *testing.T) {
	t.Helper()
	select {
	case <-b.inFlight:
	case <-time.After(2 * time.Second):
		t.Fatal("voice call never started")
	}
}

func (b *blockingClient) VerifyVoice(ctx context.Context, username string, sample *audio.Artifact) (api.VoiceResult, error) {
	b.inFlight <- struct{}{}
	<-b.gate
	return b.FakeClient.VerifyVoice(ctx, username, sample)
}

package api

import (
	"context"
	"fmt"
	"sync"

	"voxbank/audio"
)

// FakeClient is a scripted backend for tests and the headless harness.
// Responses are consumed in FIFO order per operation; an empty queue falls
// back to the zero-configured defaults.
type FakeClient struct {
	mu sync.Mutex

	EnrollErr    error
	VoiceResults []VoiceResult
	VoiceErrs    []error
	OTPResults   []OTPResult
	IssueOTPErr  error
	Banking      *BankingData
	BankingErr   error
	TransferFn   func(username, recipient string, amount float64) (*TransferResult, error)
	CommandFn    func(req CommandRequest) (*CommandReply, error)
	CommandDelay chan struct{} // if non-nil, Command blocks until a receive fires

	EnrollCalls   [][]*audio.Artifact
	VoiceCalls    []*audio.Artifact
	OTPCalls      []string
	CommandCalls  []CommandRequest
	IssueOTPCalls int
}

var _ Client = (*FakeClient)(nil)

func (f *FakeClient) Enroll(_ context.Context, username, email string, samples []*audio.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EnrollCalls = append(f.EnrollCalls, samples)
	return f.EnrollErr
}

func (f *FakeClient) VerifyVoice(_ context.Context, username string, sample *audio.Artifact) (VoiceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.VoiceCalls = append(f.VoiceCalls, sample)
	if len(f.VoiceErrs) > 0 {
		err := f.VoiceErrs[0]
		f.VoiceErrs = f.VoiceErrs[1:]
		if err != nil {
			return VoiceResult{}, err
		}
	}
	if len(f.VoiceResults) > 0 {
		r := f.VoiceResults[0]
		f.VoiceResults = f.VoiceResults[1:]
		return r, nil
	}
	return VoiceResult{Success: true, Score: 0.9, Message: "ok"}, nil
}

func (f *FakeClient) IssueOTP(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.IssueOTPCalls++
	return f.IssueOTPErr
}

func (f *FakeClient) VerifyOTP(_ context.Context, username, code string) (OTPResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OTPCalls = append(f.OTPCalls, code)
	if len(f.OTPResults) > 0 {
		r := f.OTPResults[0]
		f.OTPResults = f.OTPResults[1:]
		return r, nil
	}
	return OTPResult{Success: true, Message: "verified"}, nil
}

func (f *FakeClient) BankingData(_ context.Context, username string) (*BankingData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BankingErr != nil {
		return nil, f.BankingErr
	}
	if f.Banking != nil {
		return f.Banking, nil
	}
	return &BankingData{
		Email:         username + "@example.com",
		Balance:       1000,
		AccountNumber: "****0000",
	}, nil
}

func (f *FakeClient) Transfer(_ context.Context, username, recipient string, amount float64) (*TransferResult, error) {
	f.mu.Lock()
	fn := f.TransferFn
	f.mu.Unlock()
	if fn != nil {
		return fn(username, recipient, amount)
	}
	return &TransferResult{Success: true, Message: fmt.Sprintf("sent %.2f to %s", amount, recipient)}, nil
}

func (f *FakeClient) Command(_ context.Context, req CommandRequest) (*CommandReply, error) {
	f.mu.Lock()
	f.CommandCalls = append(f.CommandCalls, req)
	fn := f.CommandFn
	delay := f.CommandDelay
	f.mu.Unlock()
	if delay != nil {
		<-delay
	}
	if fn != nil {
		return fn(req)
	}
	reply := &CommandReply{Message: "echo: " + req.Text, Intent: IntentUnknown}
	if req.Audio != nil {
		reply.Transcription = "transcribed audio"
		reply.Message = "echo: transcribed audio"
	}
	return reply, nil
}

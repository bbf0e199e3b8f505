package api

import (
	"context"

	"voxbank/audio"
)

// VoiceResult is the verification endpoint's verdict. Success=false with a
// message is an authoritative rejection, not an error — the caller decides
// what to do with it.
type VoiceResult struct {
	Success bool
	Score   float64
	Message string
}

type OTPResult struct {
	Success bool
	Message string
}

type Transaction struct {
	ID     int     `json:"id"`
	Date   string  `json:"date"`
	Desc   string  `json:"desc"`
	Amount float64 `json:"amount"`
	Type   string  `json:"type"`
}

type Loan struct {
	Type   string  `json:"type"`
	Amount float64 `json:"amount"`
	Rate   string  `json:"rate"`
	Status string  `json:"status"`
}

type BankingData struct {
	Email         string        `json:"email"`
	Balance       float64       `json:"balance"`
	AccountNumber string        `json:"account_number"`
	Transactions  []Transaction `json:"transactions"`
	Loans         []Loan        `json:"loans"`
}

type TransferResult struct {
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	NewBalance float64 `json:"new_balance"`
}

// CommandRequest carries one conversational turn: exactly one of Text or
// Audio is set.
type CommandRequest struct {
	Username string
	Text     string
	Audio    *audio.Artifact
	Language string
}

type CommandReply struct {
	Message       string
	Transcription string // non-empty only for audio requests
	Intent        string // "UNKNOWN" is the sentinel for unrecognized
}

// IntentUnknown is the sentinel the command endpoint returns when it could
// not classify the input; everything else should refresh cached data.
const IntentUnknown = "UNKNOWN"

type Client interface {
	Enroll(ctx context.Context, username, email string, samples []*audio.Artifact) error
	VerifyVoice(ctx context.Context, username string, sample *audio.Artifact) (VoiceResult, error)
	IssueOTP(ctx context.Context, username string) error
	VerifyOTP(ctx context.Context, username, code string) (OTPResult, error)
	BankingData(ctx context.Context, username string) (*BankingData, error)
	Transfer(ctx context.Context, username, recipient string, amount float64) (*TransferResult, error)
	Command(ctx context.Context, req CommandRequest) (*CommandReply, error)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"voxbank/audio"
	"voxbank/log"
)

// HTTP talks to the voice-auth backend. One instance per server; safe for
// concurrent use.
type HTTP struct {
	baseURL string
	client  *tracedClient
}

func NewHTTP(baseURL string) *HTTP {
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newTracedClient(),
	}
}

// Warm pre-opens a connection to the backend (fire-and-forget).
func (h *HTTP) Warm() {
	go h.client.Warm(h.baseURL + "/health")
}

func (h *HTTP) do(ctx context.Context, op string, req *http.Request) (*tracedResponse, error) {
	req = req.WithContext(ctx)
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	log.Request(op, resp.StatusCode, float64(resp.Metrics.Total.Milliseconds()), resp.Metrics.ConnReused)
	return resp, nil
}

// serverError is the {"error": "..."} shape Flask-style handlers return.
type serverError struct {
	Error string `json:"error"`
}

func rejectionFrom(op string, body []byte, status int) error {
	var se serverError
	if err := json.Unmarshal(body, &se); err == nil && se.Error != "" {
		return &RejectionError{Op: op, Message: se.Error}
	}
	return &RejectionError{Op: op, Message: fmt.Sprintf("server returned status %d", status)}
}

func (h *HTTP) Enroll(ctx context.Context, username, email string, samples []*audio.Artifact) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("username", username)
	writer.WriteField("email", email)
	for i, s := range samples {
		part, err := writer.CreateFormFile("audio_samples", fmt.Sprintf("sample_%d.%s", i, s.Ext()))
		if err != nil {
			return err
		}
		if _, err := part.Write(s.Data); err != nil {
			return err
		}
	}
	writer.Close()

	req, err := http.NewRequest("POST", h.baseURL+"/api/signup", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := h.do(ctx, "enroll", req)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 500 {
		return &NetworkError{Op: "enroll", Err: fmt.Errorf("server status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return rejectionFrom("enroll", resp.Body, resp.StatusCode)
	}
	return nil
}

type voiceResponse struct {
	Success bool    `json:"success"`
	Score   float64 `json:"score"`
	Message string  `json:"message"`
	Error   string  `json:"error"`
}

func (h *HTTP) VerifyVoice(ctx context.Context, username string, sample *audio.Artifact) (VoiceResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("username", username)
	part, err := writer.CreateFormFile("audio", "login."+sample.Ext())
	if err != nil {
		return VoiceResult{}, err
	}
	if _, err := part.Write(sample.Data); err != nil {
		return VoiceResult{}, err
	}
	writer.Close()

	req, err := http.NewRequest("POST", h.baseURL+"/api/login", &body)
	if err != nil {
		return VoiceResult{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := h.do(ctx, "verify_voice", req)
	if err != nil {
		return VoiceResult{}, err
	}
	if resp.StatusCode >= 500 {
		return VoiceResult{}, &NetworkError{Op: "verify_voice", Err: fmt.Errorf("server status %d", resp.StatusCode)}
	}

	// The endpoint answers 200 on a match and 401 on a miss, both with the
	// same JSON shape; a rejected match is a result, not an error.
	var vr voiceResponse
	if err := json.Unmarshal(resp.Body, &vr); err != nil {
		return VoiceResult{}, &NetworkError{Op: "verify_voice", Err: fmt.Errorf("bad response: %w", err)}
	}
	if vr.Error != "" {
		return VoiceResult{}, rejectionFrom("verify_voice", resp.Body, resp.StatusCode)
	}
	return VoiceResult{Success: vr.Success, Score: vr.Score, Message: vr.Message}, nil
}

func (h *HTTP) postJSON(ctx context.Context, op, path string, payload any) (*tracedResponse, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest("POST", h.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.do(ctx, op, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("server status %d", resp.StatusCode)}
	}
	return resp, nil
}

func (h *HTTP) IssueOTP(ctx context.Context, username string) error {
	resp, err := h.postJSON(ctx, "issue_otp", "/api/send-otp", map[string]string{"username": username})
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return rejectionFrom("issue_otp", resp.Body, resp.StatusCode)
	}
	return nil
}

func (h *HTTP) VerifyOTP(ctx context.Context, username, code string) (OTPResult, error) {
	resp, err := h.postJSON(ctx, "verify_otp", "/api/verify-otp", map[string]string{
		"username": username,
		"otp":      code,
	})
	if err != nil {
		return OTPResult{}, err
	}

	// A {"error": ...} body (unknown user, missing email) carries no
	// success/message pair; surface the server's reason instead of an
	// empty rejection.
	if resp.StatusCode >= 400 {
		var se serverError
		if json.Unmarshal(resp.Body, &se) == nil && se.Error != "" {
			return OTPResult{}, rejectionFrom("verify_otp", resp.Body, resp.StatusCode)
		}
	}

	var or OTPResult
	if err := json.Unmarshal(resp.Body, &or); err != nil {
		return OTPResult{}, &NetworkError{Op: "verify_otp", Err: fmt.Errorf("bad response: %w", err)}
	}
	return or, nil
}

func (h *HTTP) BankingData(ctx context.Context, username string) (*BankingData, error) {
	u := h.baseURL + "/api/banking/data?username=" + url.QueryEscape(username)
	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.do(ctx, "banking_data", req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &NetworkError{Op: "banking_data", Err: fmt.Errorf("server status %d", resp.StatusCode)}
	}
	var bd BankingData
	if err := json.Unmarshal(resp.Body, &bd); err != nil {
		return nil, &NetworkError{Op: "banking_data", Err: fmt.Errorf("bad response: %w", err)}
	}
	return &bd, nil
}

func (h *HTTP) Transfer(ctx context.Context, username, recipient string, amount float64) (*TransferResult, error) {
	resp, err := h.postJSON(ctx, "transfer", "/api/banking/transfer", map[string]any{
		"username":  username,
		"recipient": recipient,
		"amount":    amount,
	})
	if err != nil {
		return nil, err
	}
	var tr TransferResult
	if err := json.Unmarshal(resp.Body, &tr); err != nil {
		return nil, &NetworkError{Op: "transfer", Err: fmt.Errorf("bad response: %w", err)}
	}
	if !tr.Success && tr.Message != "" {
		return nil, &RejectionError{Op: "transfer", Message: tr.Message}
	}
	return &tr, nil
}

type commandResponse struct {
	Message       string `json:"message"`
	Transcription string `json:"transcription"`
	Error         string `json:"error"`
	NLP           struct {
		Intent string `json:"intent"`
	} `json:"nlp"`
}

func (h *HTTP) Command(ctx context.Context, cr CommandRequest) (*CommandReply, error) {
	var req *http.Request
	var err error

	if cr.Audio != nil {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		writer.WriteField("username", cr.Username)
		writer.WriteField("language", cr.Language)
		part, werr := writer.CreateFormFile("audio", "command."+cr.Audio.Ext())
		if werr != nil {
			return nil, werr
		}
		if _, werr := part.Write(cr.Audio.Data); werr != nil {
			return nil, werr
		}
		writer.Close()

		req, err = http.NewRequest("POST", h.baseURL+"/api/chat", &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
	} else {
		data, merr := json.Marshal(map[string]string{
			"username": cr.Username,
			"text":     cr.Text,
			"language": cr.Language,
		})
		if merr != nil {
			return nil, merr
		}
		req, err = http.NewRequest("POST", h.baseURL+"/api/chat", bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.do(ctx, "command", req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, &NetworkError{Op: "command", Err: fmt.Errorf("server status %d", resp.StatusCode)}
	}

	var cmd commandResponse
	if err := json.Unmarshal(resp.Body, &cmd); err != nil {
		return nil, &NetworkError{Op: "command", Err: fmt.Errorf("bad response: %w", err)}
	}
	if resp.StatusCode >= 400 {
		return nil, rejectionFrom("command", resp.Body, resp.StatusCode)
	}
	return &CommandReply{
		Message:       cmd.Message,
		Transcription: cmd.Transcription,
		Intent:        cmd.NLP.Intent,
	}, nil
}

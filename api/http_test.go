package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"voxbank/audio"
)

func wavArtifact(data string) *audio.Artifact {
	return &audio.Artifact{Data: []byte(data), MIME: "audio/wav"}
}

func TestEnrollMultipart(t *testing.T) {
	var gotUsername, gotEmail string
	var gotSamples []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/signup" {
			t.Errorf("path = %q, want /api/signup", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		gotUsername = r.FormValue("username")
		gotEmail = r.FormValue("email")
		for _, fh := range r.MultipartForm.File["audio_samples"] {
			gotSamples = append(gotSamples, fh.Filename)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	client := NewHTTP(srv.URL)
	samples := []*audio.Artifact{wavArtifact("aaa"), wavArtifact("bbb")}
	if err := client.Enroll(context.Background(), "alice", "alice@example.com", samples); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if gotUsername != "alice" || gotEmail != "alice@example.com" {
		t.Errorf("form = (%q, %q)", gotUsername, gotEmail)
	}
	if len(gotSamples) != 2 || gotSamples[0] != "sample_0.wav" || gotSamples[1] != "sample_1.wav" {
		t.Errorf("sample filenames = %v", gotSamples)
	}
}

func TestEnrollDuplicateIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error": "username already exists"}`))
	}))
	defer srv.Close()

	err := NewHTTP(srv.URL).Enroll(context.Background(), "alice", "a@b.co", []*audio.Artifact{wavArtifact("x")})
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want *RejectionError", err)
	}
	if rej.Message != "username already exists" {
		t.Errorf("message = %q", rej.Message)
	}
}

func TestVerifyVoiceAcceptAndReject(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		success bool
		score   float64
	}{
		{"accepted", 200, `{"success": true, "score": 0.91, "message": "welcome"}`, true, 0.91},
		{"rejected", 401, `{"success": false, "score": 0.42, "message": "voice did not match"}`, false, 0.42},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			res, err := NewHTTP(srv.URL).VerifyVoice(context.Background(), "alice", wavArtifact("x"))
			if err != nil {
				t.Fatalf("VerifyVoice: %v", err)
			}
			if res.Success != tc.success || res.Score != tc.score {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestVerifyVoiceServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL).VerifyVoice(context.Background(), "alice", wavArtifact("x"))
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want *NetworkError", err)
	}
}

func TestVerifyVoiceUnreachable(t *testing.T) {
	// Closed server: connection refused should surface as a network error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTP(url).VerifyVoice(context.Background(), "alice", wavArtifact("x"))
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want *NetworkError", err)
	}
}

func TestVerifyOTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/verify-otp" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success": false, "message": "invalid code"}`))
	}))
	defer srv.Close()

	res, err := NewHTTP(srv.URL).VerifyOTP(context.Background(), "alice", "123456")
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if res.Success || res.Message != "invalid code" {
		t.Errorf("result = %+v", res)
	}
}

func TestVerifyOTPUnknownUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "No email found for this user"}`))
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL).VerifyOTP(context.Background(), "ghost", "123456")
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want *RejectionError", err)
	}
	if rej.Message != "No email found for this user" {
		t.Errorf("message = %q", rej.Message)
	}
}

func TestCommandTextIsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		w.Write([]byte(`{"message": "your balance is $1000", "nlp": {"intent": "check_balance"}}`))
	}))
	defer srv.Close()

	reply, err := NewHTTP(srv.URL).Command(context.Background(), CommandRequest{
		Username: "alice", Text: "what is my balance", Language: "en-US",
	})
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if reply.Intent != "check_balance" || reply.Transcription != "" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestCommandAudioIsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("expected multipart: %v", err)
		}
		if r.FormValue("language") != "es-ES" {
			t.Errorf("language = %q", r.FormValue("language"))
		}
		w.Write([]byte(`{"message": "hola", "transcription": "cual es mi saldo", "nlp": {"intent": "check_balance"}}`))
	}))
	defer srv.Close()

	reply, err := NewHTTP(srv.URL).Command(context.Background(), CommandRequest{
		Username: "alice", Audio: wavArtifact("pcm"), Language: "es-ES",
	})
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if reply.Transcription != "cual es mi saldo" {
		t.Errorf("transcription = %q", reply.Transcription)
	}
}

func TestTransferRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success": false, "message": "insufficient funds"}`))
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL).Transfer(context.Background(), "alice", "bob", 1e9)
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want *RejectionError", err)
	}
	if rej.Message != "insufficient funds" {
		t.Errorf("message = %q", rej.Message)
	}
}

func TestBankingData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("username"); got != "alice" {
			t.Errorf("username = %q", got)
		}
		w.Write([]byte(`{"email": "a@b.co", "balance": 2500.50, "account_number": "****4821",
			"transactions": [{"id": 1, "desc": "coffee", "amount": -4.5, "type": "debit"}],
			"loans": [{"type": "auto", "amount": 12000, "rate": "4.2%", "status": "active"}]}`))
	}))
	defer srv.Close()

	bd, err := NewHTTP(srv.URL).BankingData(context.Background(), "alice")
	if err != nil {
		t.Fatalf("BankingData: %v", err)
	}
	if bd.Balance != 2500.50 || len(bd.Transactions) != 1 || len(bd.Loans) != 1 {
		t.Errorf("data = %+v", bd)
	}
}

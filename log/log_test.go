package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(wd, "logs")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("VOXBANK_LOG_PATH", "/tmp/voxbank-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/voxbank-env-log" {
		t.Errorf("got %q, want /tmp/voxbank-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("VOXBANK_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got == "" {
		t.Error("default log dir is empty")
	}
	if !strings.Contains(got, "voxbank") {
		t.Errorf("default dir %q does not mention voxbank", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}

	Info("startup")
	LoginVoice("alice", true, 0.91)
	Request("verify_voice", 200, 120.5, false)
	Conversation("user", "what is my balance")
	Conversation("assistant", "your balance is $1000")
	Close()

	diag, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"startup", "voice_verification", "score=0.91", "request", "verify_voice"} {
		if !strings.Contains(string(diag), want) {
			t.Errorf("diagnostics log missing %q:\n%s", want, diag)
		}
	}

	conv, err := os.ReadFile(filepath.Join(tmp, "conversation_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(conv), "user\twhat is my balance") {
		t.Errorf("conversation log missing user turn:\n%s", conv)
	}
	if !strings.Contains(string(conv), "assistant\tyour balance is $1000") {
		t.Errorf("conversation log missing assistant turn:\n%s", conv)
	}
}

func TestLogWithoutInitIsNoop(t *testing.T) {
	Close()
	Info("should not panic")
	Conversation("user", "ignored")
	Request("enroll", 200, 1, true)
}

package speech

import "testing"

func TestDisabledEngineIsSilent(t *testing.T) {
	disabled = true
	t.Cleanup(func() { disabled = false })

	if err := New().Speak("hello", "en-US"); err != nil {
		t.Errorf("disabled Speak = %v, want nil", err)
	}
}

func TestEmptyTextIsNoop(t *testing.T) {
	if err := New().Speak("   ", "en-US"); err != nil {
		t.Errorf("empty Speak = %v, want nil", err)
	}
}

func TestNullSynthesizer(t *testing.T) {
	if err := (Null{}).Speak("anything", "xx-XX"); err != nil {
		t.Errorf("Null.Speak = %v", err)
	}
}

//go:build !darwin && !windows

package speech

import (
	"errors"
	"os/exec"
	"strings"
)

// speak prefers speech-dispatcher and falls back to espeak-ng; both take
// an ISO language code rather than a full tag.
func speak(text, language string) error {
	lang := language
	if i := strings.IndexByte(lang, '-'); i > 0 {
		lang = lang[:i]
	}

	if _, err := exec.LookPath("spd-say"); err == nil {
		return exec.Command("spd-say", "--wait", "-l", lang, text).Run()
	}
	if _, err := exec.LookPath("espeak-ng"); err == nil {
		return exec.Command("espeak-ng", "-v", lang, text).Run()
	}
	return errors.New("no speech synthesizer installed (tried spd-say, espeak-ng)")
}

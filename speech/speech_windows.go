//go:build windows

package speech

import (
	"fmt"
	"os/exec"
	"strings"
)

// speak drives SAPI through PowerShell; SelectVoiceByHints picks the
// closest installed voice for the language's culture.
func speak(text, language string) error {
	escaped := strings.ReplaceAll(text, "'", "''")
	script := fmt.Sprintf(
		"Add-Type -AssemblyName System.Speech; "+
			"$s = New-Object System.Speech.Synthesis.SpeechSynthesizer; "+
			"try { $s.SelectVoiceByHints('NotSet', 'NotSet', 0, [System.Globalization.CultureInfo]::new('%s')) } catch {}; "+
			"$s.Speak('%s')",
		language, escaped)
	return exec.Command("powershell", "-NoProfile", "-Command", script).Run()
}

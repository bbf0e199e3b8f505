//go:build darwin

package speech

import "os/exec"

// Built-in macOS voices per supported language.
var voices = map[string]string{
	"en-US": "Samantha",
	"es-ES": "Mónica",
	"hi-IN": "Lekha",
	"fr-FR": "Thomas",
}

func speak(text, language string) error {
	args := []string{}
	if voice, ok := voices[language]; ok {
		args = append(args, "-v", voice)
	}
	args = append(args, text)
	return exec.Command("say", args...).Run()
}

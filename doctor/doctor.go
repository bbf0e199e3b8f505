// Package doctor runs interactive diagnostics: microphone capture,
// backend reachability, and the platform speech synthesizer.
package doctor

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"voxbank/audio"
	"voxbank/encoder"
	"voxbank/speech"
)

// Run executes the checks and returns an exit code (0=all pass, 1=any fail).
func Run(serverURL string) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("voxbank doctor - interactive system diagnostics")
	fmt.Println("===============================================")

	allPass := true

	if !checkMicrophone() {
		allPass = false
	}
	if !checkBackend(serverURL) {
		allPass = false
	}
	if !checkSpeech() {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkMicrophone() bool {
	fmt.Println()
	fmt.Println("[1/3] Microphone capture")

	reader := bufio.NewReader(os.Stdin)

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer ctx.Close()

	devices, err := ctx.Devices()
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return false
	}
	if len(devices) == 0 {
		fmt.Println("  FAIL: no capture devices found")
		return false
	}

	var device *audio.DeviceInfo
	if len(devices) == 1 {
		device = &devices[0]
		fmt.Printf("Using device: %s\n", device.Name)
	} else {
		fmt.Println()
		fmt.Println("Select input device:")
		for i, d := range devices {
			fmt.Printf("  %d. %s\n", i+1, d.Name)
		}
		fmt.Printf("Choice [1-%d]: ", len(devices))

		devChoice, _ := reader.ReadString('\n')
		devChoice = strings.TrimSpace(devChoice)
		idx := 0
		if devChoice != "" {
			fmt.Sscanf(devChoice, "%d", &idx)
			idx--
		}
		if idx < 0 || idx >= len(devices) {
			fmt.Println("  FAIL: invalid choice")
			return false
		}
		device = &devices[idx]
		fmt.Printf("Selected: %s\n", device.Name)
	}

	fmt.Print("Press Enter and speak for 3 seconds...")
	reader.ReadString('\n')

	stop := make(chan struct{})
	go func() {
		time.Sleep(3 * time.Second)
		close(stop)
	}()

	pcm, err := recordAudio(ctx, device, stop)
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	if len(pcm) == 0 {
		fmt.Println("  FAIL: no audio captured")
		return false
	}

	seconds := float64(len(pcm)) / 2 / float64(encoder.SampleRate)
	fmt.Printf("  PASS: captured %.1fs of audio (%.1f KB)\n", seconds, float64(len(pcm))/1024)
	return true
}

func checkBackend(serverURL string) bool {
	fmt.Println()
	fmt.Println("[2/3] Backend reachability")
	fmt.Printf("Checking %s ...\n", serverURL)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(serverURL, "/") + "/health")
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		fmt.Printf("  FAIL: server answered %d\n", resp.StatusCode)
		return false
	}
	fmt.Printf("  PASS: server answered %d\n", resp.StatusCode)
	return true
}

func checkSpeech() bool {
	fmt.Println()
	fmt.Println("[3/3] Speech synthesis")
	fmt.Println("You should hear a short sentence...")

	if err := speech.New().Speak("Voice banking diagnostics complete.", "en-US"); err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Did you hear it? [y/n]: ")
	confirm, _ := reader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))
	if confirm == "y" || confirm == "yes" {
		fmt.Println("  PASS: speech verified by user")
		return true
	}
	fmt.Println("  FAIL: speech not confirmed")
	return false
}

func recordAudio(ctx audio.Context, device *audio.DeviceInfo, stop <-chan struct{}) ([]byte, error) {
	var pcmBuf []byte
	var bufMu sync.Mutex
	var stopped bool

	config := audio.CaptureConfig{
		SampleRate: encoder.SampleRate,
		Channels:   encoder.Channels,
	}

	captureDevice, err := ctx.NewCapture(device, config)
	if err != nil {
		return nil, err
	}
	defer captureDevice.Close()

	captureDevice.SetCallback(func(data []byte, frameCount uint32) {
		bufMu.Lock()
		if !stopped {
			pcmBuf = append(pcmBuf, data...)
		}
		bufMu.Unlock()
	})

	if err := captureDevice.Start(); err != nil {
		captureDevice.ClearCallback()
		return nil, err
	}

	<-stop

	captureDevice.Stop()
	captureDevice.ClearCallback()

	bufMu.Lock()
	stopped = true
	out := pcmBuf
	bufMu.Unlock()
	return out, nil
}

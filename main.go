package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"voxbank/api"
	"voxbank/audio"
	"voxbank/doctor"
	"voxbank/log"
	"voxbank/speech"
)

var version = "dev"

const defaultServer = "http://localhost:5001"

func main() {
	// Set up crash logging early, before any CGO code runs
	initCrashLog()
	run()
}

func run() {
	enrollMode := false
	if len(os.Args) > 1 && os.Args[1] == "enroll" {
		enrollMode = true
		os.Args = append(os.Args[:1], os.Args[2:]...)
	}

	serverFlag := flag.String("server", defaultServerURL(), "Backend server URL")
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	formatFlag := flag.String("format", "wav", "Audio upload format: wav or flac")
	langFlag := flag.String("lang", "en-US", "Conversation language tag (en-US, es-ES, hi-IN, fr-FR)")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	flag.Parse()

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	if *versionFlag {
		fmt.Printf("voxbank %s\n", version)
		os.Exit(0)
	}

	if *doctorFlag {
		os.Exit(doctor.Run(*serverFlag))
	}

	switch *formatFlag {
	case "wav", "flac":
	default:
		fmt.Printf("Error: unknown format %q (use wav or flac)\n", *formatFlag)
		os.Exit(1)
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	client := api.NewHTTP(*serverFlag)
	client.Warm()

	if *testFlag {
		wavFile := ""
		if len(flag.Args()) > 0 {
			wavFile = flag.Args()[0]
		}
		runTestMode(client, wavFile, *formatFlag, *langFlag)
		return
	}

	audioCtx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("Error initializing audio: %v\n", err)
		os.Exit(1)
	}
	defer audioCtx.Close()

	device, err := resolveDevice(audioCtx, *setupFlag, *deviceFlag)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if enrollMode {
		if err := runEnrollWizard(audioCtx, device, client, *formatFlag); err != nil {
			fmt.Printf("Enrollment failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("\nEnrollment complete. Run voxbank to log in.")
		return
	}

	seq, err := runLoginWizard(audioCtx, device, client, *formatFlag)
	if err != nil {
		fmt.Printf("Login failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nWelcome %s (voice match %.0f%%). Opening assistant...\n", seq.Username(), seq.Score()*100)
	time.Sleep(600 * time.Millisecond)

	if err := runChat(audioCtx, device, client, speech.New(), seq, *formatFlag, *langFlag); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultServerURL() string {
	if s := os.Getenv("VOXBANK_SERVER"); s != "" {
		return s
	}
	return defaultServer
}

// resolveDevice turns -setup / -device into a concrete capture device;
// nil means the system default.
func resolveDevice(ctx audio.Context, setup bool, name string) (*audio.DeviceInfo, error) {
	if name != "" {
		devices, err := ctx.Devices()
		if err != nil {
			return nil, err
		}
		for i := range devices {
			if devices[i].Name == name {
				return &devices[i], nil
			}
		}
		return nil, fmt.Errorf("no capture device named %q", name)
	}
	if setup {
		return audio.SelectDevice(ctx)
	}
	return nil, nil
}

func initCrashLog() {
	logPath, err := log.ResolveDir("")
	if err != nil {
		return
	}
	log.SetDir(logPath)
	if log.EnsureDir() != nil {
		return
	}
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}
}

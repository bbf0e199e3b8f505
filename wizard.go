package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"voxbank/api"
	"voxbank/audio"
	"voxbank/auth"
	"voxbank/cue"
	"voxbank/enroll"
	"voxbank/recorder"
)

var stdin = bufio.NewReader(os.Stdin)

func prompt(label string) string {
	fmt.Print(label)
	line, _ := stdin.ReadString('\n')
	return strings.TrimSpace(line)
}

// recordSample runs one Enter-to-start, Enter-to-stop capture.
func recordSample(audioCtx audio.Context, device *audio.DeviceInfo, format string) (*audio.Artifact, error) {
	rec := recorder.New(audioCtx, device, recorder.Config{
		Format: format,
		OnSilence: func(ev recorder.SilenceEvent) {
			if ev == recorder.SilenceWarn || ev == recorder.SilenceRepeat {
				fmt.Print("\n  (no voice detected - is the right microphone selected?)\n")
			}
		},
	})

	fmt.Print("  Press Enter to start recording... ")
	stdin.ReadString('\n')

	if err := rec.Start(); err != nil {
		cue.Deny()
		return nil, err
	}
	cue.Arm()
	fmt.Print("  Recording - press Enter to stop... ")
	stdin.ReadString('\n')

	art, err := rec.Stop()
	if err != nil {
		cue.Deny()
		return nil, err
	}
	cue.Done()
	fmt.Printf("  Captured %.1f KB\n", float64(len(art.Data))/1024)
	return art, nil
}

func runEnrollWizard(audioCtx audio.Context, device *audio.DeviceInfo, client api.Client, format string) error {
	fmt.Println("voxbank enrollment")
	fmt.Println("==================")
	fmt.Printf("Your voiceprint is built from %d short recordings.\n", enroll.RequiredSamples)
	fmt.Println("Speak naturally; a few seconds each is enough.")
	fmt.Println()

	collector := enroll.NewCollector(client)
	for {
		username := prompt("Username: ")
		email := prompt("Email (receives login codes): ")
		if err := collector.SetCredentials(username, email); err != nil {
			fmt.Printf("  %v\n", err)
			continue
		}
		break
	}

	for !collector.Complete() {
		fmt.Printf("\nSample %d of %d\n", collector.Cursor()+1, enroll.RequiredSamples)
		fmt.Printf("  Say: %q\n", enroll.PromptPhrase)
		art, err := recordSample(audioCtx, device, format)
		if err != nil {
			if errors.Is(err, recorder.ErrTooShort) {
				fmt.Println("  Too short - try again.")
				continue
			}
			return err
		}
		collector.Record(art)

		if collector.Cursor() == enroll.RequiredSamples-1 {
			break
		}
		switch prompt("  [Enter=next, r=redo] ") {
		case "r", "R":
			// stay on this slot; next recording overwrites it
		default:
			collector.Advance()
		}
	}

	for {
		fmt.Print("\nSubmitting enrollment... ")
		err := collector.Submit(context.Background())
		if err == nil {
			fmt.Println("done.")
			return nil
		}

		var rej *api.RejectionError
		if errors.As(err, &rej) {
			fmt.Printf("rejected: %s\n", rej.Message)
			username := prompt("Try a different username (empty to abort): ")
			if username == "" {
				return err
			}
			email := prompt("Email: ")
			if err := collector.SetCredentials(username, email); err != nil {
				fmt.Printf("  %v\n", err)
			}
			continue
		}
		return err
	}
}

func runLoginWizard(audioCtx audio.Context, device *audio.DeviceInfo, client api.Client, format string) (*auth.Sequencer, error) {
	fmt.Println("voxbank login")
	fmt.Println("=============")

	seq := auth.NewSequencer(client, auth.DefaultConfig())
	username := prompt("Username: ")

	for {
		fmt.Println("\nVerify your voice:")
		fmt.Printf("  Say: %q\n", enroll.PromptPhrase)
		art, err := recordSample(audioCtx, device, format)
		if err != nil {
			if errors.Is(err, recorder.ErrTooShort) {
				fmt.Println("  Too short - try again.")
				continue
			}
			return nil, err
		}

		state, err := seq.SubmitVoice(context.Background(), username, art)
		if err != nil {
			// The voice may have passed with only code delivery failing;
			// re-recording would be rejected, so fall through to the OTP
			// prompt where r retries the send.
			if seq.State() == auth.VoiceVerified {
				fmt.Printf("  Voice verified (match %.0f%%), but sending the code failed: %v\n", seq.Score()*100, err)
				fmt.Println("  Use r at the code prompt to resend.")
				break
			}
			var rej *api.RejectionError
			if errors.As(err, &rej) {
				fmt.Printf("  Voice not recognized: %s\n", rej.Message)
			} else {
				fmt.Printf("  %v\n", err)
			}
			if prompt("  Try again? [y/n] ") != "y" {
				return nil, err
			}
			continue
		}
		if state == auth.OtpPending {
			fmt.Printf("  Voice verified (match %.0f%%). A code was sent to your email.\n", seq.Score()*100)
			break
		}
	}

	for {
		code := prompt("\n6-digit code [r=resend]: ")
		if code == "r" || code == "R" {
			if _, err := seq.ResendOTP(context.Background()); err != nil {
				fmt.Printf("  %v\n", err)
			} else {
				fmt.Println("  A new code was sent.")
			}
			continue
		}

		state, err := seq.SubmitOTP(context.Background(), code)
		switch state {
		case auth.Authenticated:
			return seq, nil
		case auth.Failed:
			cue.Deny()
			return nil, fmt.Errorf("login failed: %s", seq.Reason())
		default:
			if err != nil {
				fmt.Printf("  %v\n", err)
			}
		}
	}
}

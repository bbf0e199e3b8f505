package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"voxbank/api"
	"voxbank/audio"
	"voxbank/auth"
	"voxbank/chat"
	"voxbank/cue"
	"voxbank/encoder"
	"voxbank/enroll"
	"voxbank/recorder"
	"voxbank/speech"
)

// runTestMode drives the full flows headlessly from stdin commands, with a
// canned WAV (or synthetic tone) standing in for the microphone. One
// command per line; results go to stdout so a harness can assert on them.
func runTestMode(client api.Client, wavPath, format, language string) {
	cue.Disable()
	speech.Disable()

	var audioCtx audio.Context
	if wavPath != "" {
		fakeCtx, err := audio.NewFakeContextFromWAV(wavPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
			os.Exit(1)
		}
		audioCtx = fakeCtx
	} else {
		audioCtx = audio.NewFakeContext(syntheticPCM(encoder.SampleRate)) // 1s
	}
	defer audioCtx.Close()

	record := func() (*audio.Artifact, error) {
		rec := recorder.New(audioCtx, nil, recorder.Config{Format: format})
		if err := rec.Start(); err != nil {
			return nil, err
		}
		return rec.Stop()
	}

	seq := auth.NewSequencer(client, auth.DefaultConfig())
	var session *chat.Session
	var collector *enroll.Collector

	ensureSession := func() *chat.Session {
		if session == nil {
			session = chat.NewSession(client, speech.Null{}, seq.Username(), language)
		}
		return session
	}

	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")

		switch cmd {
		case "ENROLL":
			username, email, _ := strings.Cut(arg, " ")
			collector = enroll.NewCollector(client)
			if err := collector.SetCredentials(username, email); err != nil {
				fmt.Printf("ERR %v\n", err)
				continue
			}
			ok := true
			for i := 0; i < enroll.RequiredSamples; i++ {
				art, err := record()
				if err != nil {
					fmt.Printf("ERR %v\n", err)
					ok = false
					break
				}
				collector.Record(art)
				collector.Advance()
			}
			if !ok {
				continue
			}
			if err := collector.Submit(ctx); err != nil {
				fmt.Printf("ERR %v\n", err)
				continue
			}
			fmt.Println("OK enrolled")

		case "LOGIN":
			art, err := record()
			if err != nil {
				fmt.Printf("ERR %v\n", err)
				continue
			}
			state, err := seq.SubmitVoice(ctx, arg, art)
			if err != nil {
				fmt.Printf("ERR state=%s %v\n", state, err)
				continue
			}
			fmt.Printf("OK state=%s score=%.2f\n", state, seq.Score())

		case "OTP":
			state, err := seq.SubmitOTP(ctx, arg)
			if err != nil {
				fmt.Printf("ERR state=%s %v\n", state, err)
				continue
			}
			fmt.Printf("OK state=%s score=%.2f\n", state, seq.Score())

		case "RESEND":
			if _, err := seq.ResendOTP(ctx); err != nil {
				fmt.Printf("ERR %v\n", err)
				continue
			}
			fmt.Println("OK resent")

		case "TEXT":
			if err := ensureSession().SendText(ctx, arg); err != nil {
				fmt.Printf("ERR %v\n", err)
				continue
			}
			fmt.Println("OK sent")

		case "AUDIO":
			art, err := record()
			if err != nil {
				fmt.Printf("ERR %v\n", err)
				continue
			}
			if err := ensureSession().SendAudio(ctx, art); err != nil {
				fmt.Printf("ERR %v\n", err)
				continue
			}
			fmt.Println("OK sent")

		case "LANG":
			ensureSession().SetLanguage(arg)
			fmt.Println("OK language=" + arg)

		case "BANKING":
			data, err := client.BankingData(ctx, seq.Username())
			if err != nil {
				fmt.Printf("ERR %v\n", err)
				continue
			}
			fmt.Printf("OK balance=%.2f transactions=%d\n", data.Balance, len(data.Transactions))

		case "DUMP":
			for _, msg := range ensureSession().Messages() {
				origin := "assistant"
				if msg.Origin == chat.User {
					origin = "user"
				}
				pending := ""
				if msg.Pending {
					pending = " [pending]"
				}
				fmt.Printf("%s: %s%s\n", origin, msg.Text, pending)
			}
			fmt.Println("OK end")

		case "SLEEP":
			if ms, err := strconv.Atoi(arg); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}

		case "QUIT":
			if session != nil {
				session.Close()
			}
			return

		default:
			fmt.Printf("ERR unknown command %q\n", cmd)
		}
	}
}

// syntheticPCM is a loud square-ish wave so the recorder's minimum-length
// and speech-level checks pass without a fixture file.
func syntheticPCM(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(8000)
		if i%2 == 1 {
			v = -8000
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// Package enroll drives voiceprint enrollment: ten recorded samples
// collected one slot at a time, then submitted as a single signup.
package enroll

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"voxbank/api"
	"voxbank/audio"
	"voxbank/log"
)

// RequiredSamples is how many recordings the backend needs to build a
// voiceprint.
const RequiredSamples = 10

// PromptPhrase is what the user reads aloud for each sample (and again at
// login), matching what the verification model was trained against.
const PromptPhrase = "My voice is my password for secure banking and financial transactions."

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Collector holds the enrollment state: credentials plus a fixed array of
// sample slots with a cursor. Re-recording a slot overwrites it.
type Collector struct {
	client api.Client

	mu       sync.Mutex
	username string
	email    string
	slots    [RequiredSamples]*audio.Artifact
	cursor   int
}

func NewCollector(client api.Client) *Collector {
	return &Collector{client: client}
}

// SetCredentials validates and stores the username and email before any
// recording starts. The email receives the OTP later, so it is checked
// up front.
func (c *Collector) SetCredentials(username, email string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return api.Invalid("username must not be empty")
	}
	if !emailRe.MatchString(email) {
		return api.Invalid("%q is not a valid email address", email)
	}
	c.mu.Lock()
	c.username = username
	c.email = email
	c.mu.Unlock()
	return nil
}

func (c *Collector) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Record stores a sample in the slot under the cursor.
func (c *Collector) Record(art *audio.Artifact) {
	c.mu.Lock()
	c.slots[c.cursor] = art
	c.mu.Unlock()
}

// Advance moves the cursor forward; it refuses to skip an empty slot or to
// run past the last one.
func (c *Collector) Advance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slots[c.cursor] == nil || c.cursor >= RequiredSamples-1 {
		return false
	}
	c.cursor++
	return true
}

// Retreat moves the cursor back one slot for re-recording.
func (c *Collector) Retreat() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursor == 0 {
		return false
	}
	c.cursor--
	return true
}

func (c *Collector) Cursor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Filled counts slots holding a sample.
func (c *Collector) Filled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filledLocked()
}

func (c *Collector) filledLocked() int {
	n := 0
	for _, s := range c.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// Progress is the fraction of filled slots, 0 to 1.
func (c *Collector) Progress() float64 {
	return float64(c.Filled()) / RequiredSamples
}

// Complete reports whether every slot holds a sample.
func (c *Collector) Complete() bool {
	return c.Filled() == RequiredSamples
}

// Reset clears a single slot so it can be re-recorded without disturbing
// the others. Out-of-range indexes are ignored.
func (c *Collector) Reset(index int) {
	if index < 0 || index >= RequiredSamples {
		return
	}
	c.mu.Lock()
	c.slots[index] = nil
	c.mu.Unlock()
}

// Submit sends all samples to the backend. A rejection (for example a
// duplicate username) leaves the samples intact so the user can retry with
// different credentials.
func (c *Collector) Submit(ctx context.Context) error {
	c.mu.Lock()
	username := c.username
	email := c.email
	filled := c.filledLocked()
	samples := make([]*audio.Artifact, 0, RequiredSamples)
	for _, s := range c.slots {
		if s != nil {
			samples = append(samples, s)
		}
	}
	c.mu.Unlock()

	if username == "" {
		return api.Invalid("credentials not set")
	}
	if filled < RequiredSamples {
		return api.Invalid("need %d samples, have %d", RequiredSamples, filled)
	}

	err := c.client.Enroll(ctx, username, email, samples)
	log.EnrollResult(username, len(samples), err == nil)
	return err
}

// Package chat holds the conversational session: an ordered message
// history, one round-trip to the command endpoint at a time, and
// transcription reconciliation for spoken input.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voxbank/api"
	"voxbank/audio"
	"voxbank/log"
)

// ErrAudioPending is returned by SendAudio while a previous audio message
// is still waiting for its transcription.
var ErrAudioPending = errors.New("an audio message is still awaiting transcription")

// PlaceholderText is the provisional label shown for a spoken message
// until the server's transcription replaces it.
const PlaceholderText = "🎤 Audio Message..."

type Origin int

const (
	User Origin = iota
	Assistant
)

// Message is one history entry. ID doubles as the correlation id for
// transcription reconciliation, so a response can only ever patch the
// placeholder created by its own request.
type Message struct {
	ID      string
	Origin  Origin
	Text    string
	Pending bool
}

// Synthesizer speaks assistant replies. Playback is asynchronous and
// failures are non-critical.
type Synthesizer interface {
	Speak(text, language string) error
}

// fallbackMessages is what the assistant says when the backend cannot be
// reached, per language tag.
var fallbackMessages = map[string]string{
	"en-US": "Sorry, I'm having trouble reaching the bank right now. Please try again.",
	"es-ES": "Lo siento, no puedo conectar con el banco en este momento. Inténtalo de nuevo.",
	"hi-IN": "क्षमा करें, अभी बैंक से संपर्क नहीं हो पा रहा है। कृपया पुनः प्रयास करें।",
	"fr-FR": "Désolé, je n'arrive pas à joindre la banque pour le moment. Veuillez réessayer.",
}

func fallbackFor(language string) string {
	if msg, ok := fallbackMessages[language]; ok {
		return msg
	}
	return fallbackMessages["en-US"]
}

// Session owns the conversation state for one authenticated user.
// Dispatches are serialized: at most one round-trip is outstanding, so
// replies land in the order requests were made.
type Session struct {
	client api.Client
	speech Synthesizer

	// OnIntent fires when a reply carries a recognized intent, so the
	// host can refresh cached banking data. Called off the send path.
	OnIntent func(intent string)

	dispatchMu sync.Mutex // serializes round-trips

	mu           sync.Mutex
	username     string
	language     string
	messages     []Message
	pendingAudio bool
	gen          uint64
	turns        int
}

func NewSession(client api.Client, speech Synthesizer, username, language string) *Session {
	if language == "" {
		language = "en-US"
	}
	log.SessionStart(username, language)
	return &Session{
		client:   client,
		speech:   speech,
		username: username,
		language: language,
	}
}

// Messages returns a snapshot of the history in chronological order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

func (s *Session) SetLanguage(tag string) {
	s.mu.Lock()
	s.language = tag
	s.mu.Unlock()
}

// AudioPending reports whether a spoken message is still unreconciled.
func (s *Session) AudioPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingAudio
}

// SendText submits a typed message and blocks until the assistant's reply
// (or the fallback) has been appended.
func (s *Session) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return api.Invalid("message must not be empty")
	}

	s.mu.Lock()
	gen := s.gen
	language := s.language
	username := s.username
	s.messages = append(s.messages, Message{
		ID:     uuid.NewString(),
		Origin: User,
		Text:   text,
	})
	s.mu.Unlock()
	log.Conversation("user", text)

	s.dispatch(ctx, gen, "", api.CommandRequest{
		Username: username,
		Text:     text,
		Language: language,
	})
	return nil
}

// SendAudio submits a spoken message. A placeholder appears immediately;
// the server's transcription replaces it when the reply arrives. Only one
// audio message may be in flight at a time.
func (s *Session) SendAudio(ctx context.Context, artifact *audio.Artifact) error {
	if artifact == nil || len(artifact.Data) == 0 {
		return api.Invalid("no audio recorded")
	}

	s.mu.Lock()
	if s.pendingAudio {
		s.mu.Unlock()
		return ErrAudioPending
	}
	s.pendingAudio = true
	gen := s.gen
	language := s.language
	username := s.username
	correlationID := uuid.NewString()
	s.messages = append(s.messages, Message{
		ID:      correlationID,
		Origin:  User,
		Text:    PlaceholderText,
		Pending: true,
	})
	s.mu.Unlock()

	s.dispatch(ctx, gen, correlationID, api.CommandRequest{
		Username: username,
		Audio:    artifact,
		Language: language,
	})
	return nil
}

// dispatch runs one serialized round-trip and applies the outcome. A
// non-empty correlationID marks an audio turn whose placeholder needs
// reconciling.
func (s *Session) dispatch(ctx context.Context, gen uint64, correlationID string, req api.CommandRequest) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	start := time.Now()
	reply, err := s.client.Command(ctx, req)

	s.mu.Lock()
	if s.gen != gen {
		// Session was reset while the call was in flight; drop the
		// response on the floor.
		s.mu.Unlock()
		return
	}

	if correlationID != "" {
		s.pendingAudio = false
	}

	if err != nil {
		log.Errorf("command failed: %v", err)
		// The placeholder keeps its provisional label; only the pending
		// flag clears, so the history still shows a turn happened.
		if correlationID != "" {
			s.clearPendingLocked(correlationID, "")
		}
		fallback := fallbackFor(s.language)
		s.messages = append(s.messages, Message{
			ID:     uuid.NewString(),
			Origin: Assistant,
			Text:   fallback,
		})
		s.mu.Unlock()
		log.Conversation("assistant", fallback)
		return
	}

	if correlationID != "" && reply.Transcription != "" {
		s.clearPendingLocked(correlationID, reply.Transcription)
		log.Conversation("user", reply.Transcription)
	} else if correlationID != "" {
		s.clearPendingLocked(correlationID, "")
	}

	s.messages = append(s.messages, Message{
		ID:     uuid.NewString(),
		Origin: Assistant,
		Text:   reply.Message,
	})
	s.turns++
	language := s.language
	s.mu.Unlock()

	log.Conversation("assistant", reply.Message)
	log.CommandTurn(reply.Intent, language, correlationID != "", float64(time.Since(start).Milliseconds()))

	if s.speech != nil && reply.Message != "" {
		go func(text string) {
			// Non-critical: a missing voice for the language is not an
			// error the conversation cares about.
			_ = s.speech.Speak(text, language)
		}(reply.Message)
	}

	if reply.Intent != "" && reply.Intent != api.IntentUnknown && s.OnIntent != nil {
		go s.OnIntent(reply.Intent)
	}
}

// clearPendingLocked patches the placeholder matching the correlation id.
// Caller holds s.mu.
func (s *Session) clearPendingLocked(correlationID, transcription string) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == correlationID {
			if transcription != "" {
				s.messages[i].Text = transcription
			}
			s.messages[i].Pending = false
			return
		}
	}
}

// Reset wipes the history and invalidates any in-flight round-trip.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.messages = nil
	s.pendingAudio = false
}

// Close ends the session; history is discarded.
func (s *Session) Close() {
	s.mu.Lock()
	turns := s.turns
	s.gen++
	s.messages = nil
	s.pendingAudio = false
	s.mu.Unlock()
	log.SessionEnd(turns)
}

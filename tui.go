package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voxbank/api"
	"voxbank/audio"
	"voxbank/auth"
	"voxbank/chat"
	"voxbank/cue"
	"voxbank/recorder"
)

// TUI message types
type repliedMsg struct{ err error }
type audioLevelMsg struct{ level float64 }
type recordTickMsg struct{ duration float64 }
type silenceEvMsg struct{ ev recorder.SilenceEvent }
type bankingMsg struct {
	data *api.BankingData
	err  error
}
type intentMsg struct{ intent string }

var languages = []string{"en-US", "es-ES", "hi-IN", "fr-FR"}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	recStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	balanceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

type chatModel struct {
	session *chat.Session
	client  api.Client
	rec     *recorder.Recorder

	username string
	langIdx  int

	viewport viewport.Model
	input    textinput.Model
	ready    bool

	width, height int

	recording   bool
	sending     bool
	level       float64
	recDur      float64
	silenceWarn bool

	banking *api.BankingData
	status  string
}

func newChatModel(session *chat.Session, client api.Client, rec *recorder.Recorder, username, language string) chatModel {
	input := textinput.New()
	input.Placeholder = "Ask about your balance, transfers, loans..."
	input.CharLimit = 500
	input.Focus()

	langIdx := 0
	for i, l := range languages {
		if l == language {
			langIdx = i
		}
	}

	return chatModel{
		session:  session,
		client:   client,
		rec:      rec,
		username: username,
		langIdx:  langIdx,
		input:    input,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.fetchBanking())
}

func (m chatModel) fetchBanking() tea.Cmd {
	client := m.client
	username := m.username
	return func() tea.Msg {
		data, err := client.BankingData(context.Background(), username)
		return bankingMsg{data: data, err: err}
	}
}

func (m chatModel) sendText(text string) tea.Cmd {
	session := m.session
	return func() tea.Msg {
		return repliedMsg{err: session.SendText(context.Background(), text)}
	}
}

func (m chatModel) sendAudio(art *audio.Artifact) tea.Cmd {
	session := m.session
	return func() tea.Msg {
		return repliedMsg{err: session.SendAudio(context.Background(), art)}
	}
}

func (m *chatModel) toggleRecording() tea.Cmd {
	if m.recording {
		m.recording = false
		m.silenceWarn = false
		art, err := m.rec.Stop()
		if err != nil {
			cue.Deny()
			m.status = errorStyle.Render(fmt.Sprintf("recording: %v", err))
			return nil
		}
		cue.Done()
		m.sending = true
		return m.sendAudio(art)
	}

	if m.session.AudioPending() {
		m.status = errorStyle.Render("still transcribing the last message")
		return nil
	}
	if err := m.rec.Start(); err != nil {
		cue.Deny()
		m.status = errorStyle.Render(fmt.Sprintf("microphone: %v", err))
		return nil
	}
	cue.Arm()
	m.recording = true
	m.level = 0
	m.recDur = 0
	m.status = ""
	return nil
}

func (m *chatModel) copyLastReply() {
	msgs := m.session.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Origin == chat.Assistant {
			if err := clipboard.WriteAll(msgs[i].Text); err == nil {
				m.status = statusStyle.Render("reply copied")
			}
			return
		}
	}
}

func (m *chatModel) cycleLanguage() {
	m.langIdx = (m.langIdx + 1) % len(languages)
	m.session.SetLanguage(languages[m.langIdx])
	m.status = statusStyle.Render("language: " + languages[m.langIdx])
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerH := lipgloss.Height(m.headerView())
		footerH := lipgloss.Height(m.footerView())
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerH-footerH)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerH - footerH
		}
		m.refreshHistory()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			if m.recording {
				m.rec.Abort()
			}
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.sending {
				break
			}
			m.input.Reset()
			m.sending = true
			m.status = ""
			cmds = append(cmds, m.sendText(text))
		case "ctrl+r":
			if cmd := m.toggleRecording(); cmd != nil {
				cmds = append(cmds, cmd)
			}
		case "ctrl+l":
			m.cycleLanguage()
		case "ctrl+y":
			m.copyLastReply()
		case "ctrl+b":
			cmds = append(cmds, m.fetchBanking())
		}

	case repliedMsg:
		m.sending = false
		if msg.err != nil {
			m.status = errorStyle.Render(msg.err.Error())
		}
		m.refreshHistory()
		m.viewport.GotoBottom()

	case audioLevelMsg:
		if m.recording {
			m.level = m.level*0.6 + msg.level*0.4
		}

	case recordTickMsg:
		m.recDur = msg.duration

	case silenceEvMsg:
		switch msg.ev {
		case recorder.SilenceWarn, recorder.SilenceRepeat:
			m.silenceWarn = true
		case recorder.SilenceWarnClear:
			m.silenceWarn = false
		}

	case bankingMsg:
		if msg.err == nil {
			m.banking = msg.data
		}

	case intentMsg:
		// A recognized intent may have changed the ledger; refresh.
		cmds = append(cmds, m.fetchBanking())
		m.refreshHistory()
		m.viewport.GotoBottom()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *chatModel) refreshHistory() {
	if !m.ready {
		return
	}
	var b strings.Builder
	wrapWidth := m.viewport.Width - 2
	if wrapWidth < 10 {
		wrapWidth = 10
	}
	for _, msg := range m.session.Messages() {
		var label string
		style := assistantStyle
		switch msg.Origin {
		case chat.User:
			label = "You"
			style = userStyle
		case chat.Assistant:
			label = "Assistant"
		}
		b.WriteString(style.Render(label+":") + " ")
		text := msg.Text
		if msg.Pending {
			b.WriteString(pendingStyle.Render(text))
		} else {
			for i, line := range wrapText(text, wrapWidth) {
				if i > 0 {
					b.WriteString("\n  ")
				}
				b.WriteString(line)
			}
		}
		b.WriteString("\n\n")
	}
	m.viewport.SetContent(b.String())
}

func (m chatModel) headerView() string {
	title := lipgloss.NewStyle().Bold(true).Render("voxbank assistant")
	account := ""
	if m.banking != nil {
		account = fmt.Sprintf("  %s  %s",
			m.banking.AccountNumber,
			balanceStyle.Render(fmt.Sprintf("$%.2f", m.banking.Balance)))
	}
	lang := statusStyle.Render("  [" + languages[m.langIdx] + "]")
	return title + account + lang + "\n" + strings.Repeat("─", max(m.width, 1)) + "\n"
}

func (m chatModel) footerView() string {
	var state string
	switch {
	case m.recording && m.silenceWarn:
		state = recStyle.Render(fmt.Sprintf("● REC %.1fs", m.recDur)) + errorStyle.Render("  ⚠ no voice detected")
	case m.recording:
		state = recStyle.Render(fmt.Sprintf("● REC %.1fs %s", m.recDur, levelBar(m.level)))
	case m.sending:
		state = statusStyle.Render("…waiting for assistant")
	default:
		state = m.status
	}

	help := helpStyle.Render("enter send · ctrl+r speak · ctrl+l language · ctrl+y copy · ctrl+b refresh · esc quit")
	return "\n" + m.input.View() + "\n" + state + "\n" + help
}

func (m chatModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	return m.headerView() + m.viewport.View() + m.footerView()
}

func levelBar(level float64) string {
	const width = 16
	filled := int(level * 4 * width)
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat(" ", width-filled) + "]"
}

func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}

func runChat(audioCtx audio.Context, device *audio.DeviceInfo, client api.Client, synth chat.Synthesizer, seq *auth.Sequencer, format, language string) error {
	session := chat.NewSession(client, synth, seq.Username(), language)
	defer session.Close()

	session.OnIntent = func(intent string) {
		tuiSend(intentMsg{intent: intent})
	}

	rec := recorder.New(audioCtx, device, recorder.Config{
		Format: format,
		OnLevel: func(rms float64) {
			tuiSend(audioLevelMsg{level: rms})
		},
		OnTick: func(elapsed time.Duration) {
			tuiSend(recordTickMsg{duration: elapsed.Seconds()})
		},
		OnSilence: func(ev recorder.SilenceEvent) {
			tuiSend(silenceEvMsg{ev: ev})
		},
	})

	m := newChatModel(session, client, rec, seq.Username(), language)
	p := tea.NewProgram(m, tea.WithAltScreen())

	tuiMu.Lock()
	tuiProgram = p
	tuiMu.Unlock()

	_, err := p.Run()

	tuiMu.Lock()
	tuiProgram = nil
	tuiMu.Unlock()
	return err
}

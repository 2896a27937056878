// Package tui is a terminal chat client for the wellness assistant.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/wordwrap"

	"wellness-chatbot/internal/core"
	"wellness-chatbot/pkg"
)

const (
	defaultTurnTimeout = 2 * time.Minute
	minWrapWidth       = 20
	chromeHeight       = 5
)

// Config wires the model to a chat service.
type Config struct {
	Chat        *core.ChatService
	Session     *pkg.Session
	TurnTimeout time.Duration
}

type model struct {
	chat    *core.ChatService
	session *pkg.Session
	timeout time.Duration

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	// suggestions by assistant entry ID
	suggestions map[string]pkg.Link
	pending     string
	thinking    bool
	width       int
	notice      string
}

type turnResultMsg struct {
	res *core.TurnResult
}

// New returns the Bubble Tea model for cfg.
func New(cfg Config) tea.Model {
	return newModel(cfg)
}

func newModel(cfg Config) *model {
	input := textinput.New()
	input.Placeholder = "Ask about symptoms, supplements, labs..."
	input.Prompt = "> "
	input.CharLimit = 2000
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	sess := cfg.Session
	if sess == nil {
		sess = core.NewSession(time.Now())
	}
	timeout := cfg.TurnTimeout
	if timeout <= 0 {
		timeout = defaultTurnTimeout
	}
	m := &model{
		chat:        cfg.Chat,
		session:     sess,
		timeout:     timeout,
		input:       input,
		spinner:     spin,
		viewport:    viewport.New(80, 20),
		suggestions: map[string]pkg.Link{},
		width:       80,
	}
	m.refresh()
	return m
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - chromeHeight
		if m.viewport.Height < 1 {
			m.viewport.Height = 1
		}
		m.input.Width = msg.Width - 4
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if !m.thinking {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case turnResultMsg:
		m.thinking = false
		m.pending = ""
		m.session.Transcript = append(m.session.Transcript, msg.res.User, msg.res.Assistant)
		if msg.res.Suggestion != nil {
			m.suggestions[msg.res.Assistant.ID] = *msg.res.Suggestion
		}
		m.notice = ""
		if !msg.res.Completion.OK() {
			m.notice = "The assistant could not be reached."
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.submit()
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit starts a turn for the current input.  Only one turn runs at a time.
func (m *model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.thinking {
		return nil
	}
	m.input.SetValue("")
	m.thinking = true
	m.pending = text
	m.refresh()
	return tea.Batch(m.spinner.Tick, runTurn(m.chat, m.session, text, m.timeout))
}

// runTurn answers text against a copy of sess; Update appends the entries to
// the real transcript when the result arrives.
func runTurn(chat *core.ChatService, sess *pkg.Session, text string, timeout time.Duration) tea.Cmd {
	snapshot := *sess
	snapshot.Transcript = append([]pkg.TranscriptEntry(nil), sess.Transcript...)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return turnResultMsg{res: chat.Turn(ctx, &snapshot, text)}
	}
}

func (m *model) View() string {
	parts := []string{
		titleStyle.Render("Wellness Chatbot"),
		m.viewport.View(),
	}
	if m.thinking {
		parts = append(parts, fmt.Sprintf("%s Thinking...", m.spinner.View()))
	} else if m.notice != "" {
		parts = append(parts, errorStyle.Render(m.notice))
	} else {
		parts = append(parts, "")
	}
	parts = append(parts, m.input.View(), helpStyle.Render("enter send • ↑/↓ scroll • esc quit"))
	return strings.Join(parts, "\n")
}

// refresh re-renders the transcript into the viewport and scrolls to the end.
func (m *model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *model) renderTranscript() string {
	wrap := m.width - 2
	if wrap < minWrapWidth {
		wrap = minWrapWidth
	}
	var b strings.Builder
	for _, e := range m.session.Transcript {
		writeEntry(&b, e.Speaker, e.Text, wrap)
		if link, ok := m.suggestions[e.ID]; ok {
			b.WriteString(suggestionStyle.Render(wordwrap.String(link.Markdown(), wrap)))
			b.WriteString("\n\n")
		}
	}
	if m.pending != "" {
		writeEntry(&b, pkg.SpeakerUser, m.pending, wrap)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeEntry(b *strings.Builder, speaker pkg.Speaker, text string, wrap int) {
	if speaker == pkg.SpeakerUser {
		b.WriteString(userRoleStyle.Render("You"))
	} else {
		b.WriteString(assistantRoleStyle.Render("OURA"))
	}
	b.WriteString("\n")
	b.WriteString(wordwrap.String(text, wrap))
	b.WriteString("\n\n")
}

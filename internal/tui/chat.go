// Package tui is the interactive chat front end over the RAG engine.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"productrag/internal/domain"
)

// Asker is the engine surface the chat needs.
type Asker interface {
	QueryWithLLM(ctx context.Context, question string, k int) (domain.Answer, error)
}

type turn struct {
	question string
	answer   domain.Answer
	err      error
	elapsed  time.Duration
}

type answerMsg struct {
	turn turn
}

// Model is the Bubble Tea model for the chat session.
type Model struct {
	asker    Asker
	topK     int
	timeout  time.Duration
	title    string
	input    textinput.Model
	viewport viewport.Model
	turns    []turn
	pending  string
	ready    bool
}

// New creates a chat model. timeout bounds one question; 0 means none.
func New(asker Asker, title string, topK int, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Nhập câu hỏi và nhấn Enter"
	ti.Focus()
	ti.CharLimit = 500

	return Model{
		asker:    asker,
		topK:     topK,
		timeout:  timeout,
		title:    title,
		input:    ti,
		viewport: viewport.New(0, 0),
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, frame := transcriptStyle.GetFrameSize()
		_, inputFrame := inputStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-frame-inputFrame-3)
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil

	case answerMsg:
		m.pending = ""
		m.turns = append(m.turns, msg.turn)
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending != "" {
				return m, nil
			}
			m.pending = q
			m.input.SetValue("")
			m.viewport.SetContent(m.renderTranscript())
			m.viewport.GotoBottom()
			return m, m.ask(q)
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	asker, k, timeout := m.asker, m.topK, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		answer, err := asker.QueryWithLLM(ctx, question, k)
		return answerMsg{turn: turn{question: question, answer: answer, err: err, elapsed: time.Since(start)}}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Đang tải..."
	}
	header := titleStyle.Render(m.title)
	status := statusStyle.Render("Enter: gửi • PgUp/PgDn: cuộn • Esc: thoát")
	if m.pending != "" {
		status = statusStyle.Render("Đang trả lời...")
	}
	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		status
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 && m.pending == "" {
		return hintStyle.Render("Xin chào! Hãy hỏi về sản phẩm bạn quan tâm.")
	}

	var sb strings.Builder
	for _, t := range m.turns {
		sb.WriteString(questionStyle.Render("Bạn: " + t.question))
		sb.WriteString("\n")
		sb.WriteString(renderAnswer(t))
		sb.WriteString("\n\n")
	}
	if m.pending != "" {
		sb.WriteString(questionStyle.Render("Bạn: " + m.pending))
		sb.WriteString("\n")
		sb.WriteString(hintStyle.Render("..."))
	}
	return sb.String()
}

func renderAnswer(t turn) string {
	if t.err != nil {
		return errorStyle.Render("Lỗi: " + t.err.Error())
	}
	text := t.answer.Text
	meta := fmt.Sprintf("[%s, %s]", t.answer.Tier, t.elapsed.Round(time.Millisecond))
	if t.answer.Degraded {
		return degradedStyle.Render(text) + "\n" + hintStyle.Render(meta)
	}
	return text + "\n" + hintStyle.Render(meta)
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	degradedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/danielolaszy/poker/internal/poker"
)

// maxNotices is how many notifications stay on screen.
const maxNotices = 4

type startedMsg struct {
	err error
}

type actionDoneMsg struct {
	action string
	err    error
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	cardStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	activeStyle = cardStyle.BorderForeground(lipgloss.Color("42")).Bold(true)
	cursorStyle = cardStyle.BorderForeground(lipgloss.Color("212"))
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))

	noticeStyles = map[poker.Kind]lipgloss.Style{
		poker.KindSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		poker.KindError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		poker.KindInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	}
)

// Model is the bubbletea model of the voting screen.
type Model struct {
	ctx     context.Context
	source  Source
	keys    KeyMap
	help    help.Model
	comment textinput.Model

	cursor  int
	started bool
	notices []poker.Notification
	confirm *confirmMsg
	status  string
	width   int
}

// NewModel creates a Model driving source.
func NewModel(ctx context.Context, source Source) Model {
	ti := textinput.New()
	ti.Placeholder = "optional comment"
	ti.CharLimit = 255

	return Model{
		ctx:     ctx,
		source:  source,
		keys:    DefaultKeyMap,
		help:    help.New(),
		comment: ti,
	}
}

// Init starts the source.
func (m Model) Init() tea.Cmd {
	return func() tea.Msg {
		return startedMsg{err: m.source.Start(m.ctx)}
	}
}

func (m Model) run(action string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn(ctx)}
	}
}

// choices returns what the cursor moves over: the cards while voting, the
// estimates once the session ended.
func choices(snap poker.Snapshot) []string {
	if snap.State == "ended" {
		return snap.Estimates
	}
	values := make([]string, 0, len(snap.Cards))
	for _, c := range snap.Cards {
		values = append(values, c.Value)
	}
	return values
}

// Update handles keys and the messages sent by the Host.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case startedMsg:
		m.started = true
		if msg.err != nil {
			m.status = msg.err.Error()
		}
		m.syncComment()
		return m, nil

	case actionDoneMsg:
		switch {
		case msg.err == nil:
			m.status = ""
		case errors.Is(msg.err, poker.ErrInFlight):
			m.status = "Still working on the previous " + msg.action + "."
		default:
			m.status = msg.err.Error()
		}
		if msg.action == "end session" {
			m.cursor = 0
		}
		m.syncComment()
		return m, nil

	case notifyMsg:
		m.notices = append(m.notices, msg.note)
		if len(m.notices) > maxNotices {
			m.notices = m.notices[len(m.notices)-maxNotices:]
		}
		return m, nil

	case confirmMsg:
		m.confirm = &msg
		return m, nil

	case refreshMsg:
		m.syncComment()
		return m, nil

	case dialogHiddenMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// syncComment copies the comment box of a freshly bound widget into the input.
func (m *Model) syncComment() {
	if m.comment.Focused() {
		return
	}
	if b := m.source.Live(); b != nil {
		m.comment.SetValue(b.View().Comment())
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirm != nil {
		switch {
		case key.Matches(msg, m.keys.Yes):
			m.confirm.reply <- true
			m.confirm = nil
		case key.Matches(msg, m.keys.No):
			m.confirm.reply <- false
			m.confirm = nil
		}
		return m, nil
	}

	if m.comment.Focused() {
		switch msg.Type {
		case tea.KeyEnter, tea.KeyEsc:
			m.comment.Blur()
			if b := m.source.Live(); b != nil {
				if err := b.SetComment(m.comment.Value()); err != nil {
					m.status = err.Error()
				}
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.comment, cmd = m.comment.Update(msg)
		return m, cmd
	}

	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if key.Matches(msg, m.keys.Close) {
		return m, m.run("close", m.source.Close)
	}

	b := m.source.Live()
	if b == nil {
		return m, nil
	}
	snap := b.View().Snapshot()
	values := choices(snap)

	switch {
	case key.Matches(msg, m.keys.Left):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Right):
		if m.cursor < len(values)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Comment):
		if snap.State != "ended" {
			m.comment.Focus()
			return m, textinput.Blink
		}
	case key.Matches(msg, m.keys.End):
		return m, m.run("end session", b.ClickEndSession)
	case key.Matches(msg, m.keys.Select):
		if m.cursor >= len(values) {
			return m, nil
		}
		value := values[m.cursor]
		if snap.State == "ended" {
			return m, m.run("estimate", func(ctx context.Context) error {
				return b.ClickApplyEstimate(ctx, value)
			})
		}
		return m, m.run("vote", func(ctx context.Context) error {
			return b.ClickCard(ctx, value)
		})
	}
	return m, nil
}

// View draws the screen.
func (m Model) View() string {
	var sections []string
	sections = append(sections, titleStyle.Render(m.source.Title()))

	b := m.source.Live()
	if b == nil {
		if m.started {
			sections = append(sections, mutedStyle.Render(m.source.Message()))
		} else {
			sections = append(sections, mutedStyle.Render("Loading..."))
		}
	} else {
		sections = append(sections, m.renderWidget(b))
	}

	for _, n := range m.notices {
		style := noticeStyles[n.Kind]
		line := n.Body
		if n.Title != "" {
			line = n.Title + ": " + n.Body
		}
		sections = append(sections, style.Render(line))
	}
	if m.status != "" {
		sections = append(sections, noticeStyles[poker.KindError].Render(m.status))
	}
	if m.confirm != nil {
		sections = append(sections, promptStyle.Render(m.confirm.prompt+" [y/n]"))
	}
	sections = append(sections, m.help.View(m.keys))
	return strings.Join(sections, "\n\n")
}

func (m Model) renderWidget(b *poker.Binding) string {
	snap := b.View().Snapshot()
	values := choices(snap)
	var lines []string

	if snap.Message != "" {
		lines = append(lines, mutedStyle.Render(snap.Message))
	}

	if snap.State != "ended" {
		cards := make([]string, 0, len(snap.Cards))
		for i, c := range snap.Cards {
			style := cardStyle
			switch {
			case i == m.cursor:
				style = cursorStyle
			case c.Active:
				style = activeStyle
			}
			label := c.Value
			if c.Active {
				label = "*" + label
			}
			cards = append(cards, style.Render(label))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cards...))
		lines = append(lines, "Comment: "+m.comment.View())
		if len(snap.Voters) > 0 {
			lines = append(lines, mutedStyle.Render("Voted: "+strings.Join(snap.Voters, ", ")))
		}
		if present, visible := b.View().EndSessionControl(); present && (visible || !b.Handle().Instant()) {
			lines = append(lines, promptStyle.Render("[e] End session"))
		}
		return strings.Join(lines, "\n")
	}

	for _, r := range snap.Results {
		row := fmt.Sprintf("%-16s %4s", r.Voter, r.Value)
		if r.Comment != "" {
			row += "  " + mutedStyle.Render(r.Comment)
		}
		lines = append(lines, row)
	}
	if !snap.Stats.Empty() {
		lines = append(lines, fmt.Sprintf("min %g  max %g  avg %.1f  (%d votes)",
			snap.Stats.Min, snap.Stats.Max, snap.Stats.Average, snap.Stats.Count))
	}
	if snap.FinalEstimate != "" {
		lines = append(lines, activeStyle.Render("Final estimate: "+snap.FinalEstimate))
	} else if len(values) > 0 {
		buttons := make([]string, 0, len(values))
		for i, v := range values {
			style := cardStyle
			if i == m.cursor {
				style = cursorStyle
			}
			buttons = append(buttons, style.Render("Apply "+v))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, buttons...))
	}
	return strings.Join(lines, "\n")
}

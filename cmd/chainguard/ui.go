package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/koscakluka/ema-live/core/session"
	"github.com/koscakluka/ema-live/core/transcript"
)

type view int

const (
	viewDashboard view = iota
	viewMap
)

type (
	stateMsg         session.State
	transcriptMsg    []transcript.Entry
	partialInputMsg  string
	partialOutputMsg string
	navigateMsg      struct{}
	errorMsg         struct{ err error }
)

// conversation is the part of the session the dashboard drives.
type conversation interface {
	Toggle(ctx context.Context)
}

const (
	defaultWidth      = 80
	transcriptHeight  = 10
	transcriptPadding = 2
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true).MarginTop(1)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)
	modelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("114")).Bold(true)
	partialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)

	statusStyles = map[session.State]lipgloss.Style{
		session.StateDisconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		session.StateConnecting:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		session.StateConnected:    lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		session.StateListening:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		session.StateSpeaking:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	}

	riskLevelStyles = map[riskLevel]lipgloss.Style{
		riskHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		riskMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		riskLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}

	stockLevelStyles = map[stockLevel]lipgloss.Style{
		stockCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		stockLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		stockHealthy:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	}
)

type model struct {
	ctx          context.Context
	conversation conversation

	state         session.State
	view          view
	transcript    []transcript.Entry
	partialInput  string
	partialOutput string
	notice        string

	spinner    spinner.Model
	transcribe viewport.Model
	width      int
}

func newModel(ctx context.Context, conversation conversation) model {
	return model{
		ctx:          ctx,
		conversation: conversation,
		state:        session.StateDisconnected,
		spinner:      spinner.New(spinner.WithSpinner(spinner.Dot)),
		transcribe:   viewport.New(defaultWidth-transcriptPadding, transcriptHeight),
		width:        defaultWidth,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ", "space":
			if !m.state.IsActive() {
				m.notice = ""
			}
			m.conversation.Toggle(m.ctx)
			return m, nil
		case "m":
			if m.view == viewMap {
				m.view = viewDashboard
			} else {
				m.view = viewMap
			}
			return m, nil
		case "esc":
			m.view = viewDashboard
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.transcribe.Width = max(msg.Width-transcriptPadding, 1)
		m.refreshTranscript()
		return m, nil

	case stateMsg:
		m.state = session.State(msg)
		if m.state == session.StateConnecting {
			m.notice = ""
			m.transcript = nil
			m.refreshTranscript()
		}
		if !m.state.IsActive() {
			m.partialInput, m.partialOutput = "", ""
		}
		return m, nil

	case transcriptMsg:
		m.transcript = append(m.transcript, msg...)
		m.partialInput, m.partialOutput = "", ""
		m.refreshTranscript()
		return m, nil

	case partialInputMsg:
		m.partialInput = string(msg)
		m.refreshTranscript()
		return m, nil

	case partialOutputMsg:
		m.partialOutput = string(msg)
		m.refreshTranscript()
		return m, nil

	case navigateMsg:
		m.view = viewMap
		return m, nil

	case errorMsg:
		m.notice = session.UserNotice(msg.err)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.transcribe, cmd = m.transcribe.Update(msg)
	return m, cmd
}

func (m *model) refreshTranscript() {
	m.transcribe.SetContent(m.renderTranscript())
	m.transcribe.GotoBottom()
}

func (m model) renderTranscript() string {
	width := max(m.transcribe.Width, 10)

	var b strings.Builder
	line := func(label string, style lipgloss.Style, text string) {
		b.WriteString(wordwrap.String(style.Render(label+":")+" "+text, width))
		b.WriteString("\n")
	}
	for _, entry := range m.transcript {
		if entry.Speaker == transcript.SpeakerUser {
			line("You", userStyle, entry.Text)
		} else {
			line("ChainGuard", modelStyle, entry.Text)
		}
	}
	if m.partialInput != "" {
		line("You", partialStyle, m.partialInput)
	}
	if m.partialOutput != "" {
		line("ChainGuard", partialStyle, m.partialOutput)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("ChainGuard"))
	b.WriteString("  ")
	b.WriteString(m.statusLine())
	b.WriteString("\n")

	switch m.view {
	case viewMap:
		b.WriteString(m.mapView())
	default:
		b.WriteString(m.dashboardView())
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Conversation"))
	b.WriteString("\n")
	if len(m.transcript) == 0 && m.partialInput == "" && m.partialOutput == "" {
		b.WriteString(mutedStyle.Render("No conversation yet."))
	} else {
		b.WriteString(panelStyle.Render(m.transcribe.View()))
	}
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(noticeStyle.Render(wordwrap.String(m.notice, max(m.width, 20))))
		b.WriteString("\n")
	}

	b.WriteString(mutedStyle.Render(m.helpLine()))
	return b.String()
}

func (m model) statusLine() string {
	style, ok := statusStyles[m.state]
	if !ok {
		style = mutedStyle
	}
	switch m.state {
	case session.StateConnecting, session.StateConnected:
		return m.spinner.View() + style.Render("Connecting...")
	case session.StateListening:
		return style.Render("● Listening")
	case session.StateSpeaking:
		return style.Render("● Speaking")
	default:
		return style.Render("○ Disconnected")
	}
}

func (m model) helpLine() string {
	toggle := "space: start conversation"
	if m.state.IsActive() {
		toggle = "space: stop conversation"
	}
	if m.view == viewMap {
		return toggle + " • esc: back to dashboard • q: quit"
	}
	return toggle + " • m: warehouse map • q: quit"
}

func (m model) dashboardView() string {
	var b strings.Builder

	b.WriteString(sectionStyle.Render("Products at Risk"))
	b.WriteString("\n")
	for _, risk := range productRisks {
		level := riskLevelStyles[risk.RiskLevel].Render(fmt.Sprintf("%-6s", risk.RiskLevel))
		fmt.Fprintf(&b, "%3d %s %-22s %s\n", risk.RiskScore, level, risk.Name, mutedStyle.Render(risk.Location))
	}

	b.WriteString(sectionStyle.Render("World Events"))
	b.WriteString("\n")
	for _, event := range worldEvents {
		fmt.Fprintf(&b, "• %s %s\n", event.Title, mutedStyle.Render("("+event.Region+")"))
	}
	return b.String()
}

func (m model) mapView() string {
	var b strings.Builder

	b.WriteString(sectionStyle.Render("Warehouse Map"))
	b.WriteString("\n")
	for _, site := range warehouses {
		fmt.Fprintf(&b, "%s %s\n", site.Name, mutedStyle.Render(fmt.Sprintf("(%.4f, %.4f)", site.Location.Lat, site.Location.Lng)))
		for _, stock := range site.Stock {
			level := stockLevelStyles[stock.Level].Render(fmt.Sprintf("%-8s", stock.Level))
			fmt.Fprintf(&b, "  %s %-22s %d units\n", level, stock.ProductName, stock.Quantity)
		}
	}
	return b.String()
}

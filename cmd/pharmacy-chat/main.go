package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/safar/axon-pharmacy/internal/chatclient"
)

type appConfig struct {
	addr     string
	email    string
	password string
	admin    bool
	register bool
	name     string
	age      int
	timeout  time.Duration
	history  int
}

type theme struct {
	header lipgloss.Style
	you    lipgloss.Style
	bot    lipgloss.Style
	tools  lipgloss.Style
	status lipgloss.Style
	err    lipgloss.Style
}

func newTheme() theme {
	return theme{
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#05ffa1")).
			BorderStyle(lipgloss.RoundedBorder()).BorderBottom(true).Padding(0, 1),
		you:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#01cdfe")),
		bot:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff71ce")),
		tools:  lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#9ca3d8")),
		status: lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3d8")),
		err:    lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5555")),
	}
}

type line struct {
	who   string
	text  string
	tools []string
}

type model struct {
	cfg    appConfig
	client *chatclient.Client
	theme  theme

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model

	lines      []line
	statusLine string
	inflight   bool
	width      int
	height     int
}

type historyMsg struct {
	turns []chatclient.Turn
	err   error
}

type replyMsg struct {
	reply *chatclient.Reply
	err   error
}

type statusMsg struct {
	status *chatclient.Status
	err    error
}

func newModel(cfg appConfig, client *chatclient.Client) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 2000
	input.Placeholder = "Ask about medicines, orders or your health"
	if client.IsAdmin() {
		input.Placeholder = "Add medicines, adjust stock, update orders or post to Telegram"
	}
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	return model{
		cfg:        cfg,
		client:     client,
		theme:      newTheme(),
		input:      input,
		timeline:   viewport.New(0, 0),
		spinner:    sp,
		statusLine: "signed in as " + client.Session().Email,
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.client.IsAdmin() {
		cmds = append(cmds, m.statusCmd())
	} else {
		cmds = append(cmds, m.historyCmd())
	}
	return tea.Batch(cmds...)
}

func (m model) historyCmd() tea.Cmd {
	client, limit, timeout := m.client, m.cfg.history, m.cfg.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		turns, err := client.History(ctx, limit)
		return historyMsg{turns: turns, err: err}
	}
}

func (m model) statusCmd() tea.Cmd {
	client, timeout := m.client, m.cfg.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		status, err := client.Status(ctx)
		return statusMsg{status: status, err: err}
	}
}

func (m model) chatCmd(text string) tea.Cmd {
	client, timeout := m.client, m.cfg.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		reply, err := client.Chat(ctx, text)
		return replyMsg{reply: reply, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.timeline.Width = msg.Width
		m.timeline.Height = maxInt(3, msg.Height-5)
		m.input.Width = maxInt(10, msg.Width-4)
		m.render()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case historyMsg:
		if msg.err != nil {
			m.statusLine = "could not load history: " + msg.err.Error()
			break
		}
		for _, t := range msg.turns {
			who := "you"
			if t.Role == "model" {
				who = "axon"
			}
			m.lines = append(m.lines, line{who: who, text: t.Content})
		}
		m.render()

	case statusMsg:
		if msg.err != nil {
			m.statusLine = "status unavailable: " + msg.err.Error()
			break
		}
		m.statusLine = fmt.Sprintf("medicines %d · pending orders %d", msg.status.Medicines, msg.status.PendingOrders)

	case replyMsg:
		m.inflight = false
		if msg.err != nil {
			m.lines = append(m.lines, line{who: "error", text: msg.err.Error()})
		} else {
			m.lines = append(m.lines, line{who: "axon", text: msg.reply.Answer, tools: msg.reply.ToolsCalled})
			if m.client.IsAdmin() && len(msg.reply.ToolsCalled) > 0 {
				cmds = append(cmds, m.statusCmd())
			}
		}
		m.render()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "pgup":
			m.timeline.HalfViewUp()
		case "pgdown":
			m.timeline.HalfViewDown()
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.inflight {
				break
			}
			if text == "/quit" {
				return m, tea.Quit
			}
			m.input.Reset()
			m.inflight = true
			m.lines = append(m.lines, line{who: "you", text: text})
			m.render()
			cmds = append(cmds, m.chatCmd(text))
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *model) render() {
	var b strings.Builder
	wrap := lipgloss.NewStyle().Width(maxInt(20, m.width-2))

	for _, l := range m.lines {
		switch l.who {
		case "you":
			b.WriteString(m.theme.you.Render("you") + "\n")
		case "axon":
			b.WriteString(m.theme.bot.Render("axon") + "\n")
		default:
			b.WriteString(m.theme.err.Render(l.who) + "\n")
		}
		b.WriteString(wrap.Render(l.text) + "\n")
		if len(l.tools) > 0 {
			b.WriteString(m.theme.tools.Render("tools: "+strings.Join(l.tools, ", ")) + "\n")
		}
		b.WriteString("\n")
	}

	m.timeline.SetContent(b.String())
	m.timeline.GotoBottom()
}

func (m model) View() string {
	title := "Axon Pharmacy"
	if m.client.IsAdmin() {
		title += " · admin console"
	}

	status := m.statusLine
	if m.inflight {
		status = m.spinner.View() + " thinking..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.theme.header.Render(title),
		m.timeline.View(),
		m.input.View(),
		m.theme.status.Render(status),
	)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func loadConfig() appConfig {
	cfg := appConfig{}
	flag.StringVar(&cfg.addr, "addr", envOr("PHARMACY_API", "http://localhost:8080"), "pharmacy API base URL")
	flag.StringVar(&cfg.email, "email", os.Getenv("PHARMACY_EMAIL"), "account email")
	flag.StringVar(&cfg.password, "password", os.Getenv("PHARMACY_PASSWORD"), "account password")
	flag.BoolVar(&cfg.admin, "admin", false, "sign in to the admin console")
	flag.BoolVar(&cfg.register, "register", false, "create the customer account before signing in")
	flag.StringVar(&cfg.name, "name", "", "display name used with -register")
	flag.IntVar(&cfg.age, "age", 0, "age used with -register")
	flag.DurationVar(&cfg.timeout, "timeout", 150*time.Second, "per-request timeout")
	flag.IntVar(&cfg.history, "history", 50, "chat turns to show on start")
	flag.Parse()
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg := loadConfig()
	if cfg.email == "" || cfg.password == "" {
		fmt.Fprintln(os.Stderr, "email and password are required (-email/-password or PHARMACY_EMAIL/PHARMACY_PASSWORD)")
		os.Exit(2)
	}

	client := chatclient.New(cfg.addr, cfg.timeout)

	if cfg.register && !cfg.admin {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
		err := client.Register(ctx, cfg.email, cfg.password, cfg.name, cfg.age)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "registration failed: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	_, err := client.Login(ctx, cfg.email, cfg.password, cfg.admin)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(newModel(cfg, client), tea.WithAltScreen())
	_, runErr := p.Run()

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := client.Logout(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logout failed: %v\n", err)
	}
	cancel()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "tui error: %v\n", runErr)
		os.Exit(1)
	}
}

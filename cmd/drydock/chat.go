package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nstogner/drydock/pkg/models"
	"github.com/nstogner/drydock/pkg/models/gemini"
	"github.com/nstogner/drydock/pkg/runner"
	"github.com/nstogner/drydock/pkg/sandbox"
	"github.com/nstogner/drydock/pkg/sandbox/docker"
	"github.com/nstogner/drydock/pkg/store"
	"github.com/nstogner/drydock/pkg/store/jsonl"
	"github.com/nstogner/drydock/pkg/tools"
	"github.com/nstogner/drydock/pkg/vfs"
	"github.com/nstogner/drydock/pkg/vfs/badgerfs"
	"github.com/nstogner/drydock/pkg/vfs/overlay"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	cursorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	selectedItemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1)
	thinkingStyle     = lipgloss.NewStyle().Faint(true).Italic(true)
)

func newChatCmd() *cobra.Command {
	var continueLast bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start or continue an agent session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(continueLast)
		},
	}
	cmd.Flags().BoolVarP(&continueLast, "continue", "c", false, "continue the most recently modified session")
	return cmd
}

func runChat(continueLast bool) error {
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY not set (environment or config file)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := gemini.New(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return fmt.Errorf("failed to initialize model provider: %w", err)
	}

	manager := jsonl.NewManager(cfg.StorageRoot)

	m := initialChatModel(ctx, provider, manager)
	if continueLast {
		m, err = m.openRecent()
		if err != nil {
			return err
		}
	}

	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

type chatState int

const (
	stateMenu chatState = iota
	stateSelectingSession
	stateChatting
	stateConfirmExit
)

type errMsg struct{ err error }
type sessionUpdateMsg string
type turnDoneMsg struct{ err error }

type updateViewMsg struct {
	content string
}

type chatModel struct {
	ctx      context.Context
	provider models.ModelProvider
	manager  store.Manager
	updates  <-chan string

	// Per-session wiring, populated by openSession.
	sess    store.Session
	overlay *overlay.FS
	delta   *badgerfs.FS
	runner  *runner.Runner
	sandbox sandbox.Manager

	state             chatState
	availableSessions []store.SessionInfo
	cursor            int
	listOffset        int
	width             int
	height            int
	busy              bool
	err               error

	viewport viewport.Model
	textarea textarea.Model
	renderer *glamour.TermRenderer
}

func initialChatModel(ctx context.Context, provider models.ModelProvider, manager store.Manager) chatModel {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 4096
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)
	vp.SetContent("Welcome! Select an option.")

	// Use "light" style to avoid terminal queries that leak into input
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(80),
	)

	return chatModel{
		ctx:      ctx,
		provider: provider,
		manager:  manager,
		state:    stateMenu,
		viewport: vp,
		textarea: ta,
		renderer: r,
	}
}

func (m chatModel) Init() tea.Cmd {
	if m.sess != nil {
		// Session pre-opened via --continue.
		cmds := []tea.Cmd{textarea.Blink, m.reloadMessages()}
		if m.updates != nil {
			cmds = append(cmds, waitForUpdate(m.updates))
		}
		return tea.Batch(cmds...)
	}
	return textarea.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	var tiCmd, vpCmd tea.Cmd
	// Keep menu Enter presses out of the textarea.
	switch msg.(type) {
	case tea.KeyMsg:
		if m.state == stateChatting {
			m.textarea, tiCmd = m.textarea.Update(msg)
			cmds = append(cmds, tiCmd)
		}
	default:
		m.textarea, tiCmd = m.textarea.Update(msg)
		cmds = append(cmds, tiCmd)
	}

	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = msg.Height - m.textarea.Height() - 2
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}
		m.viewport.YPosition = 2

		// Recreate the renderer at the new width. Standard style avoids
		// terminal-query escape sequences leaking into input.
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(m.width-4),
		)

		maxViewable := m.listViewable()
		if m.cursor < m.listOffset {
			m.listOffset = m.cursor
		}
		if m.cursor >= m.listOffset+maxViewable {
			m.listOffset = m.cursor - maxViewable + 1
		}
		if m.listOffset < 0 {
			m.listOffset = 0
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.sess != nil {
				m.state = stateConfirmExit
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyEsc:
			if m.state == stateConfirmExit {
				m.state = stateChatting
				return m, nil
			}
			if m.sess != nil {
				m.state = stateConfirmExit
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyEnter:
			switch m.state {
			case stateMenu:
				if m.cursor == 0 {
					return m.startNewSession()
				}
				sessions, err := m.manager.ListSessions()
				if err != nil {
					m.err = err
				} else if len(sessions) == 0 {
					m.err = fmt.Errorf("no existing sessions found")
				} else {
					m.availableSessions = sessions
					m.state = stateSelectingSession
					m.cursor = 0
					m.listOffset = 0
				}
			case stateSelectingSession:
				return m.selectSession()
			case stateChatting:
				m.err = nil
				return m.sendMessage()
			}
		case tea.KeyUp:
			if m.cursor > 0 {
				m.cursor--
				if m.cursor < m.listOffset {
					m.listOffset = m.cursor
				}
			}
		case tea.KeyDown:
			var maxCursor int
			switch m.state {
			case stateMenu:
				maxCursor = 1
			case stateSelectingSession:
				maxCursor = len(m.availableSessions) - 1
			}
			if m.cursor < maxCursor {
				m.cursor++
				maxViewable := m.listViewable()
				if m.cursor >= m.listOffset+maxViewable {
					m.listOffset = m.cursor - maxViewable + 1
				}
			}
		default:
			if m.state == stateConfirmExit {
				switch msg.String() {
				case "y", "Y":
					return m, tea.Sequence(m.closeSessionCmd(store.SessionStatusClosed), tea.Quit)
				case "n", "N":
					// Leave the session resumable; the delta and manifest
					// still have to be flushed before the process exits.
					return m, tea.Sequence(m.closeSessionCmd(""), tea.Quit)
				}
			}
		}

	case sessionUpdateMsg:
		if m.sess != nil && string(msg) == m.sess.ID() {
			cmds = append(cmds, m.reloadMessages(), waitForUpdate(m.updates))
		} else {
			cmds = append(cmds, waitForUpdate(m.updates))
		}

	case updateViewMsg:
		m.viewport.SetContent(msg.content)
		m.viewport.GotoBottom()

	case turnDoneMsg:
		m.busy = false
		if msg.err != nil && msg.err != context.Canceled {
			m.err = msg.err
		}
		cmds = append(cmds, m.reloadMessages())

	case errMsg:
		m.err = msg.err
	}

	return m, tea.Batch(cmds...)
}

func (m chatModel) listViewable() int {
	maxViewable := m.height - 7
	if maxViewable < 1 {
		maxViewable = 1
	}
	return maxViewable
}

func (m chatModel) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("\nError: %v", m.err))
	}

	switch m.state {
	case stateMenu:
		header := titleStyle.Render("drydock")

		options := []string{"New Session", "Continue Session"}
		var optionsView []string
		for i, choice := range options {
			cursor := " "
			if m.cursor == i {
				cursor = ">"
				choice = selectedItemStyle.Render(choice)
			}
			optionsView = append(optionsView, fmt.Sprintf("%s %s", cursorStyle.Render(cursor), choice))
		}

		list := lipgloss.JoinVertical(lipgloss.Left, optionsView...)
		footer := "Press Enter to select, Esc to quit."

		return lipgloss.JoinVertical(lipgloss.Left, header, "", list, "", footer, errorView)

	case stateSelectingSession:
		header := titleStyle.Render("Select Session")

		maxViewable := m.listViewable()
		start := m.listOffset
		end := start + maxViewable
		if end > len(m.availableSessions) {
			end = len(m.availableSessions)
		}

		var optionsView []string
		for i := start; i < end; i++ {
			choice := m.availableSessions[i]
			cursor := " "
			name := choice.Name
			if name == "" {
				name = choice.ID
			}
			line := fmt.Sprintf("%s (%s, %s)", name, choice.Status, choice.Modified.Format(time.RFC822))
			if m.cursor == i {
				cursor = ">"
				line = selectedItemStyle.Render(line)
			}
			optionsView = append(optionsView, fmt.Sprintf("%s %s", cursorStyle.Render(cursor), line))
		}

		list := lipgloss.JoinVertical(lipgloss.Left, optionsView...)
		footer := "Press Enter to select, Esc to quit."

		return lipgloss.JoinVertical(lipgloss.Left, header, "", list, "", footer, errorView)

	case stateConfirmExit:
		header := titleStyle.Render("Confirm Exit")
		prompt := "End session? (y/n)"
		subtext := "Ending removes the sandbox; the recorded changes stay until you run 'drydock apply'."

		return lipgloss.JoinVertical(lipgloss.Left, header, "", prompt, subtext, errorView)
	}

	status := ""
	if m.busy {
		status = thinkingStyle.Render("thinking...")
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("drydock — "+shortID(m.sess.ID())),
		"",
		m.viewport.View(),
		status,
		errorView,
		m.textarea.View(),
	)
}

// --- Actions ---

func (m chatModel) startNewSession() (chatModel, tea.Cmd) {
	cwd, err := os.Getwd()
	if err != nil {
		return m, func() tea.Msg { return errMsg{err} }
	}
	sess, err := m.manager.NewSession(cwd, "")
	if err != nil {
		return m, func() tea.Msg { return errMsg{err} }
	}
	if err := m.openSession(sess, false); err != nil {
		return m, func() tea.Msg { return errMsg{err} }
	}
	m.sess = sess
	return m.enterChat()
}

func (m chatModel) selectSession() (chatModel, tea.Cmd) {
	selected := m.availableSessions[m.cursor]
	sess, err := m.manager.LoadSession(selected.ID)
	if err != nil {
		return m, func() tea.Msg { return errMsg{err} }
	}
	if err := m.openSession(sess, true); err != nil {
		sess.Close()
		return m, func() tea.Msg { return errMsg{err} }
	}
	m.sess = sess
	return m.enterChat()
}

// openRecent wires the most recently modified session for the --continue
// flag, before the program starts.
func (m chatModel) openRecent() (chatModel, error) {
	sess, err := m.manager.ContinueRecent()
	if err != nil {
		return m, err
	}
	if err := m.openSession(sess, true); err != nil {
		sess.Close()
		return m, err
	}
	m.sess = sess
	m.updates = m.manager.Subscribe()
	m.state = stateChatting
	return m, nil
}

// openSession wires the overlay, tools and runner for sess. resume controls
// whether the persisted manifest is restored from the delta layer.
func (m *chatModel) openSession(sess store.Session, resume bool) error {
	delta, err := badgerfs.Open(badgerfs.DefaultConfig(m.manager.DeltaDir(sess.ID())))
	if err != nil {
		return fmt.Errorf("failed to open delta layer: %w", err)
	}

	workDir := sess.Header().WorkingDir
	if resume {
		m.overlay = overlay.Resume(vfs.NewOSFS(), delta, workDir)
	} else {
		m.overlay = overlay.New(vfs.NewOSFS(), delta, workDir)
	}
	m.delta = delta

	registry := tools.NewRegistry()
	tools.RegisterFileTools(registry, m.overlay)

	// The sandbox is best-effort: without Docker the agent still has its
	// file tools, just no run_command.
	sbMgr, err := docker.New(cfg.SandboxImage)
	if err != nil {
		slog.Warn("Sandbox unavailable, run_command disabled", "error", err)
	} else {
		m.sandbox = sbMgr
		registry.Register(&sandbox.RunCommandTool{
			Manager:   sbMgr,
			SessionID: sess.ID(),
			WorkDir:   workDir,
		})
	}

	m.runner = runner.New(sess, m.provider, registry, store.ModelRef{
		Provider: cfg.Provider,
		ModelID:  cfg.Model,
	})
	return nil
}

func (m chatModel) enterChat() (chatModel, tea.Cmd) {
	m.updates = m.manager.Subscribe()
	m.state = stateChatting
	m.textarea.Placeholder = "Type a message..."
	m.textarea.Focus()

	return m, tea.Batch(
		m.reloadMessages(),
		waitForUpdate(m.updates),
	)
}

func (m chatModel) sendMessage() (chatModel, tea.Cmd) {
	v := strings.TrimSpace(m.textarea.Value())
	if v == "" {
		return m, nil
	}

	if v == "/exit" {
		m.state = stateConfirmExit
		m.textarea.Reset()
		return m, nil
	}

	if strings.HasPrefix(v, "/model ") {
		modelName := strings.TrimSpace(strings.TrimPrefix(v, "/model "))
		if modelName == "" {
			return m, nil
		}
		m.textarea.Reset()
		sess := m.sess
		return m, func() tea.Msg {
			if _, err := sess.AppendModelChange(cfg.Provider, modelName); err != nil {
				return errMsg{err}
			}
			return nil
		}
	}

	if m.busy {
		// One turn at a time; the session is single-writer.
		return m, nil
	}

	m.textarea.Reset()
	m.busy = true

	r := m.runner
	ctx := m.ctx
	return m, func() tea.Msg {
		return turnDoneMsg{err: r.RunTurn(ctx, v)}
	}
}

// closeSessionCmd flushes the manifest and delta layer and tears the
// sandbox down. An empty status leaves the session's status untouched.
func (m chatModel) closeSessionCmd(status string) tea.Cmd {
	return func() tea.Msg {
		if m.sess == nil {
			return nil
		}
		if m.overlay != nil {
			if err := m.overlay.PersistManifest(); err != nil {
				slog.Error("Failed to persist manifest", "error", err)
			}
		}
		if m.delta != nil {
			if err := m.delta.Close(); err != nil {
				slog.Error("Failed to close delta layer", "error", err)
			}
		}
		if status != "" {
			if err := m.manager.SetSessionStatus(m.sess.ID(), status); err != nil {
				slog.Error("Failed to set session status", "error", err)
			}
		}
		if m.sandbox != nil {
			if err := m.sandbox.Stop(m.ctx, m.sess.ID()); err != nil {
				slog.Error("Failed to stop sandbox", "error", err)
			}
			m.sandbox.Close()
		}
		m.sess.Close()
		return nil
	}
}

func (m chatModel) reloadMessages() tea.Cmd {
	return func() tea.Msg {
		if err := m.sess.Refresh(); err != nil {
			return errMsg{err}
		}
		entries, err := m.sess.GetBranch("")
		if err != nil {
			return errMsg{err}
		}

		var sb strings.Builder
		for _, e := range entries {
			if e.Message == nil || len(e.Message.Content) == 0 {
				continue
			}
			sb.WriteString(m.renderMessage(*e.Message))
		}
		return updateViewMsg{content: sb.String()}
	}
}

func (m chatModel) renderMessage(msg store.MessageEntry) string {
	var sb strings.Builder

	switch msg.Role {
	case store.RoleUser:
		sb.WriteString(userStyle.Render("User: "))
	case store.RoleAssistant:
		sb.WriteString(senderStyle.Render("AI: "))
	default:
		sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(string(msg.Role) + ": "))
	}
	sb.WriteString("\n")

	for _, c := range msg.Content {
		switch c.Type {
		case store.ContentTypeText:
			raw := c.Text.Content
			if m.renderer != nil {
				if rendered, err := m.renderer.Render(raw); err == nil {
					sb.WriteString(rendered)
					continue
				}
			}
			sb.WriteString(raw)
			sb.WriteString("\n")
		case store.ContentTypeToolUse:
			sb.WriteString(fmt.Sprintf("[Tool: %s]\n", c.ToolUse.Name))
			if path, ok := c.ToolUse.Input["path"].(string); ok {
				sb.WriteString(fmt.Sprintf("  %s\n", path))
			}
			if command, ok := c.ToolUse.Input["command"].(string); ok {
				sb.WriteString(fmt.Sprintf("  $ %s\n", command))
			}
		case store.ContentTypeToolResult:
			status := "ok"
			if c.ToolResult.IsError {
				status = "error"
			}
			sb.WriteString(fmt.Sprintf("[Result: %s]\n", status))
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

func waitForUpdate(sub <-chan string) tea.Cmd {
	return func() tea.Msg {
		id, ok := <-sub
		if !ok {
			return nil
		}
		return sessionUpdateMsg(id)
	}
}

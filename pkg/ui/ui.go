// Package ui is a terminal front end for a branching chat session.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/loom/pkg/conversation"
	"github.com/go-go-golems/loom/pkg/conversation/render"
	"github.com/go-go-golems/loom/pkg/session"
	"github.com/rs/zerolog/log"
)

type errMsg struct {
	err error
}

func (e errMsg) Error() string {
	return e.err.Error()
}

// states:
// - user input, the textarea has the focus
// - user moving around messages and branches
// - showing error

type State string

const (
	StateUserInput    State = "user_input"
	StateMovingAround State = "moving_around"
	StateError        State = "error"
)

const (
	inputPlaceholder   = "Once upon a time..."
	waitingPlaceholder = "Waiting for the reply..."
	branchPlaceholder  = "New branch, type the replacement message..."
)

type Model struct {
	session *session.Session
	view    session.View

	viewport viewport.Model
	textArea textarea.Model
	spinner  spinner.Model
	help     help.Model

	keyMap        KeyMap
	style         *Style
	markdownStyle string

	// currently selected message, always valid when the thread is not empty
	selectedIdx int
	showTree    bool
	// placeholder message the textarea is bound to
	editingID conversation.NodeID

	state  State
	err    error
	width  int
	height int
}

type ModelOption func(*Model)

// WithMarkdownStyle sets the glamour style for assistant messages. An empty
// style renders them as plain wrapped text.
func WithMarkdownStyle(style string) ModelOption {
	return func(m *Model) {
		m.markdownStyle = style
	}
}

func WithStyle(style *Style) ModelOption {
	return func(m *Model) {
		m.style = style
	}
}

func NewModel(s *session.Session, options ...ModelOption) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))

	ret := Model{
		session:       s,
		viewport:      viewport.New(0, 0),
		spinner:       sp,
		help:          help.New(),
		keyMap:        DefaultKeyMap,
		style:         DefaultStyles(),
		markdownStyle: "dark",
		editingID:     conversation.NullNode,
	}
	for _, o := range options {
		o(&ret)
	}

	ret.textArea = textarea.New()
	ret.textArea.Placeholder = inputPlaceholder
	ret.textArea.ShowLineNumbers = false
	ret.textArea.Focus()
	ret.state = StateUserInput

	ret.refresh()
	ret.updateKeyBindings()

	return ret
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.DismissError):
			m.err = nil
			m.setState(StateUserInput)
			cmds = append(cmds, m.textArea.Focus())
			m.recomputeSize()

		case key.Matches(msg, m.keyMap.UnfocusMessage):
			m.textArea.Blur()
			m.setState(StateMovingAround)
			m.recomputeSize()

		case key.Matches(msg, m.keyMap.FocusMessage):
			cmds = append(cmds, m.textArea.Focus())
			m.setState(StateUserInput)
			m.recomputeSize()

		case key.Matches(msg, m.keyMap.SelectNextMessage):
			if m.selectedIdx < len(m.view.Messages)-1 {
				m.selectedIdx++
				m.recomputeSize()
			}

		case key.Matches(msg, m.keyMap.SelectPrevMessage):
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.recomputeSize()
			}

		case key.Matches(msg, m.keyMap.PrevSibling):
			return m, m.navigate(-1)

		case key.Matches(msg, m.keyMap.NextSibling):
			return m, m.navigate(+1)

		case key.Matches(msg, m.keyMap.Branch):
			return m, m.branch()

		case key.Matches(msg, m.keyMap.ToggleTree):
			m.showTree = !m.showTree
			m.recomputeSize()

		case key.Matches(msg, m.keyMap.SubmitMessage):
			return m, m.submit()

		case key.Matches(msg, m.keyMap.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.recomputeSize()

		default:
			switch m.state {
			case StateUserInput:
				before := m.textArea.Value()
				m.textArea, cmd = m.textArea.Update(msg)
				cmds = append(cmds, cmd)
				if after := m.textArea.Value(); after != before && m.editingID != conversation.NullNode {
					cmds = append(cmds, editCmd(m.session, len(m.view.Messages)-1, after))
				}
			case StateMovingAround, StateError:
				m.viewport, cmd = m.viewport.Update(msg)
				cmds = append(cmds, cmd)
			}
		}
		return m, tea.Batch(cmds...)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.recomputeSize()

	case SessionChangedMsg:
		if msg.Event != nil {
			log.Trace().Str("type", string(msg.Event.Type)).Int64("version", msg.Event.Meta.Version).Msg("session changed")
		}
		cmds = append(cmds, m.refresh())

	case messageSentMsg:
		m.textArea.Reset()
		cmds = append(cmds, m.refresh())

	case errMsg:
		m.err = msg.err
		m.textArea.Blur()
		m.setState(StateError)
		m.recomputeSize()

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if m.view.InFlight {
			m.recomputeSize()
		}
		return m, tea.Batch(cmds...)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) setState(s State) {
	m.state = s
	m.updateKeyBindings()
}

func (m *Model) updateKeyBindings() {
	moving := m.state == StateMovingAround
	m.keyMap.SelectNextMessage.SetEnabled(moving)
	m.keyMap.SelectPrevMessage.SetEnabled(moving)
	m.keyMap.PrevSibling.SetEnabled(moving)
	m.keyMap.NextSibling.SetEnabled(moving)
	m.keyMap.Branch.SetEnabled(moving)
	m.keyMap.ToggleTree.SetEnabled(moving)
	m.keyMap.FocusMessage.SetEnabled(moving)

	m.keyMap.UnfocusMessage.SetEnabled(m.state == StateUserInput)
	m.keyMap.SubmitMessage.SetEnabled(m.state == StateUserInput)

	m.keyMap.DismissError.SetEnabled(m.state == StateError)
}

// refresh pulls the current view from the session and binds the textarea to
// the placeholder of the active thread, if it has one.
func (m *Model) refresh() tea.Cmd {
	var cmd tea.Cmd
	m.view = m.session.View()
	n := len(m.view.Messages)

	editing := conversation.NullNode
	content := ""
	if n > 0 && m.view.Messages[n-1].IsEditing {
		editing = m.view.Messages[n-1].ID
		content = m.view.Messages[n-1].Content
	}
	if editing != m.editingID {
		m.editingID = editing
		m.textArea.SetValue(content)
		if editing != conversation.NullNode && m.state != StateError {
			cmd = m.textArea.Focus()
			m.setState(StateUserInput)
		}
	}

	switch {
	case m.editingID != conversation.NullNode:
		m.textArea.Placeholder = branchPlaceholder
	case m.view.Incomplete:
		m.textArea.Placeholder = waitingPlaceholder
	default:
		m.textArea.Placeholder = inputPlaceholder
	}

	if m.state == StateUserInput || m.selectedIdx >= n {
		m.selectedIdx = n - 1
	}
	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}

	m.recomputeSize()
	return cmd
}

func (m *Model) selected() (session.MessageView, bool) {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.view.Messages) {
		return session.MessageView{}, false
	}
	return m.view.Messages[m.selectedIdx], true
}

func (m *Model) navigate(direction int) tea.Cmd {
	mv, ok := m.selected()
	if !ok || mv.Branches == nil {
		return nil
	}
	if (direction < 0 && !mv.Branches.HasPrev) || (direction > 0 && !mv.Branches.HasNext) {
		return nil
	}
	return navigateCmd(m.session, mv.Position, direction)
}

func (m *Model) branch() tea.Cmd {
	mv, ok := m.selected()
	if !ok || mv.Role != conversation.RoleUser {
		return nil
	}
	return branchCmd(m.session, mv.Position)
}

// submit sends the placeholder the textarea is bound to, or the textarea
// content as a new message. Nothing is sent while the thread waits for a
// reply.
func (m *Model) submit() tea.Cmd {
	text := m.textArea.Value()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if m.editingID != conversation.NullNode {
		return submitCmd(m.session, len(m.view.Messages)-1, text)
	}
	if m.view.Incomplete {
		return nil
	}
	return sendCmd(m.session, text)
}

func (m *Model) recomputeSize() {
	headerHeight := lipgloss.Height(m.headerView())
	textAreaHeight := lipgloss.Height(m.textAreaView())
	helpViewHeight := lipgloss.Height(m.help.View(m.keyMap))

	newHeight := m.height - textAreaHeight - headerHeight - helpViewHeight
	if newHeight < 0 {
		newHeight = 0
	}
	m.viewport.Width = m.width
	m.viewport.Height = newHeight
	m.viewport.YPosition = headerHeight + 1

	h, _ := m.style.FocusedMessage.GetFrameSize()
	if m.width-h > 0 {
		m.textArea.SetWidth(m.width - h)
	}

	if m.showTree {
		m.viewport.SetContent(m.treeView())
		m.viewport.GotoTop()
		return
	}
	m.viewport.SetContent(m.messageView())
	if m.state == StateUserInput {
		m.viewport.GotoBottom()
	}
}

func (m Model) headerView() string {
	title := fmt.Sprintf("LOOM, thread %d of %d", m.view.Active+1, m.view.ThreadCount)
	if m.showTree {
		title += " (tree)"
	}
	return m.style.Header.Render(title)
}

func branchCounter(b *session.BranchCounter) string {
	return fmt.Sprintf("← %d / %d →", b.Current, b.Total)
}

func (m Model) renderContent(mv session.MessageView, width int) string {
	if mv.Role == conversation.RoleAssistant && m.markdownStyle != "" && mv.Content != "" {
		out, err := glamour.Render(mv.Content, m.markdownStyle)
		if err == nil {
			return strings.Trim(out, "\n")
		}
		log.Debug().Err(err).Msg("could not render markdown")
	}
	return wrapWords(mv.Content, width)
}

func (m Model) messageView() string {
	if len(m.view.Messages) == 0 {
		return "No messages yet. Type below and press tab to send."
	}

	w, _ := m.style.SelectedMessage.GetFrameSize()
	width := m.width - w

	var b strings.Builder
	for idx, mv := range m.view.Messages {
		header := m.style.Role.Render(string(mv.Role))
		if mv.Branches != nil {
			header += " " + m.style.BranchCounter.Render(branchCounter(mv.Branches))
		}
		if mv.IsEditing {
			header += " (editing)"
		}
		if mv.Streaming {
			header += " " + m.spinner.View()
		}

		v := header + "\n" + m.renderContent(mv, width)

		style := m.style.UnselectedMessage
		if idx == m.selectedIdx && m.state == StateMovingAround {
			style = m.style.SelectedMessage
		}
		if width > 0 {
			style = style.Width(width)
		}
		b.WriteString(style.Render(v))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) treeView() string {
	return render.Safe(render.Mermaid, m.session.Tree())
}

func (m Model) textAreaView() string {
	w, _ := m.style.ErrorMessage.GetFrameSize()
	if m.err != nil {
		return m.style.ErrorMessage.Render(wrapWords(m.err.Error(), m.width-w))
	}

	status := ""
	switch {
	case m.view.InFlight:
		status = m.spinner.View() + " waiting for the reply"
	case m.view.LastError != "":
		status = "last reply failed: " + truncate(m.view.LastError, m.width-w)
	}

	v := m.textArea.View()
	if m.state == StateUserInput {
		v = m.style.FocusedMessage.Render(v)
	} else {
		v = m.style.UnselectedMessage.Render(v)
	}
	if status != "" {
		v = status + "\n" + v
	}
	return v
}

func (m Model) View() string {
	return m.headerView() + "\n" +
		m.viewport.View() + "\n" +
		m.textAreaView() + "\n" +
		m.help.View(m.keyMap)
}

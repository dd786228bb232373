package ui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/loom/pkg/conversation"
	"github.com/go-go-golems/loom/pkg/gateway"
	"github.com/go-go-golems/loom/pkg/session"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T, replies ...gateway.Reply) (Model, *session.Session) {
	t.Helper()
	s := session.New(gateway.NewScripted(replies...))
	t.Cleanup(s.Close)
	m := NewModel(s, WithMarkdownStyle(""))
	return update(m, tea.WindowSizeMsg{Width: 100, Height: 40}), s
}

func update(m Model, msg tea.Msg) Model {
	ret, _ := m.Update(msg)
	return ret.(Model)
}

func updateCmd(m Model, msg tea.Msg) (Model, tea.Cmd) {
	ret, cmd := m.Update(msg)
	return ret.(Model), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sendText(t *testing.T, m Model, s *session.Session, text string) Model {
	t.Helper()
	m.textArea.SetValue(text)
	m, cmd := updateCmd(m, tea.KeyMsg{Type: tea.KeyTab})
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, messageSentMsg{}, msg)
	s.Wait()
	return update(m, msg)
}

func TestSendClearsInputAndShowsReply(t *testing.T) {
	m, s := newTestModel(t, gateway.Reply{Fragments: []string{"hey"}})

	_, cmd := updateCmd(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Nil(t, cmd, "empty input is not sent")

	m = sendText(t, m, s, "hi")
	assert.Equal(t, "", m.textArea.Value())
	require.Len(t, m.view.Messages, 2)
	assert.Equal(t, "hi", m.view.Messages[0].Content)
	assert.Equal(t, "hey", m.view.Messages[1].Content)
	assert.Equal(t, 1, m.selectedIdx)
	assert.Contains(t, m.View(), "hey")
}

func TestBranchBindsInputToPlaceholder(t *testing.T) {
	m, s := newTestModel(t, gateway.Reply{Fragments: []string{"hey"}})
	m = sendText(t, m, s, "hi")

	m = update(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, StateMovingAround, m.state)

	_, cmd := updateCmd(m, runes("b"))
	assert.Nil(t, cmd, "assistant messages cannot be branched")

	m = update(m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.selectedIdx)

	m, cmd = updateCmd(m, runes("b"))
	require.NotNil(t, cmd)
	m = update(m, cmd())

	assert.Equal(t, StateUserInput, m.state)
	assert.Equal(t, 1, m.view.Active)
	assert.NotEqual(t, conversation.NullNode, m.editingID)
	assert.Equal(t, branchPlaceholder, m.textArea.Placeholder)
	assert.Contains(t, m.View(), "← 2 / 2 →")

	m, _ = updateCmd(m, runes("h"))
	assert.Equal(t, "h", m.textArea.Value())

	m.textArea.SetValue("hello")
	m, cmd = updateCmd(m, tea.KeyMsg{Type: tea.KeyTab})
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, SessionChangedMsg{}, msg)
	s.Wait()
	m = update(m, msg)

	assert.Equal(t, conversation.NullNode, m.editingID)
	assert.Equal(t, "", m.textArea.Value())
	require.Len(t, m.view.Messages, 2)
	assert.Equal(t, "hello", m.view.Messages[0].Content)
	assert.False(t, m.view.Messages[0].IsEditing)
	assert.Equal(t, "hey", m.view.Messages[1].Content)
}

func TestNavigateBetweenSiblings(t *testing.T) {
	m, s := newTestModel(t, gateway.Reply{Fragments: []string{"hey"}})
	m = sendText(t, m, s, "hi")
	s.Branch(context.Background(), 0)
	m = update(m, SessionChangedMsg{})
	require.Equal(t, 1, m.view.Active)

	m = update(m, tea.KeyMsg{Type: tea.KeyEsc})
	m.selectedIdx = 0

	_, cmd := updateCmd(m, tea.KeyMsg{Type: tea.KeyRight})
	assert.Nil(t, cmd, "already on the last sibling")

	m, cmd = updateCmd(m, tea.KeyMsg{Type: tea.KeyLeft})
	require.NotNil(t, cmd)
	m = update(m, cmd())
	assert.Equal(t, 0, m.view.Active)
	assert.Equal(t, conversation.NullNode, m.editingID)
	assert.Equal(t, StateMovingAround, m.state)

	_, cmd = updateCmd(m, tea.KeyMsg{Type: tea.KeyLeft})
	assert.Nil(t, cmd, "already on the first sibling")
}

func TestEditCmdUpdatesPlaceholder(t *testing.T) {
	m, s := newTestModel(t, gateway.Reply{Fragments: []string{"hey"}})
	m = sendText(t, m, s, "hi")
	s.Branch(context.Background(), 0)

	msg := editCmd(s, 0, "typed")()
	assert.IsType(t, SessionChangedMsg{}, msg)
	m = update(m, msg)
	assert.Equal(t, "typed", m.view.Messages[0].Content)
}

func TestToggleTree(t *testing.T) {
	m, s := newTestModel(t, gateway.Reply{Fragments: []string{"hey"}})
	m = sendText(t, m, s, "hi")

	// typing "t" while the input has the focus is just text
	m = update(m, runes("t"))
	assert.False(t, m.showTree)
	m.textArea.Reset()

	m = update(m, tea.KeyMsg{Type: tea.KeyEsc})
	m = update(m, runes("t"))
	assert.True(t, m.showTree)
	assert.Contains(t, m.View(), "flowchart TD")

	m = update(m, runes("t"))
	assert.False(t, m.showTree)
	assert.NotContains(t, m.View(), "flowchart TD")
}

func TestErrorIsShownUntilDismissed(t *testing.T) {
	m, _ := newTestModel(t)

	m = update(m, errMsg{errors.New("thread is waiting for a reply")})
	assert.Equal(t, StateError, m.state)
	assert.Contains(t, m.View(), "thread is waiting for a reply")

	m = update(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, StateUserInput, m.state)
	assert.NoError(t, m.err)
	assert.NotContains(t, m.View(), "thread is waiting for a reply")
}

func TestFailedReplyShowsStatus(t *testing.T) {
	m, s := newTestModel(t, gateway.Reply{StartErr: errors.New("connection refused")})
	m = sendText(t, m, s, "hi")

	assert.Contains(t, m.View(), "last reply failed")
	assert.True(t, m.view.Incomplete)
	assert.Equal(t, waitingPlaceholder, m.textArea.Placeholder)

	m.textArea.SetValue("again")
	_, cmd := updateCmd(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Nil(t, cmd, "an incomplete thread takes no new message")
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "← 1 / 3 →", branchCounter(&session.BranchCounter{Current: 1, Total: 3, HasNext: true}))
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
	assert.Equal(t, "a b", truncate("a\nb", 0))
	assert.Equal(t, "aaaa\nbbbb", wrapWords("aaaa bbbb", 4))
	assert.Equal(t, "aaaa\naa", wrapWords("aaaaaa", 4))
}

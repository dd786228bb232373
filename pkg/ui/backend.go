package ui

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/loom/pkg/events"
	"github.com/go-go-golems/loom/pkg/session"
	"github.com/pkg/errors"
)

// SessionChangedMsg tells the model to pull a fresh view from the session.
// Event is nil when the change was made by the model itself.
type SessionChangedMsg struct {
	Event *events.Event
}

// ForwardEventsFunc returns a router handler that hands session events to the
// running program.
func ForwardEventsFunc(p *tea.Program) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		msg.Ack()

		e, err := events.NewEventFromJson(msg.Payload)
		if err != nil {
			return errors.Wrap(err, "could not decode session event")
		}
		p.Send(SessionChangedMsg{Event: &e})
		return nil
	}
}

// sessionCmd runs f against the session outside of Update. Session calls may
// block on event delivery, which itself waits for the program to accept
// messages.
func sessionCmd(f func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		if err := f(context.Background()); err != nil {
			return errMsg{err}
		}
		return SessionChangedMsg{}
	}
}

// messageSentMsg clears the input once the session took the message.
type messageSentMsg struct{}

func sendCmd(s *session.Session, text string) tea.Cmd {
	return func() tea.Msg {
		if err := s.Send(context.Background(), text); err != nil {
			return errMsg{err}
		}
		return messageSentMsg{}
	}
}

// submitCmd stores the final text of the placeholder at position and sends it.
func submitCmd(s *session.Session, position int, content string) tea.Cmd {
	return sessionCmd(func(ctx context.Context) error {
		s.EditPlaceholder(ctx, position, content)
		return s.SubmitPlaceholder(ctx, position)
	})
}

func editCmd(s *session.Session, position int, content string) tea.Cmd {
	return sessionCmd(func(ctx context.Context) error {
		s.EditPlaceholder(ctx, position, content)
		return nil
	})
}

func branchCmd(s *session.Session, position int) tea.Cmd {
	return sessionCmd(func(ctx context.Context) error {
		_, err := s.Branch(ctx, position)
		return err
	})
}

func navigateCmd(s *session.Session, position int, direction int) tea.Cmd {
	return sessionCmd(func(ctx context.Context) error {
		s.Navigate(ctx, position, direction)
		return nil
	})
}

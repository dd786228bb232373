package main

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/loom/pkg/events"
	"github.com/go-go-golems/loom/pkg/ui"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat in the terminal, branching and navigating the conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			initTUILogger(loaded.Log)
			markdownStyle, _ := cmd.Flags().GetString("markdown-style")

			a, err := newApp(loaded)
			if err != nil {
				return err
			}
			defer a.Close()

			options := []tea.ProgramOption{
				tea.WithAltScreen(),
				tea.WithMouseCellMotion(),
			}
			if !isatty.IsTerminal(os.Stdin.Fd()) {
				tty, err := ui.OpenTTY()
				if err != nil {
					return errors.Wrap(err, "stdin is not a terminal and no tty could be opened")
				}
				defer func() {
					_ = tty.Close()
				}()
				options = append(options, tea.WithInput(tty))
			}

			p := tea.NewProgram(ui.NewModel(a.session, ui.WithMarkdownStyle(markdownStyle)), options...)
			a.router.AddHandler("ui", events.TopicSession, ui.ForwardEventsFunc(p))

			ctx := cmd.Context()
			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return a.router.Run(ctx)
			})
			eg.Go(func() error {
				defer func() {
					a.session.Close()
					_ = a.router.Close()
				}()
				<-a.router.Running()
				_, err := p.Run()
				return err
			})

			err = eg.Wait()
			log.Debug().Err(err).Msg("chat finished")
			return err
		},
	}
	cmd.Flags().String("markdown-style", "dark", "glamour style for replies (dark, light, notty, or empty for plain text)")
	return cmd
}

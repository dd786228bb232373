package main

import (
	"fmt"
	"os"

	"github.com/go-go-golems/loom/pkg/conversation/render"
	"github.com/go-go-golems/loom/pkg/events"
	"github.com/go-go-golems/loom/pkg/script"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run --script FILE",
		Short: "Replay a script of chat actions and print the resulting tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("script")
			format, _ := cmd.Flags().GetString("format")
			eventsPath, _ := cmd.Flags().GetString("events")

			renderer, err := render.ForFormat(render.Format(format))
			if err != nil {
				return err
			}

			sc, err := script.Load(path)
			if err != nil {
				return err
			}
			s, err := sc.ApplySettings(loaded)
			if err != nil {
				return err
			}

			var sinks []events.EventSink
			if eventsPath != "" {
				f, err := os.Create(eventsPath)
				if err != nil {
					return errors.Wrap(err, "could not create events file")
				}
				defer func() {
					_ = f.Close()
				}()
				sinks = append(sinks, events.NewNDJSONSink(f))
			}

			a, err := newApp(s, sinks...)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := sc.Run(cmd.Context(), a.session); err != nil {
				return err
			}
			if lastErr := a.session.LastError(); lastErr != nil {
				log.Warn().Err(lastErr).Msg("the last reply failed")
			}

			out, err := renderer(a.session.Tree())
			if err != nil {
				return errors.Wrap(err, "could not render tree")
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().String("script", "", "YAML script of actions")
	cmd.Flags().String("format", string(render.FormatMermaid), "Tree output format (mermaid, json)")
	cmd.Flags().String("events", "", "Write session events as NDJSON to this file")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

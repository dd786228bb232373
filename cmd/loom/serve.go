package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/loom/pkg/events"
	"github.com/go-go-golems/loom/pkg/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func logEventsHandler(msg *message.Message) error {
	msg.Ack()
	e, err := events.NewEventFromJson(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Msg("undecodable session event")
		return nil
	}
	log.Debug().
		Str("correlation_id", msg.Metadata.Get(events.CorrelationIDMessageMetadataKey)).
		Object("event", e).
		Msg("session event")
	return nil
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat endpoint and the session API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := loaded.Clone()
			if cmd.Flags().Changed("addr") {
				s.Server.Addr, _ = cmd.Flags().GetString("addr")
			}
			if cmd.Flags().Changed("cors-origin") {
				s.Server.CORSOrigins, _ = cmd.Flags().GetStringSlice("cors-origin")
			}
			if err := s.Server.Validate(); err != nil {
				return err
			}

			a, err := newApp(s)
			if err != nil {
				return err
			}
			defer a.Close()
			a.router.AddHandler("log", events.TopicSession, logEventsHandler)

			srv := server.NewServer(a.session, a.gateway,
				server.WithEventRouter(a.router),
				server.WithCORSOrigins(s.Server.CORSOrigins),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return a.router.Run(ctx)
			})
			eg.Go(func() error {
				<-a.router.Running()
				return srv.Run(ctx, s.Server.Addr)
			})
			return eg.Wait()
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from server.addr, :5001)")
	cmd.Flags().StringSlice("cors-origin", nil, "Allowed CORS origins (default from server.cors-origins, *)")
	return cmd
}

// ABOUTME: Entry point for the natsgate bridge CLI
// ABOUTME: Cobra commands for publish, subscribe, and consumer admin

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/natsgate/natsgate-go/internal/admin"
	"github.com/natsgate/natsgate-go/internal/app"
	"github.com/natsgate/natsgate-go/internal/config"
	"github.com/natsgate/natsgate-go/internal/transport"
	"github.com/natsgate/natsgate-go/internal/version"
	"github.com/natsgate/natsgate-go/pkg/event"
	"github.com/natsgate/natsgate-go/pkg/metrics"
	"github.com/natsgate/natsgate-go/pkg/publish"
	"github.com/natsgate/natsgate-go/pkg/reconnect"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "natsgate",
		Short:        "Client bridge for a NATS HTTP/WebSocket gateway",
		Version:      version.Version,
		SilenceUsage: true,
	}
	root.AddCommand(newPublishCmd(), newSubscribeCmd(), newConsumersCmd())
	return root
}

func newSink() event.Sink {
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("logger", version.Product).
		Logger()
	return event.NewZerolog(logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func addSharedFlags(cmd *cobra.Command) {
	cmd.Flags().String("gateway", "", "Gateway base URL (default from GATEWAY_BASE_URL)")
	cmd.Flags().String("subject", "", "Subject or subject filter (default from NATS_SUBJECT)")
}

// applyFlags lets CLI flags override environment configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("gateway") {
		cfg.GatewayBaseURL, _ = flags.GetString("gateway")
	}
	if flags.Changed("subject") {
		cfg.Subject, _ = flags.GetString("subject")
	}
	if flags.Changed("stream") {
		cfg.StreamName, _ = flags.GetString("stream")
	}
	if flags.Changed("consumer") {
		cfg.ConsumerName, _ = flags.GetString("consumer")
	}
	if flags.Changed("max-messages") {
		cfg.MaxMessages, _ = flags.GetInt("max-messages")
	}
	if flags.Changed("receive-timeout") {
		cfg.ReceiveTimeout, _ = flags.GetDuration("receive-timeout")
	}
	if flags.Changed("interval") {
		cfg.PublishInterval, _ = flags.GetDuration("interval")
	}
}

func policyFor(cfg config.Config, sink event.Sink) reconnect.Policy {
	return reconnect.Policy{
		MaxAttempts: cfg.MaxReconnects,
		BaseDelay:   cfg.ReconnectDelay,
		Exponential: cfg.ReconnectBackoff,
		Sink:        sink,
	}
}

func newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish generated events to the gateway on an interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd, &cfg)

			sink := newSink()
			agg := metrics.New()
			correlator := publish.NewCorrelator(transport.NewHTTPPublisher(cfg.GatewayBaseURL, nil), sink)
			publisher := app.NewPublisher(cfg, correlator, policyFor(cfg, sink), agg, sink)

			ctx, cancel := signalContext()
			defer cancel()

			if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	addSharedFlags(cmd)
	cmd.Flags().Duration("interval", 0, "Publish interval (default from PUBLISH_INTERVAL)")
	return cmd
}

func newSubscribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Stream events from the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd, &cfg)

			sink := newSink()
			agg := metrics.New()
			dialer := &transport.WebSocketDialer{BaseURL: cfg.GatewayBaseURL}
			subscriber := app.NewSubscriber(cfg, dialer, policyFor(cfg, sink), agg, sink)

			ctx, cancel := signalContext()
			defer cancel()

			// A signal must unblock the in-flight receive, not just the
			// next loop iteration.
			go func() {
				<-ctx.Done()
				subscriber.Stop()
			}()

			err = subscriber.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	addSharedFlags(cmd)
	cmd.Flags().String("stream", "", "Durable stream name (default from STREAM_NAME)")
	cmd.Flags().String("consumer", "", "Durable consumer name (default from CONSUMER_NAME)")
	cmd.Flags().Int("max-messages", 0, "Stop after this many messages (default from MAX_MESSAGES)")
	cmd.Flags().Duration("receive-timeout", 0, "Per-receive timeout (default from RECEIVE_TIMEOUT)")
	return cmd
}

func newConsumersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consumers",
		Short: "Administer durable consumers on the gateway",
	}

	adminClient := func(cmd *cobra.Command) (*admin.Client, config.Config, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, config.Config{}, err
		}
		applyFlags(cmd, &cfg)
		return admin.NewClient(cfg.GatewayBaseURL, nil, newSink()), cfg, nil
	}

	list := &cobra.Command{
		Use:   "list <stream>",
		Short: "List consumers on a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := adminClient(cmd)
			if err != nil {
				return err
			}
			infos, err := client.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tfilter=%s\tpending=%d\n", info.Name, info.FilterSubject, info.NumPending)
			}
			return nil
		},
	}

	templates := &cobra.Command{
		Use:   "templates",
		Short: "List consumer configuration templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := adminClient(cmd)
			if err != nil {
				return err
			}
			tmpls, err := client.Templates(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range tmpls {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.Name, t.Description)
			}
			return nil
		},
	}

	info := &cobra.Command{
		Use:   "info <stream> <consumer>",
		Short: "Show one consumer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := adminClient(cmd)
			if err != nil {
				return err
			}
			ci, err := client.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tstream=%s\tfilter=%s\tpending=%d\tdelivered=%d\n",
				ci.Name, ci.Stream, ci.FilterSubject, ci.NumPending, ci.Delivered)
			return nil
		},
	}

	health := &cobra.Command{
		Use:   "health <stream> <consumer>",
		Short: "Show consumer health",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := adminClient(cmd)
			if err != nil {
				return err
			}
			h, err := client.Health(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status=%s\tpending=%d\n", h.Status, h.Pending)
			return nil
		},
	}

	create := &cobra.Command{
		Use:   "create <stream> <consumer>",
		Short: "Create a durable consumer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := adminClient(cmd)
			if err != nil {
				return err
			}
			filter, _ := cmd.Flags().GetString("filter")
			if filter == "" {
				filter = cfg.Subject
			}
			spec := admin.ConsumerSpec{
				Name:          args[1],
				Durable:       true,
				FilterSubject: filter,
				DeliverPolicy: "all",
				AckPolicy:     "explicit",
			}
			ci, err := client.Create(cmd.Context(), args[0], spec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s on %s\n", ci.Name, args[0])
			return nil
		},
	}
	create.Flags().String("filter", "", "Filter subject for the consumer")

	reset := &cobra.Command{
		Use:   "reset <stream> <consumer>",
		Short: "Rewind a consumer's cursor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := adminClient(cmd)
			if err != nil {
				return err
			}
			return client.Reset(cmd.Context(), args[0], args[1])
		},
	}

	del := &cobra.Command{
		Use:   "delete <stream> <consumer>",
		Short: "Delete a durable consumer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := adminClient(cmd)
			if err != nil {
				return err
			}
			return client.Delete(cmd.Context(), args[0], args[1])
		},
	}

	for _, sub := range []*cobra.Command{list, templates, info, health, create, reset, del} {
		addSharedFlags(sub)
		cmd.AddCommand(sub)
	}
	return cmd
}

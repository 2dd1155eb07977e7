package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqttrx/internal/infrastructure/broker"
)

func newBrokerCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "broker",
		Short: "Serve an embedded MQTT broker until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			srv, err := broker.New(a.cfg.Broker, broker.WithLogger(a.log.With("component", "broker").Logger))
			if err != nil {
				return err
			}

			startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := srv.Start(startCtx); err != nil {
				srv.Close() //nolint:errcheck // Best effort cleanup on error path
				return err
			}
			a.printf("broker listening: tcp=%q websocket=%q", a.cfg.Broker.TCPAddress, a.cfg.Broker.WebSocketAddress)

			<-ctx.Done()

			a.log.Info("shutdown signal received, stopping broker")
			if err := srv.Close(); err != nil {
				return fmt.Errorf("stopping broker: %w", err)
			}
			return nil
		},
	}
}

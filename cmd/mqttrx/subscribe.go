package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqttrx/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqttrx/internal/pubsub"
	"github.com/nerrad567/mqttrx/internal/subscription"
)

func newSubscribeCommand(a *app) *cobra.Command {
	var qos uint8

	cmd := &cobra.Command{
		Use:   "subscribe <filter>",
		Short: "Print JSON messages from a topic filter until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			filter := args[0]

			if err := mqtt.ValidateFilter(filter); err != nil {
				return err
			}

			client, err := a.newClient(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if endErr := client.End(); endErr != nil && err == nil {
					err = endErr
				}
			}()

			if err := a.connect(ctx, client); err != nil {
				return err
			}

			var opts []pubsub.CallOption
			if cmd.Flags().Changed("qos") {
				opts = append(opts, pubsub.WithQoS(qos))
			}
			stream, err := pubsub.SubscribeTo[json.RawMessage](client, filter, opts...)
			if err != nil {
				return fmt.Errorf("subscribing to %s: %w", filter, err)
			}
			defer stream.Cancel()

			for {
				select {
				case <-ctx.Done():
					return nil
				case item, ok := <-stream.Items():
					if !ok {
						return stream.Err()
					}
					switch item.Kind {
					case subscription.ItemGrant:
						a.log.Info("subscribed", "topic", item.Grant.Topic, "qos", item.Grant.QoS)
					case subscription.ItemMessage:
						a.printf("%s %s", item.Message.Topic, item.Message.Payload)
					case subscription.ItemError:
						a.log.Warn("message skipped", "error", item.Err)
					}
				}
			}
		},
	}
	cmd.Flags().Uint8VarP(&qos, "qos", "q", 0, "requested QoS (default from mqtt.qos)")
	return cmd
}

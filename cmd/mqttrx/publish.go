package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mqttrx/internal/pubsub"
)

var errInvalidJSON = errors.New("payload is not valid JSON")

func newPublishCommand(a *app) *cobra.Command {
	var qos uint8
	var retain bool

	cmd := &cobra.Command{
		Use:   "publish <topic> <json>",
		Short: "Publish one JSON payload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			topic, payload := args[0], json.RawMessage(args[1])

			if !json.Valid(payload) {
				return fmt.Errorf("%w: %s", errInvalidJSON, args[1])
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

			opts := []pubsub.CallOption{pubsub.WithRetain(retain)}
			if cmd.Flags().Changed("qos") {
				opts = append(opts, pubsub.WithQoS(qos))
			}
			if err := pubsub.PublishTo(ctx, client, topic, payload, opts...); err != nil {
				return err
			}
			a.printf("published: %s", topic)
			return nil
		},
	}
	cmd.Flags().Uint8VarP(&qos, "qos", "q", 0, "QoS level (default from mqtt.qos)")
	cmd.Flags().BoolVarP(&retain, "retain", "r", false, "set the retain flag")
	return cmd
}

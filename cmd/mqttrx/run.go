package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/nerrad567/mqttrx/internal/pubsub"
	"github.com/nerrad567/mqttrx/internal/subscription"
)

// demoPayload is the message exchanged by the run command.
type demoPayload struct {
	Bar string `json:"bar"`
}

// itemTimeout bounds each wait for a grant or an echoed message.
const itemTimeout = 5 * time.Second

func newRunCommand(a *app) *cobra.Command {
	var topic string
	var messages int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect, subscribe, publish and disconnect, printing each step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if topic == "" {
				topic = a.cfg.Demo.Topic
			}
			if messages <= 0 {
				messages = a.cfg.Demo.Messages
			}
			return a.runDemo(cmd.Context(), topic, messages)
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "topic to use (default from demo.topic)")
	cmd.Flags().IntVarP(&messages, "messages", "n", 0, "number of messages to publish (default from demo.messages)")
	return cmd
}

// runDemo walks through the client lifecycle: every status change, the grant
// and each echoed message are printed as they happen.
func (a *app) runDemo(ctx context.Context, topic string, messages int) (err error) {
	client, err := a.newClient(ctx)
	if err != nil {
		return err
	}

	status := client.Status()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for s := range status.C() {
			a.printf("status: %s", s)
		}
	}()

	defer func() {
		err = multierr.Append(err, client.End())
		// End completes the status stream.
		wg.Wait()
		a.printf("ended")
	}()

	if err := a.connect(ctx, client); err != nil {
		return err
	}

	stream, err := pubsub.SubscribeTo[demoPayload](client, topic)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	defer stream.Cancel()

	item, err := nextItem(ctx, stream)
	if err != nil {
		return err
	}
	if item.Kind != subscription.ItemGrant {
		return fmt.Errorf("subscribing to %s: expected a grant, got item kind %d", topic, item.Kind)
	}
	a.printf("subscribed: %s (qos %d)", item.Grant.Topic, item.Grant.QoS)

	interval := a.cfg.GetDemoInterval()
	for i := range messages {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}

		if err := pubsub.PublishTo(ctx, client, topic, demoPayload{Bar: "foo"}); err != nil {
			return fmt.Errorf("publishing to %s: %w", topic, err)
		}
		a.printf("published: %s {bar:foo}", topic)

		if err := a.awaitMessage(ctx, stream); err != nil {
			return err
		}
	}

	if err := client.UnsubscribeFrom(ctx, topic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", topic, err)
	}
	a.printf("unsubscribed: %s", topic)
	return nil
}

// awaitMessage prints items until a message arrives. Decode errors are
// printed and skipped.
func (a *app) awaitMessage(ctx context.Context, stream *subscription.Stream[demoPayload]) error {
	for {
		item, err := nextItem(ctx, stream)
		if err != nil {
			return err
		}
		switch item.Kind {
		case subscription.ItemMessage:
			a.printf("received: %s {bar:%s}", item.Message.Topic, item.Message.Payload.Bar)
			return nil
		case subscription.ItemError:
			a.printf("skipped: %v", item.Err)
		}
	}
}

var errStreamEnded = errors.New("subscription ended")

func nextItem[T any](ctx context.Context, stream *subscription.Stream[T]) (subscription.Item[T], error) {
	ctx, cancel := context.WithTimeout(ctx, itemTimeout)
	defer cancel()

	select {
	case item, ok := <-stream.Items():
		if !ok {
			if err := stream.Err(); err != nil {
				return item, err
			}
			return item, errStreamEnded
		}
		return item, nil
	case <-ctx.Done():
		return subscription.Item[T]{}, fmt.Errorf("waiting on %s: %w", stream.Topic(), ctx.Err())
	}
}

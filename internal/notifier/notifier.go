// Package notifier consumes confirmed-order events for the admin console.
// It is a pure consumer: nothing here can affect the payment pipeline.
package notifier

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/pachory/backend/internal/entity"
)

// AdminNotifier logs confirmed orders as they arrive. It stands in for the
// real-time fan-out to admin sessions.
type AdminNotifier struct {
	subscriber message.Subscriber
}

func New(subscriber message.Subscriber) *AdminNotifier {
	return &AdminNotifier{subscriber: subscriber}
}

// Run blocks consuming the topic until the context is cancelled.
func (n *AdminNotifier) Run(ctx context.Context, topic string) error {
	messages, err := n.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	for msg := range messages {
		var event entity.OrderConfirmed
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			slog.Error("Failed to decode OrderConfirmed", "err", err)
			msg.Ack()
			continue
		}

		slog.Info("🔔 New order confirmed",
			"order_id", event.OrderID,
			"user_id", event.UserID,
			"total", event.TotalAmount.StringFixed(2),
			"items", len(event.Items),
		)
		msg.Ack()
	}
	return nil
}

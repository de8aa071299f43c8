package messaging

import (
	"context"

	"github.com/pachory/backend/internal/entity"
)

// Publisher fans events out to interested consumers. Delivery is best-effort:
// callers log failures and move on, a publish can never roll back a payment.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key string, event entity.Event) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishEvent(ctx context.Context, topic string, key string, event entity.Event) error {
	return nil
}

package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is implemented by everything published to the notification channel.
type Event interface {
	EventType() string
}

// OrderConfirmed is emitted after a payment-verified order commits. It is a
// best-effort admin notification, published outside the transaction; losing
// one never affects the order itself.
type OrderConfirmed struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	Items       []OrderItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}

func (e OrderConfirmed) EventType() string { return "OrderConfirmed" }

// OrderRefunded is emitted when an approved refund request drives an order to
// refunded.
type OrderRefunded struct {
	OrderID    string    `json:"order_id"`
	RefundID   string    `json:"refund_id"`
	RefundedAt time.Time `json:"refunded_at"`
}

func (e OrderRefunded) EventType() string { return "OrderRefunded" }

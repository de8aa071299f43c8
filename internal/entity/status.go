package entity

// OrderStatus tracks an order through fulfillment.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusInProcess  OrderStatus = "inProcess"
	OrderStatusInShipping OrderStatus = "inShipping"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusRejected   OrderStatus = "rejected"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// PaymentStatus tracks the money side of an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// RefundStatus tracks a refund request.
type RefundStatus string

const (
	RefundStatusPending  RefundStatus = "pending"
	RefundStatusApproved RefundStatus = "approved"
	RefundStatusRejected RefundStatus = "rejected"
)

// fulfillmentTransitions are the admin-driven order moves. pending→confirmed
// happens only through payment verification and →refunded only through refund
// approval, so neither appears here.
var fulfillmentTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusRejected, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusInProcess},
	OrderStatusInProcess:  {OrderStatusInShipping},
	OrderStatusInShipping: {OrderStatusDelivered},
}

// CanFulfillmentTransition reports whether an admin may move an order from one
// status to another. An order that never passed the confirmed gate can only be
// rejected or cancelled, never pushed toward delivered.
func CanFulfillmentTransition(from, to OrderStatus) bool {
	for _, allowed := range fulfillmentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidOrderStatus reports whether s is one of the known order statuses.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusInProcess,
		OrderStatusInShipping, OrderStatusDelivered, OrderStatusRejected,
		OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// Refundable reports whether an order in this status may be refunded once an
// admin approves the request. Only paid orders qualify, and the paid check is
// done separately against PaymentStatus.
func (s OrderStatus) Refundable() bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusInProcess, OrderStatusInShipping, OrderStatusDelivered:
		return true
	}
	return false
}

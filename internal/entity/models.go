package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog entry. Stock is written only when an order is
// confirmed; admin edits never touch it.
type Product struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	SalePrice   decimal.Decimal `json:"sale_price"` // zero means no sale
	ImageURL    string          `json:"image_url"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
}

// EffectivePrice is the price a buyer actually pays: the sale price when one
// is set, the list price otherwise.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice.IsPositive() {
		return p.SalePrice
	}
	return p.Price
}

// CartLine is one user's pending intent to buy N units of a product.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Cart holds a user's pending lines. It lives in Redis and stays mutable right
// up until checkout; orders copy it into an immutable snapshot.
type Cart struct {
	UserID string     `json:"user_id"`
	Lines  []CartLine `json:"lines"`
}

// Address is the shipping address captured into an order at creation time.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	Pincode string `json:"pincode"`
	Phone   string `json:"phone"`
	Notes   string `json:"notes,omitempty"`
}

// OrderItem is a line item snapshot inside an order. Title and unit price are
// captured at order creation, so later catalog edits never change history.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	ImageURL  string          `json:"image_url"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// Subtotal is unit price times quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is the durable record of a checkout attempt. It owns the "is this
// purchase real" truth: stock decrement and cart clearing are side effects of
// the order reaching paid, never independent writes.
type Order struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	CartID            string          `json:"cart_id"`
	Items             []OrderItem     `json:"items"`
	Address           Address         `json:"address"`
	OrderStatus       OrderStatus     `json:"order_status"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	ProviderOrderID   string          `json:"provider_order_id"`
	ProviderPaymentID string          `json:"provider_payment_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ItemsTotal sums the item subtotals.
func (o Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// RefundRequest is a user-initiated request to reverse a paid order.
type RefundRequest struct {
	ID            string       `json:"id"`
	OrderID       string       `json:"order_id"`
	UserID        string       `json:"user_id"`
	Reason        string       `json:"reason"`
	EvidenceImage string       `json:"evidence_image,omitempty"`
	Status        RefundStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// MinorUnits converts a decimal amount to integer minor units (paise). The
// payment gateway only ever sees integers; decimals stay inside the service.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

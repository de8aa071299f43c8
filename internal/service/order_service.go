package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pachory/backend/internal/entity"
	"github.com/pachory/backend/internal/messaging"
	"github.com/pachory/backend/internal/payment"
	"github.com/pachory/backend/internal/repository"
)

// Topics for the notification side-channel.
const (
	TopicOrderConfirmed = "orders.confirmed"
	TopicOrderRefunded  = "orders.refunded"
)

// totalTolerance is the currency-rounding slack allowed between the client's
// total and the server-side recomputation.
var totalTolerance = decimal.New(1, -2) // 0.01

// OrderService runs the order pipeline: intent creation, signature-verified
// confirmation, and the order ledger queries around them.
type OrderService struct {
	products  repository.ProductRepository
	orders    repository.OrderRepository
	carts     repository.CartRepository
	gateway   payment.Gateway
	publisher messaging.Publisher
	currency  string
}

func NewOrderService(
	products repository.ProductRepository,
	orders repository.OrderRepository,
	carts repository.CartRepository,
	gateway payment.Gateway,
	publisher messaging.Publisher,
	currency string,
) *OrderService {
	return &OrderService{
		products:  products,
		orders:    orders,
		carts:     carts,
		gateway:   gateway,
		publisher: publisher,
		currency:  currency,
	}
}

// CreateOrderInput is a checkout request: which lines, where to ship, and the
// total the client showed the buyer.
type CreateOrderInput struct {
	UserID      string
	CartID      string
	Lines       []entity.CartLine
	Address     entity.Address
	TotalAmount decimal.Decimal
}

// CreateOrderResult carries everything the client needs to open the provider
// payment UI.
type CreateOrderResult struct {
	OrderID  string `json:"order_id"`
	IntentID string `json:"intent_id"`
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
	KeyID    string `json:"key_id"`
}

// CreateOrder validates the cart, mints a provider payment intent, and writes
// a pending ledger row snapshotting the lines at today's catalog prices. The
// stock check here is advisory only; the authoritative one happens at
// confirmation.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if in.UserID == "" || len(in.Lines) == 0 {
		return nil, fmt.Errorf("%w: user and at least one line are required", ErrValidation)
	}
	for _, line := range in.Lines {
		if line.ProductID == "" || line.Quantity < 1 {
			return nil, fmt.Errorf("%w: every line needs a product and a positive quantity", ErrValidation)
		}
	}

	// Snapshot from the catalog, not from the request body: the client's
	// titles and prices are display data, never pricing authority.
	items := make([]entity.OrderItem, 0, len(in.Lines))
	total := decimal.Zero
	for _, line := range in.Lines {
		product, err := s.products.FindByID(ctx, line.ProductID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, repository.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		if product.Stock < line.Quantity {
			return nil, &repository.InsufficientStockError{
				ProductID: product.ID,
				Requested: line.Quantity,
				Available: product.Stock,
			}
		}
		item := entity.OrderItem{
			ProductID: product.ID,
			Title:     product.Title,
			ImageURL:  product.ImageURL,
			UnitPrice: product.EffectivePrice(),
			Quantity:  line.Quantity,
		}
		items = append(items, item)
		total = total.Add(item.Subtotal())
	}

	if total.Sub(in.TotalAmount).Abs().GreaterThan(totalTolerance) {
		return nil, fmt.Errorf("%w: total %s does not match computed %s",
			ErrValidation, in.TotalAmount.StringFixed(2), total.StringFixed(2))
	}

	orderID := uuid.New().String()

	// Provider first, ledger second: a gateway failure leaves no local row,
	// and an abandoned provider intent is harmless.
	intent, err := s.gateway.CreateIntent(ctx, entity.MinorUnits(total), s.currency, orderID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	order := &entity.Order{
		ID:              orderID,
		UserID:          in.UserID,
		CartID:          in.CartID,
		Items:           items,
		Address:         in.Address,
		OrderStatus:     entity.OrderStatusPending,
		PaymentStatus:   entity.PaymentStatusPending,
		TotalAmount:     total,
		ProviderOrderID: intent.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	slog.Info("Order created", "order_id", orderID, "user_id", in.UserID, "total", total.StringFixed(2), "intent_id", intent.ID)

	return &CreateOrderResult{
		OrderID:  orderID,
		IntentID: intent.ID,
		Amount:   intent.Amount,
		Currency: intent.Currency,
		KeyID:    s.gateway.KeyID(),
	}, nil
}

// ConfirmPaymentInput is the client-relayed provider callback.
type ConfirmPaymentInput struct {
	OrderID   string
	IntentID  string
	PaymentID string
	Signature string
}

// ConfirmPayment is the trust boundary of the whole pipeline. The steps are
// strictly ordered: signature first (short-circuits everything on mismatch),
// then lookup and idempotency, then the atomic commit that re-validates stock,
// decrements it, and flips the order to paid — all or nothing. Cart clearing
// and the admin notification run after commit and can never fail the payment.
func (s *OrderService) ConfirmPayment(ctx context.Context, in ConfirmPaymentInput) (*entity.Order, error) {
	if in.OrderID == "" || in.IntentID == "" || in.PaymentID == "" || in.Signature == "" {
		return nil, fmt.Errorf("%w: order, intent, payment and signature are required", ErrValidation)
	}

	if err := s.gateway.VerifySignature(in.IntentID, in.PaymentID, in.Signature); err != nil {
		slog.Warn("Payment signature rejected", "order_id", in.OrderID, "intent_id", in.IntentID)
		return nil, err
	}

	order, err := s.orders.FindByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.ProviderOrderID != in.IntentID {
		return nil, fmt.Errorf("%w: callback does not reference this order's payment intent", ErrStateConflict)
	}
	if order.PaymentStatus != entity.PaymentStatusPending {
		return s.resolveRepeatedCallback(order, in)
	}

	err = s.orders.MarkPaid(ctx, order.ID, in.PaymentID)
	if err != nil {
		var stockErr *repository.InsufficientStockError
		if errors.As(err, &stockErr) {
			slog.Warn("Confirmation rejected, stock exhausted since checkout",
				"order_id", order.ID, "product_id", stockErr.ProductID,
				"requested", stockErr.Requested, "available", stockErr.Available)
			return nil, err
		}
		if errors.Is(err, repository.ErrAlreadyPaid) {
			// Lost a race against a concurrent delivery of the same
			// callback; re-read and answer idempotently.
			order, err = s.orders.FindByID(ctx, order.ID)
			if err != nil {
				return nil, err
			}
			return s.resolveRepeatedCallback(order, in)
		}
		return nil, err
	}

	order, err = s.orders.FindByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	slog.Info("Order confirmed", "order_id", order.ID, "payment_id", in.PaymentID, "total", order.TotalAmount.StringFixed(2))

	// Post-commit follow-ups. Both are idempotent or disposable; neither may
	// undo the payment.
	if err := s.carts.Clear(ctx, order.UserID); err != nil {
		slog.Error("Failed to clear cart after confirmation", "order_id", order.ID, "user_id", order.UserID, "err", err)
	}
	s.notifyConfirmed(ctx, order)

	return order, nil
}

// resolveRepeatedCallback decides what a callback for a non-pending order
// means: the same payment again is an idempotent success, anything else is a
// conflict.
func (s *OrderService) resolveRepeatedCallback(order *entity.Order, in ConfirmPaymentInput) (*entity.Order, error) {
	if order.PaymentStatus == entity.PaymentStatusPaid && order.ProviderPaymentID == in.PaymentID {
		slog.Info("Repeated confirmation for paid order, returning existing result", "order_id", order.ID)
		return order, nil
	}
	return nil, fmt.Errorf("%w: order %s is %s with a different payment",
		ErrStateConflict, order.ID, order.PaymentStatus)
}

func (s *OrderService) notifyConfirmed(ctx context.Context, order *entity.Order) {
	event := entity.OrderConfirmed{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Items:       order.Items,
		TotalAmount: order.TotalAmount,
		ConfirmedAt: order.UpdatedAt,
	}
	if err := s.publisher.PublishEvent(ctx, TopicOrderConfirmed, order.ID, event); err != nil {
		slog.Error("Failed to publish OrderConfirmed", "order_id", order.ID, "err", err)
	}
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*entity.Order, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	return s.orders.FindByID(ctx, orderID)
}

// ListUserOrders returns a user's orders, newest first.
func (s *OrderService) ListUserOrders(ctx context.Context, userID string) ([]entity.Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	return s.orders.FindByUser(ctx, userID)
}

func (s *OrderService) ListAllOrders(ctx context.Context) ([]entity.Order, error) {
	return s.orders.FindAll(ctx)
}

// ListStalePending returns pending orders older than the given age — checkouts
// whose provider callback never arrived. Surfaced to admins; there is no
// automatic expiry.
func (s *OrderService) ListStalePending(ctx context.Context, olderThan time.Duration) ([]entity.Order, error) {
	return s.orders.FindStalePending(ctx, time.Now().Add(-olderThan))
}

// UpdateOrderStatus applies an admin-driven fulfillment transition. The
// confirmed gate cannot be skipped and the payment-owned transitions
// (pending→confirmed, →refunded) are not reachable from here.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, status entity.OrderStatus) (*entity.Order, error) {
	if !entity.ValidOrderStatus(status) {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrValidation, status)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !entity.CanFulfillmentTransition(order.OrderStatus, status) {
		return nil, fmt.Errorf("%w: cannot move order from %s to %s",
			ErrStateConflict, order.OrderStatus, status)
	}

	if err := s.orders.UpdateStatus(ctx, orderID, status); err != nil {
		return nil, err
	}
	return s.orders.FindByID(ctx, orderID)
}

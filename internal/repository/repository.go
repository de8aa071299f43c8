package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pachory/backend/internal/entity"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyPaid is returned by MarkPaid when the order is no longer
	// pending payment. The caller decides whether that is an idempotent
	// success or a conflict.
	ErrAlreadyPaid = errors.New("order already paid")
	// ErrConflict is returned when a guarded update finds the record in a
	// state that forbids the write.
	ErrConflict = errors.New("conflicting state")
	// ErrDuplicate is returned when a uniqueness rule is violated, e.g. a
	// second active refund request for the same order.
	ErrDuplicate = errors.New("duplicate record")
)

// InsufficientStockError names the first product whose stock could not cover
// the requested quantity.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %d, available %d)",
		e.ProductID, e.Requested, e.Available)
}

// ProductRepository handles persistence for products.
type ProductRepository interface {
	Create(ctx context.Context, p *entity.Product) error
	FindByID(ctx context.Context, id string) (*entity.Product, error)
	FindAll(ctx context.Context) ([]entity.Product, error)
	// Update edits catalog fields. It never writes stock; only confirmed
	// orders decrement it.
	Update(ctx context.Context, p *entity.Product) error
	Delete(ctx context.Context, id string) error
	// Seed inserts initial products if none exist.
	Seed(ctx context.Context, products []entity.Product) error
}

// OrderRepository handles persistence for the order ledger.
type OrderRepository interface {
	Create(ctx context.Context, o *entity.Order) error
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	FindByUser(ctx context.Context, userID string) ([]entity.Order, error)
	FindAll(ctx context.Context) ([]entity.Order, error)
	// FindStalePending returns pending orders created before the cutoff,
	// i.e. checkouts whose payment callback never arrived.
	FindStalePending(ctx context.Context, cutoff time.Time) ([]entity.Order, error)
	// MarkPaid atomically decrements stock for every order item and flips
	// the order to paid/confirmed in one transaction. It fails with
	// *InsufficientStockError (nothing written) when any decrement would go
	// negative, and with ErrAlreadyPaid when the order is not pending.
	MarkPaid(ctx context.Context, orderID, providerPaymentID string) error
	UpdateStatus(ctx context.Context, orderID string, status entity.OrderStatus) error
	// MarkRefunded flips a paid order to refunded; ErrConflict if not paid.
	MarkRefunded(ctx context.Context, orderID string) error
}

// CartRepository handles the volatile cart store.
type CartRepository interface {
	Get(ctx context.Context, userID string) (*entity.Cart, error)
	SetLine(ctx context.Context, userID, productID string, quantity int) error
	RemoveLine(ctx context.Context, userID, productID string) error
	// Clear deletes every line of the user's cart. It is idempotent so the
	// confirmation flow can re-run it safely.
	Clear(ctx context.Context, userID string) error
}

// RefundRepository handles persistence for refund requests.
type RefundRepository interface {
	// Create fails with ErrDuplicate when an active (pending or approved)
	// request already exists for the order.
	Create(ctx context.Context, r *entity.RefundRequest) error
	FindByID(ctx context.Context, id string) (*entity.RefundRequest, error)
	FindAll(ctx context.Context) ([]entity.RefundRequest, error)
	UpdateStatus(ctx context.Context, id string, status entity.RefundStatus) error
}

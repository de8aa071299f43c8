package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pachory/backend/internal/entity"
	"github.com/pachory/backend/internal/repository"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates an OrderRepository backed by Postgres.
func NewOrderRepository(db *sql.DB) repository.OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, o *entity.Order) error {
	address, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("failed to marshal address: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, cart_id, address, order_status, payment_status, total_amount, provider_order_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		o.ID, o.UserID, o.CartID, address, o.OrderStatus, o.PaymentStatus, o.TotalAmount, o.ProviderOrderID, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range o.Items {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO order_items (order_id, product_id, title, image_url, unit_price, quantity) VALUES ($1, $2, $3, $4, $5, $6)",
			o.ID, item.ProductID, item.Title, item.ImageURL, item.UnitPrice, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const orderColumns = `id, user_id, cart_id, address, order_status, payment_status, total_amount, provider_order_id, provider_payment_id, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*entity.Order, error) {
	var o entity.Order
	var address []byte
	err := row.Scan(&o.ID, &o.UserID, &o.CartID, &address, &o.OrderStatus, &o.PaymentStatus,
		&o.TotalAmount, &o.ProviderOrderID, &o.ProviderPaymentID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(address, &o.Address); err != nil {
		return nil, fmt.Errorf("failed to unmarshal address: %w", err)
	}
	return &o, nil
}

func (r *orderRepository) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepository) FindByUser(ctx context.Context, userID string) ([]entity.Order, error) {
	return r.queryOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
}

func (r *orderRepository) FindAll(ctx context.Context) ([]entity.Order, error) {
	return r.queryOrders(ctx, "SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC")
}

func (r *orderRepository) FindStalePending(ctx context.Context, cutoff time.Time) ([]entity.Order, error) {
	return r.queryOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE payment_status = 'pending' AND created_at < $1 ORDER BY created_at",
		cutoff)
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]entity.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []entity.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if err := r.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) loadItems(ctx context.Context, o *entity.Order) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT product_id, title, image_url, unit_price, quantity FROM order_items WHERE order_id = $1 ORDER BY id",
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item entity.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Title, &item.ImageURL, &item.UnitPrice, &item.Quantity); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	return rows.Err()
}

// MarkPaid is the commit point of the payment pipeline. Everything happens in
// one transaction: the order row is locked to serialize racing confirmations,
// each product is decremented with a stock >= quantity guard (the
// authoritative availability check), and the order flips to paid/confirmed.
// Any failed guard rolls the whole thing back, leaving the order pending and
// every stock count untouched.
func (r *orderRepository) MarkPaid(ctx context.Context, orderID, providerPaymentID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var paymentStatus entity.PaymentStatus
	err = tx.QueryRowContext(ctx,
		"SELECT payment_status FROM orders WHERE id = $1 FOR UPDATE", orderID,
	).Scan(&paymentStatus)
	if err == sql.ErrNoRows {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock order: %w", err)
	}
	if paymentStatus != entity.PaymentStatusPending {
		return repository.ErrAlreadyPaid
	}

	itemRows, err := tx.QueryContext(ctx,
		"SELECT product_id, quantity FROM order_items WHERE order_id = $1", orderID)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	type line struct {
		productID string
		quantity  int
	}
	var lines []line
	for itemRows.Next() {
		var l line
		if err := itemRows.Scan(&l.productID, &l.quantity); err != nil {
			itemRows.Close()
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		lines = append(lines, l)
	}
	itemRows.Close()
	if err := itemRows.Err(); err != nil {
		return err
	}

	for _, l := range lines {
		res, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1",
			l.quantity, l.productID,
		)
		if err != nil {
			return fmt.Errorf("failed to update product stock: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check stock update: %w", err)
		}
		if affected == 0 {
			available := 0
			// Product may have been deleted; a missing row reads as zero
			// available, which is what the caller reports either way.
			_ = tx.QueryRowContext(ctx,
				"SELECT stock FROM products WHERE id = $1", l.productID,
			).Scan(&available)
			return &repository.InsufficientStockError{
				ProductID: l.productID,
				Requested: l.quantity,
				Available: available,
			}
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET payment_status = $2, order_status = $3, provider_payment_id = $4, updated_at = NOW() WHERE id = $1`,
		orderID, entity.PaymentStatusPaid, entity.OrderStatusConfirmed, providerPaymentID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, orderID string, status entity.OrderStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET order_status = $2, updated_at = NOW() WHERE id = $1",
		orderID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *orderRepository) MarkRefunded(ctx context.Context, orderID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET order_status = $2, payment_status = $3, updated_at = NOW()
		 WHERE id = $1 AND payment_status = $4`,
		orderID, entity.OrderStatusRefunded, entity.PaymentStatusRefunded, entity.PaymentStatusPaid,
	)
	if err != nil {
		return fmt.Errorf("failed to mark order refunded: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check refund update: %w", err)
	}
	if affected == 0 {
		return repository.ErrConflict
	}
	return nil
}

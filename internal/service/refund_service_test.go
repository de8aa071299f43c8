package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pachory/backend/internal/entity"
	"github.com/pachory/backend/internal/repository"
)

type refundFixture struct {
	svc       *RefundService
	store     *memStore
	refunds   *fakeRefundRepo
	publisher *fakePublisher
}

func newRefundFixture(t *testing.T) *refundFixture {
	t.Helper()
	store := newMemStore()
	refunds := newFakeRefundRepo()
	publisher := &fakePublisher{}
	return &refundFixture{
		svc:       NewRefundService(refunds, orderRepo{store}, publisher),
		store:     store,
		refunds:   refunds,
		publisher: publisher,
	}
}

func (f *refundFixture) seedOrder(t *testing.T, id, userID string, orderStatus entity.OrderStatus, paymentStatus entity.PaymentStatus) {
	t.Helper()
	now := time.Now()
	err := orderRepo{f.store}.Create(context.Background(), &entity.Order{
		ID:            id,
		UserID:        userID,
		Items:         []entity.OrderItem{{ProductID: "p-1", Title: "Widget", UnitPrice: decimal.RequireFromString("49.99"), Quantity: 1}},
		OrderStatus:   orderStatus,
		PaymentStatus: paymentStatus,
		TotalAmount:   decimal.RequireFromString("49.99"),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	require.NoError(t, err)
}

func TestCreateRefund(t *testing.T) {
	f := newRefundFixture(t)
	f.seedOrder(t, "order-1", "user-1", entity.OrderStatusDelivered, entity.PaymentStatusPaid)

	req, err := f.svc.Create(context.Background(), CreateRefundInput{
		OrderID: "order-1",
		UserID:  "user-1",
		Reason:  "item arrived damaged",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, entity.RefundStatusPending, req.Status)
}

func TestCreateRefundRejectsUnpaidOrder(t *testing.T) {
	f := newRefundFixture(t)
	f.seedOrder(t, "order-1", "user-1", entity.OrderStatusPending, entity.PaymentStatusPending)

	_, err := f.svc.Create(context.Background(), CreateRefundInput{
		OrderID: "order-1", UserID: "user-1", Reason: "changed my mind",
	})
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestCreateRefundRejectsForeignOrder(t *testing.T) {
	f := newRefundFixture(t)
	f.seedOrder(t, "order-1", "user-1", entity.OrderStatusConfirmed, entity.PaymentStatusPaid)

	_, err := f.svc.Create(context.Background(), CreateRefundInput{
		OrderID: "order-1", UserID: "user-2", Reason: "not mine",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateRefundDuplicate(t *testing.T) {
	f := newRefundFixture(t)
	f.seedOrder(t, "order-1", "user-1", entity.OrderStatusConfirmed, entity.PaymentStatusPaid)
	ctx := context.Background()

	in := CreateRefundInput{OrderID: "order-1", UserID: "user-1", Reason: "damaged"}
	_, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrDuplicateRefund)
}

// A rejected request does not block a later one for the same order.
func TestCreateRefundAfterRejection(t *testing.T) {
	f := newRefundFixture(t)
	f.seedOrder(t, "order-1", "user-1", entity.OrderStatusConfirmed, entity.PaymentStatusPaid)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, CreateRefundInput{OrderID: "order-1", UserID: "user-1", Reason: "damaged"})
	require.NoError(t, err)
	_, err = f.svc.Resolve(ctx, first.ID, entity.RefundStatusRejected)
	require.NoError(t, err)

	second, err := f.svc.Create(ctx, CreateRefundInput{OrderID: "order-1", UserID: "user-1", Reason: "still damaged"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestResolveApprove(t *testing.T) {
	f := newRefundFixture(t)
	f.seedOrder(t, "order-1", "user-1", entity.OrderStatusDelivered, entity.PaymentStatusPaid)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, CreateRefundInput{OrderID: "order-1", UserID: "user-1", Reason: "damaged"})
	require.NoError(t, err)

	resolved, err := f.svc.Resolve(ctx, req.ID, entity.RefundStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, entity.RefundStatusApproved, resolved.Status)

	order, err := orderRepo{f.store}.FindByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusRefunded, order.PaymentStatus)
	assert.Equal(t, entity.OrderStatusRefunded, order.OrderStatus)
	assert.Equal(t, 1, f.publisher.count(), "approval publishes OrderRefunded")
}

func TestResolveRejectLeavesOrderUntouched(t *testing.T) {
	f := newRefundFixture(t)
	f.seedOrder(t, "order-1", "user-1", entity.OrderStatusDelivered, entity.PaymentStatusPaid)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, CreateRefundInput{OrderID: "order-1", UserID: "user-1", Reason: "damaged"})
	require.NoError(t, err)

	resolved, err := f.svc.Resolve(ctx, req.ID, entity.RefundStatusRejected)
	require.NoError(t, err)
	assert.Equal(t, entity.RefundStatusRejected, resolved.Status)

	order, err := orderRepo{f.store}.FindByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, entity.OrderStatusDelivered, order.OrderStatus)
	assert.Zero(t, f.publisher.count())
}

func TestResolveOnlyOnce(t *testing.T) {
	f := newRefundFixture(t)
	f.seedOrder(t, "order-1", "user-1", entity.OrderStatusDelivered, entity.PaymentStatusPaid)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, CreateRefundInput{OrderID: "order-1", UserID: "user-1", Reason: "damaged"})
	require.NoError(t, err)

	_, err = f.svc.Resolve(ctx, req.ID, entity.RefundStatusApproved)
	require.NoError(t, err)

	_, err = f.svc.Resolve(ctx, req.ID, entity.RefundStatusApproved)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestResolveValidatesStatus(t *testing.T) {
	f := newRefundFixture(t)

	_, err := f.svc.Resolve(context.Background(), "refund-1", entity.RefundStatusPending)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Resolve(context.Background(), "no-such-refund", entity.RefundStatusApproved)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// A crash between MarkRefunded and the request update leaves the order
// refunded with a pending request; retrying the approval must finish the job.
func TestResolveApproveIsReRunnable(t *testing.T) {
	f := newRefundFixture(t)
	f.seedOrder(t, "order-1", "user-1", entity.OrderStatusDelivered, entity.PaymentStatusPaid)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, CreateRefundInput{OrderID: "order-1", UserID: "user-1", Reason: "damaged"})
	require.NoError(t, err)

	// Simulate the half-applied state.
	require.NoError(t, orderRepo{f.store}.MarkRefunded(ctx, "order-1"))

	resolved, err := f.svc.Resolve(ctx, req.ID, entity.RefundStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, entity.RefundStatusApproved, resolved.Status)
}

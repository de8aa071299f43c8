package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pachory/backend/internal/entity"
	"github.com/pachory/backend/internal/messaging"
	"github.com/pachory/backend/internal/repository"
)

// RefundService handles refund requests and their admin resolution.
type RefundService struct {
	refunds   repository.RefundRepository
	orders    repository.OrderRepository
	publisher messaging.Publisher
}

func NewRefundService(refunds repository.RefundRepository, orders repository.OrderRepository, publisher messaging.Publisher) *RefundService {
	return &RefundService{refunds: refunds, orders: orders, publisher: publisher}
}

// CreateRefundInput is a user's request to reverse a paid order.
type CreateRefundInput struct {
	OrderID       string
	UserID        string
	Reason        string
	EvidenceImage string
}

// Create accepts a refund request for a paid, refundable order. A rejected
// earlier request does not block a new one; a pending or approved one does.
func (s *RefundService) Create(ctx context.Context, in CreateRefundInput) (*entity.RefundRequest, error) {
	if in.OrderID == "" || in.UserID == "" || in.Reason == "" {
		return nil, fmt.Errorf("%w: order, user and reason are required", ErrValidation)
	}

	order, err := s.orders.FindByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != in.UserID {
		return nil, fmt.Errorf("%w: order does not belong to this user", ErrValidation)
	}
	if order.PaymentStatus != entity.PaymentStatusPaid {
		return nil, fmt.Errorf("%w: only paid orders are refundable", ErrStateConflict)
	}
	if !order.OrderStatus.Refundable() {
		return nil, fmt.Errorf("%w: order in status %s is not refundable", ErrStateConflict, order.OrderStatus)
	}

	now := time.Now()
	req := &entity.RefundRequest{
		ID:            uuid.New().String(),
		OrderID:       in.OrderID,
		UserID:        in.UserID,
		Reason:        in.Reason,
		EvidenceImage: in.EvidenceImage,
		Status:        entity.RefundStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.refunds.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateRefund
		}
		return nil, err
	}

	slog.Info("Refund request created", "refund_id", req.ID, "order_id", in.OrderID)
	return req, nil
}

func (s *RefundService) Get(ctx context.Context, id string) (*entity.RefundRequest, error) {
	return s.refunds.FindByID(ctx, id)
}

func (s *RefundService) List(ctx context.Context) ([]entity.RefundRequest, error) {
	return s.refunds.FindAll(ctx)
}

// Resolve applies the admin decision. Approval drives the order to refunded
// before marking the request approved, so a crash in between leaves a state
// an admin retry can finish: the second MarkRefunded finds the order already
// refunded and the resolution proceeds.
func (s *RefundService) Resolve(ctx context.Context, refundID string, status entity.RefundStatus) (*entity.RefundRequest, error) {
	if status != entity.RefundStatusApproved && status != entity.RefundStatusRejected {
		return nil, fmt.Errorf("%w: resolution must be approved or rejected", ErrValidation)
	}

	req, err := s.refunds.FindByID(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if req.Status != entity.RefundStatusPending {
		return nil, fmt.Errorf("%w: refund request already %s", ErrStateConflict, req.Status)
	}

	if status == entity.RefundStatusApproved {
		err := s.orders.MarkRefunded(ctx, req.OrderID)
		if errors.Is(err, repository.ErrConflict) {
			// Re-runnable: a previous approval attempt may have refunded
			// the order before the request row was updated.
			order, lookupErr := s.orders.FindByID(ctx, req.OrderID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if order.PaymentStatus != entity.PaymentStatusRefunded {
				return nil, fmt.Errorf("%w: order %s is no longer refundable", ErrStateConflict, req.OrderID)
			}
		} else if err != nil {
			return nil, err
		}

		event := entity.OrderRefunded{OrderID: req.OrderID, RefundID: req.ID, RefundedAt: time.Now()}
		if err := s.publisher.PublishEvent(ctx, TopicOrderRefunded, req.OrderID, event); err != nil {
			slog.Error("Failed to publish OrderRefunded", "order_id", req.OrderID, "err", err)
		}
	}

	if err := s.refunds.UpdateStatus(ctx, refundID, status); err != nil {
		return nil, err
	}

	slog.Info("Refund request resolved", "refund_id", refundID, "status", status)
	req.Status = status
	return req, nil
}

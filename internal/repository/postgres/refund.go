package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pachory/backend/internal/entity"
	"github.com/pachory/backend/internal/repository"
)

type refundRepository struct {
	db *sql.DB
}

// NewRefundRepository creates a RefundRepository backed by Postgres.
func NewRefundRepository(db *sql.DB) repository.RefundRepository {
	return &refundRepository{db: db}
}

func (r *refundRepository) Create(ctx context.Context, req *entity.RefundRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refund_requests (id, order_id, user_id, reason, evidence_image, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		req.ID, req.OrderID, req.UserID, req.Reason, req.EvidenceImage, req.Status, req.CreatedAt,
	)
	if err != nil {
		// The partial unique index on order_id enforces at most one active
		// request per order.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("failed to insert refund request: %w", err)
	}
	return nil
}

func (r *refundRepository) FindByID(ctx context.Context, id string) (*entity.RefundRequest, error) {
	var req entity.RefundRequest
	err := r.db.QueryRowContext(ctx,
		"SELECT id, order_id, user_id, reason, evidence_image, status, created_at, updated_at FROM refund_requests WHERE id = $1",
		id,
	).Scan(&req.ID, &req.OrderID, &req.UserID, &req.Reason, &req.EvidenceImage, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query refund request: %w", err)
	}
	return &req, nil
}

func (r *refundRepository) FindAll(ctx context.Context) ([]entity.RefundRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, order_id, user_id, reason, evidence_image, status, created_at, updated_at FROM refund_requests ORDER BY created_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query refund requests: %w", err)
	}
	defer rows.Close()

	var requests []entity.RefundRequest
	for rows.Next() {
		var req entity.RefundRequest
		if err := rows.Scan(&req.ID, &req.OrderID, &req.UserID, &req.Reason, &req.EvidenceImage, &req.Status, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan refund request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (r *refundRepository) UpdateStatus(ctx context.Context, id string, status entity.RefundStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE refund_requests SET status = $2, updated_at = NOW() WHERE id = $1",
		id, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update refund status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check refund update: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

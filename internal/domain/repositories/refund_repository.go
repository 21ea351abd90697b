package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
)

// RefundRepository persists and retrieves Refund rows.
type RefundRepository interface {
	Create(ctx context.Context, refund *entities.Refund) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Refund, error)
	GetByProviderRefundID(ctx context.Context, provider entities.Provider, providerRefundID string) (*entities.Refund, error)
	Update(ctx context.Context, refund *entities.Refund) error
	// ListByPayment returns refunds for a payment, newest first, paged.
	ListByPayment(ctx context.Context, paymentID uuid.UUID, limit, offset int) ([]*entities.Refund, int64, error)
	// SumActiveByPayment sums refund_amount for refunds in {pending,
	// succeeded} against paymentID, for the cumulative-cap invariant.
	SumActiveByPayment(ctx context.Context, paymentID uuid.UUID) (int64, error)
}

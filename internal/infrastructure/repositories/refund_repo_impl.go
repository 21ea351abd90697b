package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	domainrepos "github.com/liuyulin-1024/payment-gateway/internal/domain/repositories"
)

type refundRepo struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) domainrepos.RefundRepository {
	return &refundRepo{db: db}
}

func (r *refundRepo) Create(ctx context.Context, refund *entities.Refund) error {
	return GetDB(ctx, r.db).Create(refund).Error
}

func (r *refundRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.Refund, error) {
	var row entities.Refund
	err := GetDB(ctx, r.db).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.NotFound("refund not found")
		}
		return nil, err
	}
	return &row, nil
}

func (r *refundRepo) GetByProviderRefundID(ctx context.Context, provider entities.Provider, providerRefundID string) (*entities.Refund, error) {
	var row entities.Refund
	err := GetDB(ctx, r.db).
		Where("provider = ? AND provider_refund_id = ?", provider, providerRefundID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.NotFound("refund not found")
		}
		return nil, err
	}
	return &row, nil
}

func (r *refundRepo) Update(ctx context.Context, refund *entities.Refund) error {
	return GetDB(ctx, r.db).Save(refund).Error
}

func (r *refundRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID, limit, offset int) ([]*entities.Refund, int64, error) {
	var rows []*entities.Refund
	var total int64

	query := GetDB(ctx, r.db).Model(&entities.Refund{}).Where("payment_id = ?", paymentID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *refundRepo) SumActiveByPayment(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	var sum int64
	err := GetDB(ctx, r.db).Model(&entities.Refund{}).
		Where("payment_id = ? AND status IN ?", paymentID, []entities.RefundStatus{
			entities.RefundStatusPending, entities.RefundStatusSucceeded,
		}).
		Select("COALESCE(SUM(refund_amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	return sum, nil
}

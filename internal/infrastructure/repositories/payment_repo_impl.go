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

type paymentRepo struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) domainrepos.PaymentRepository {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) Create(ctx context.Context, payment *entities.Payment) error {
	return GetDB(ctx, r.db).Create(payment).Error
}

func (r *paymentRepo) GetByID(ctx context.Context, appID, id uuid.UUID) (*entities.Payment, error) {
	var row entities.Payment
	err := GetDB(ctx, r.db).Where("id = ? AND app_id = ?", id, appID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.NotFound("payment not found")
		}
		return nil, err
	}
	return &row, nil
}

func (r *paymentRepo) GetByIDAnyApp(ctx context.Context, id uuid.UUID) (*entities.Payment, error) {
	var row entities.Payment
	err := GetDB(ctx, r.db).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.NotFound("payment not found")
		}
		return nil, err
	}
	return &row, nil
}

func (r *paymentRepo) GetByMerchantOrderNo(ctx context.Context, appID uuid.UUID, merchantOrderNo string) (*entities.Payment, error) {
	var row entities.Payment
	err := GetDB(ctx, r.db).Where("app_id = ? AND merchant_order_no = ?", appID, merchantOrderNo).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.NotFound("payment not found")
		}
		return nil, err
	}
	return &row, nil
}

func (r *paymentRepo) GetByMerchantOrderNoAnyApp(ctx context.Context, merchantOrderNo string) (*entities.Payment, error) {
	var row entities.Payment
	err := GetDB(ctx, r.db).Where("merchant_order_no = ?", merchantOrderNo).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.NotFound("payment not found")
		}
		return nil, err
	}
	return &row, nil
}

func (r *paymentRepo) GetByProviderTxnID(ctx context.Context, provider entities.Provider, providerTxnID string) (*entities.Payment, error) {
	var row entities.Payment
	err := GetDB(ctx, r.db).Where("provider = ? AND provider_txn_id = ?", provider, providerTxnID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.NotFound("payment not found")
		}
		return nil, err
	}
	return &row, nil
}

func (r *paymentRepo) Update(ctx context.Context, payment *entities.Payment) error {
	result := GetDB(ctx, r.db).Save(payment)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.NotFound("payment not found")
	}
	return nil
}

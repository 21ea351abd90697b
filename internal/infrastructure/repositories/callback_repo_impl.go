package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	domainrepos "github.com/liuyulin-1024/payment-gateway/internal/domain/repositories"
)

type callbackRepo struct {
	db *gorm.DB
}

func NewCallbackRepository(db *gorm.DB) domainrepos.CallbackRepository {
	return &callbackRepo{db: db}
}

func (r *callbackRepo) Create(ctx context.Context, callback *entities.Callback) error {
	return GetDB(ctx, r.db).Create(callback).Error
}

func (r *callbackRepo) GetByProviderEventID(ctx context.Context, provider entities.Provider, providerEventID string) (*entities.Callback, error) {
	var row entities.Callback
	err := GetDB(ctx, r.db).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.NotFound("callback not found")
		}
		return nil, err
	}
	return &row, nil
}

func (r *callbackRepo) Update(ctx context.Context, callback *entities.Callback) error {
	return GetDB(ctx, r.db).Save(callback).Error
}

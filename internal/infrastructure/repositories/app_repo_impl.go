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

type appRepo struct {
	db *gorm.DB
}

func NewAppRepository(db *gorm.DB) domainrepos.AppRepository {
	return &appRepo{db: db}
}

func (r *appRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.App, error) {
	var row entities.App
	err := GetDB(ctx, r.db).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.NotFound("app not found")
		}
		return nil, err
	}
	return &row, nil
}

func (r *appRepo) GetByAPIKey(ctx context.Context, apiKey string) (*entities.App, error) {
	var row entities.App
	err := GetDB(ctx, r.db).Where("api_key = ?", apiKey).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.Unauthorized("invalid api key")
		}
		return nil, err
	}
	return &row, nil
}

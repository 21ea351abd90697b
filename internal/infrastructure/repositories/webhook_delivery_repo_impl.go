package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	domainrepos "github.com/liuyulin-1024/payment-gateway/internal/domain/repositories"
)

type webhookDeliveryRepo struct {
	db *gorm.DB
}

func NewWebhookDeliveryRepository(db *gorm.DB) domainrepos.WebhookDeliveryRepository {
	return &webhookDeliveryRepo{db: db}
}

func (r *webhookDeliveryRepo) Create(ctx context.Context, delivery *entities.WebhookDelivery) error {
	return GetDB(ctx, r.db).Create(delivery).Error
}

func (r *webhookDeliveryRepo) GetByAppAndEventID(ctx context.Context, appID uuid.UUID, eventID string) (*entities.WebhookDelivery, error) {
	var row entities.WebhookDelivery
	err := GetDB(ctx, r.db).Where("app_id = ? AND event_id = ?", appID, eventID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.NotFound("webhook delivery not found")
		}
		return nil, err
	}
	return &row, nil
}

func (r *webhookDeliveryRepo) Update(ctx context.Context, delivery *entities.WebhookDelivery) error {
	return GetDB(ctx, r.db).Save(delivery).Error
}

func (r *webhookDeliveryRepo) PollBatch(ctx context.Context, maxRetries, limit int, now time.Time) ([]*entities.WebhookDelivery, error) {
	var rows []*entities.WebhookDelivery
	err := GetDB(ctx, r.db).
		Where("status IN ? AND attempt_count < ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)",
			[]entities.DeliveryStatus{entities.DeliveryStatusPending, entities.DeliveryStatusFailed},
			maxRetries, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

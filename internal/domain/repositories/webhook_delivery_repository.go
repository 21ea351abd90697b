package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
)

// WebhookDeliveryRepository persists the outbound delivery queue.
type WebhookDeliveryRepository interface {
	Create(ctx context.Context, delivery *entities.WebhookDelivery) error
	GetByAppAndEventID(ctx context.Context, appID uuid.UUID, eventID string) (*entities.WebhookDelivery, error)
	Update(ctx context.Context, delivery *entities.WebhookDelivery) error
	// PollBatch returns up to limit rows eligible for delivery attempt,
	// ordered by created_at ascending.
	PollBatch(ctx context.Context, maxRetries, limit int, now time.Time) ([]*entities.WebhookDelivery, error)
}

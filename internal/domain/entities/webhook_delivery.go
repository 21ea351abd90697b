package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// WebhookDelivery is a single outbound-notification task owned by the
// Delivery Engine. event_id is the merchant-facing idempotency key; it
// is stable across retries of the same logical transition.
type WebhookDelivery struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	AppID          uuid.UUID      `json:"appId" gorm:"type:uuid;not null;uniqueIndex:uq_webhook_deliveries_app_event_id,priority:1"`
	PaymentID      uuid.NullUUID  `json:"paymentId,omitempty" gorm:"type:uuid"`
	EventID        string         `json:"eventId" gorm:"size:128;not null;uniqueIndex:uq_webhook_deliveries_app_event_id,priority:2"`
	EventType      string         `json:"eventType" gorm:"size:64;not null"`
	NotifyURL      string         `json:"notifyUrl" gorm:"size:2048;not null"`
	Payload        string         `json:"payload" gorm:"type:text;not null"`
	Status         DeliveryStatus `json:"status" gorm:"size:16;not null;index:ix_webhook_deliveries_poll,priority:1"`
	AttemptCount   int            `json:"attemptCount" gorm:"not null;default:0;index:ix_webhook_deliveries_poll,priority:2"`
	NextAttemptAt  *time.Time     `json:"nextAttemptAt,omitempty" gorm:"index:ix_webhook_deliveries_poll,priority:3"`
	LastAttemptAt  *time.Time     `json:"lastAttemptAt,omitempty"`
	LastHTTPStatus null.Int       `json:"lastHttpStatus,omitempty"`
	LastError      null.String    `json:"lastError,omitempty" gorm:"size:1024"`
	DeliveredAt    *time.Time     `json:"deliveredAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt" gorm:"index:ix_webhook_deliveries_poll,priority:0"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func (WebhookDelivery) TableName() string { return "webhook_deliveries" }

package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// Callback is the inbox row for a single inbound provider event. The
// (provider, provider_event_id) pair is the dedup key; once processed
// the row is immutable.
type Callback struct {
	ID              uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	Provider        Provider       `json:"provider" gorm:"size:32;not null;uniqueIndex:uq_callbacks_provider_provider_event_id,priority:1"`
	ProviderEventID string         `json:"providerEventId" gorm:"size:128;not null;uniqueIndex:uq_callbacks_provider_provider_event_id,priority:2"`
	ProviderTxnID   null.String    `json:"providerTxnId,omitempty" gorm:"size:128"`
	PaymentID       uuid.NullUUID  `json:"paymentId,omitempty" gorm:"type:uuid"`
	Payload         string         `json:"payload" gorm:"type:text;not null"`
	Status          CallbackStatus `json:"status" gorm:"size:16;not null"`
	ReceivedAt      time.Time      `json:"receivedAt"`
	ProcessedAt     *time.Time     `json:"processedAt,omitempty"`
}

func (Callback) TableName() string { return "callbacks" }

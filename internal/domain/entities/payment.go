package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// Payment is a single order submitted by a merchant App against one
// Provider. amount is in minor currency units (e.g. cents).
type Payment struct {
	ID              uuid.UUID     `json:"id" gorm:"type:uuid;primary_key"`
	AppID           uuid.UUID     `json:"appId" gorm:"type:uuid;not null;uniqueIndex:uq_payments_app_merchant_order_no,priority:1;index:ix_payments_app_created_at,priority:1"`
	MerchantOrderNo string        `json:"merchantOrderNo" gorm:"size:64;not null;uniqueIndex:uq_payments_app_merchant_order_no,priority:2"`
	Provider        Provider      `json:"provider" gorm:"size:32;not null;index:ix_payments_provider_provider_txn_id,priority:1"`
	Amount          int64         `json:"amount" gorm:"not null"`
	Currency        Currency      `json:"currency" gorm:"size:8;not null"`
	Status          PaymentStatus `json:"status" gorm:"size:16;not null;index:ix_payments_status_created_at,priority:1"`
	ProviderTxnID   null.String   `json:"providerTxnId,omitempty" gorm:"size:128;index:ix_payments_provider_provider_txn_id,priority:2"`
	NotifyURL       null.String   `json:"notifyUrl,omitempty" gorm:"size:2048"`
	PaidAt          *time.Time    `json:"paidAt,omitempty"`
	CreatedAt       time.Time     `json:"createdAt" gorm:"index:ix_payments_app_created_at,priority:2;index:ix_payments_status_created_at,priority:2"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func (Payment) TableName() string { return "payments" }

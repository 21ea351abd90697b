package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// Refund is a partial or full reversal of a succeeded Payment. Cumulative
// refund_amount across non-terminal-failed refunds never exceeds the
// parent payment's amount; this is enforced by the Refund Service under
// a row lock on the Payment, not by the DB alone.
type Refund struct {
	ID               uuid.UUID    `json:"id" gorm:"type:uuid;primary_key"`
	PaymentID        uuid.UUID    `json:"paymentId" gorm:"type:uuid;not null;index:ix_refunds_payment_id"`
	RefundAmount     int64        `json:"refundAmount" gorm:"not null"`
	Reason           null.String  `json:"reason,omitempty" gorm:"size:255"`
	Status           RefundStatus `json:"status" gorm:"size:16;not null"`
	Provider         Provider     `json:"provider" gorm:"size:32;not null"`
	ProviderRefundID null.String  `json:"providerRefundId,omitempty" gorm:"size:128;index:ix_refunds_provider_provider_refund_id"`
	RefundedAt       *time.Time   `json:"refundedAt,omitempty"`
	// ExtraData carries provider-specific refund metadata beyond the
	// canonical shape, kept for audit/debug rather than surfaced in the
	// standard API response.
	ExtraData null.String `json:"extraData,omitempty" gorm:"type:text"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func (Refund) TableName() string { return "refunds" }

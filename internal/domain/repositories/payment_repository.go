package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
)

// PaymentRepository persists and retrieves Payment rows. Implementations
// must honor the Unit of Work's transaction/lock context (see
// infrastructure/repositories.GetDB) so callers can compose multi-step
// writes under a single DB transaction and, where requested, a row lock.
type PaymentRepository interface {
	Create(ctx context.Context, payment *entities.Payment) error
	GetByID(ctx context.Context, appID, id uuid.UUID) (*entities.Payment, error)
	// GetByIDAnyApp fetches by gateway id without an app scope, for use by
	// the Callback Service which locates payments across apps.
	GetByIDAnyApp(ctx context.Context, id uuid.UUID) (*entities.Payment, error)
	GetByMerchantOrderNo(ctx context.Context, appID uuid.UUID, merchantOrderNo string) (*entities.Payment, error)
	// GetByMerchantOrderNoAnyApp is the callback-path lookup: the inbound
	// event carries a merchant_order_no but not the owning app, so this
	// scans across apps the same way GetByIDAnyApp does for gateway ids.
	GetByMerchantOrderNoAnyApp(ctx context.Context, merchantOrderNo string) (*entities.Payment, error)
	GetByProviderTxnID(ctx context.Context, provider entities.Provider, providerTxnID string) (*entities.Payment, error)
	Update(ctx context.Context, payment *entities.Payment) error
}

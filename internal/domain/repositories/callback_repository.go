package repositories

import (
	"context"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
)

// CallbackRepository persists the inbound-event inbox.
type CallbackRepository interface {
	// Create inserts a new Callback row. The caller is expected to handle
	// a unique-constraint violation on (provider, provider_event_id) by
	// falling back to GetByProviderEventID.
	Create(ctx context.Context, callback *entities.Callback) error
	GetByProviderEventID(ctx context.Context, provider entities.Provider, providerEventID string) (*entities.Callback, error)
	Update(ctx context.Context, callback *entities.Callback) error
}

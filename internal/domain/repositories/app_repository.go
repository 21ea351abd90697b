package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
)

// AppRepository looks up merchant tenants. Apps are seeded out-of-band;
// this repository is read-only at the HTTP boundary.
type AppRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.App, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*entities.App, error)
}

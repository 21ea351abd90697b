package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	"github.com/liuyulin-1024/payment-gateway/internal/interfaces/http/response"
)

const (
	// APIKeyHeader is the header every inbound payment-API request carries.
	APIKeyHeader = "X-API-Key"
	// AppKey is the gin.Context key the resolved App is stored under.
	AppKey = "app"
	// AppIDKey mirrors AppKey as a plain string, read by IdempotencyMiddleware
	// which runs before handlers unmarshal c.MustGet("app").
	AppIDKey = "app_id"
)

// AppLookup resolves an App by its API key. Satisfied by
// domain/repositories.AppRepository.
type AppLookup interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*entities.App, error)
}

// APIKeyAuth authenticates every inbound payment-API request against the
// X-API-Key header, rejecting missing keys, unknown keys, and disabled
// apps before any handler runs.
func APIKeyAuth(apps AppLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			response.Error(c, domainerrors.Unauthorized("missing X-API-Key header"))
			c.Abort()
			return
		}

		app, err := apps.GetByAPIKey(c.Request.Context(), key)
		if err != nil {
			response.Error(c, domainerrors.Unauthorized("invalid api key"))
			c.Abort()
			return
		}
		if !app.IsActive {
			response.Error(c, domainerrors.Forbidden("app is disabled"))
			c.Abort()
			return
		}

		c.Set(AppKey, app)
		c.Set(AppIDKey, app.ID.String())
		c.Next()
	}
}

// GetApp returns the authenticated App stored by APIKeyAuth.
func GetApp(c *gin.Context) (*entities.App, bool) {
	v, ok := c.Get(AppKey)
	if !ok {
		return nil, false
	}
	app, ok := v.(*entities.App)
	return app, ok
}

// MustGetApp panics if APIKeyAuth did not run; handlers mounted behind it
// can rely on the App always being present.
func MustGetApp(c *gin.Context) *entities.App {
	return c.MustGet(AppKey).(*entities.App)
}

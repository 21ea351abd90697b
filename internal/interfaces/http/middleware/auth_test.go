package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	"github.com/liuyulin-1024/payment-gateway/internal/interfaces/http/middleware"
)

type stubAppLookup struct {
	apps map[string]*entities.App
}

func (s stubAppLookup) GetByAPIKey(ctx context.Context, apiKey string) (*entities.App, error) {
	app, ok := s.apps[apiKey]
	if !ok {
		return nil, domainerrors.NotFound("app not found")
	}
	return app, nil
}

func newTestRouter(apps stubAppLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.APIKeyAuth(apps))
	r.GET("/ping", func(c *gin.Context) {
		app := middleware.MustGetApp(c)
		c.JSON(http.StatusOK, gin.H{"app_id": app.ID})
	})
	return r
}

func TestAPIKeyAuth_MissingHeaderIsUnauthorized(t *testing.T) {
	r := newTestRouter(stubAppLookup{apps: map[string]*entities.App{}})
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyAuth_UnknownKeyIsUnauthorized(t *testing.T) {
	r := newTestRouter(stubAppLookup{apps: map[string]*entities.App{}})
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(middleware.APIKeyHeader, "nope")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyAuth_DisabledAppIsForbidden(t *testing.T) {
	app := &entities.App{ID: uuid.New(), APIKey: "key_disabled", IsActive: false}
	r := newTestRouter(stubAppLookup{apps: map[string]*entities.App{"key_disabled": app}})
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(middleware.APIKeyHeader, "key_disabled")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAPIKeyAuth_ValidKeyPassesThrough(t *testing.T) {
	app := &entities.App{ID: uuid.New(), APIKey: "key_ok", IsActive: true}
	r := newTestRouter(stubAppLookup{apps: map[string]*entities.App{"key_ok": app}})
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(middleware.APIKeyHeader, "key_ok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

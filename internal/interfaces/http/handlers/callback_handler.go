package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	"github.com/liuyulin-1024/payment-gateway/internal/domain/provider"
	"github.com/liuyulin-1024/payment-gateway/pkg/logger"
	"go.uber.org/zap"
)

// CallbackUsecase is the subset of CallbackService the HTTP layer calls.
type CallbackUsecase interface {
	Process(ctx context.Context, event provider.CallbackEvent) error
}

// CallbackHandler terminates the three per-provider inbound routes.
// Signature verification happens inside the adapter, on raw bytes,
// before a CallbackEvent — and therefore an inbox row — ever exists. This
// layer answers with 5xx, so the provider retries, on a verification
// failure, on a provider with no configured adapter, and on an unreadable
// body; every other outcome is acknowledged with 200.
type CallbackHandler struct {
	providers provider.Registry
	callbacks CallbackUsecase
}

func NewCallbackHandler(providers provider.Registry, callbacks CallbackUsecase) *CallbackHandler {
	return &CallbackHandler{providers: providers, callbacks: callbacks}
}

// Stripe handles POST /v1/callbacks/stripe.
func (h *CallbackHandler) Stripe(c *gin.Context) {
	h.handle(c, entities.ProviderStripe)
}

// Alipay handles POST /v1/callbacks/alipay.
func (h *CallbackHandler) Alipay(c *gin.Context) {
	h.handle(c, entities.ProviderAlipay)
}

// WeChatPay handles POST /v1/callbacks/wechatpay.
func (h *CallbackHandler) WeChatPay(c *gin.Context) {
	h.handle(c, entities.ProviderWeChatPay)
}

func (h *CallbackHandler) handle(c *gin.Context, name entities.Provider) {
	adapter, ok := h.providers.Get(name)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for k := range c.Request.Header {
		headers[k] = c.Request.Header.Get(k)
	}

	event, err := adapter.ParseAndVerifyCallback(c.Request.Context(), headers, rawBody)
	if err != nil {
		if errors.Is(err, domainerrors.ErrSignature) {
			logger.Warn(c.Request.Context(), "callback: signature verification failed", zap.String("provider", string(name)), zap.Error(err))
			c.Status(http.StatusInternalServerError)
			return
		}
		// UnsupportedEventError: acknowledge so the provider does not retry
		// an event type this gateway does not understand.
		logger.Warn(c.Request.Context(), "callback: unsupported event", zap.String("provider", string(name)), zap.Error(err))
		c.Status(http.StatusOK)
		return
	}

	if err := h.callbacks.Process(c.Request.Context(), *event); err != nil {
		logger.Error(c.Request.Context(), "callback: processing failed", zap.String("provider", string(name)), zap.Error(err))
		c.Status(http.StatusOK)
		return
	}

	c.Status(http.StatusOK)
}

package main

import (
	"github.com/gin-gonic/gin"

	"github.com/liuyulin-1024/payment-gateway/internal/interfaces/http/handlers"
	"github.com/liuyulin-1024/payment-gateway/internal/interfaces/http/middleware"
)

type routeDeps struct {
	paymentHandler  *handlers.PaymentHandler
	refundHandler   *handlers.RefundHandler
	callbackHandler *handlers.CallbackHandler
	apiKeyAuth      gin.HandlerFunc
}

// registerRoutes wires the inbound payment API and the per-provider
// callback endpoints. Callback routes carry no API-key middleware:
// they are authenticated by the per-provider signature the adapter
// verifies on raw bytes.
func registerRoutes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/v1")

	payments := v1.Group("/payments")
	payments.Use(d.apiKeyAuth)
	{
		payments.POST("", middleware.IdempotencyMiddleware(), d.paymentHandler.CreatePayment)
		payments.GET("/:id", d.paymentHandler.GetPayment)
		payments.GET("/by-merchant-order/:no", d.paymentHandler.GetByMerchantOrderNo)
		payments.POST("/cancel", d.paymentHandler.CancelPayment)
		payments.GET("/:id/refunds", d.refundHandler.ListRefunds)
	}

	refunds := v1.Group("/refunds")
	refunds.Use(d.apiKeyAuth)
	{
		refunds.POST("", middleware.IdempotencyMiddleware(), d.refundHandler.CreateRefund)
		refunds.GET("/:id", d.refundHandler.GetRefund)
		refunds.POST("/:id/sync", d.refundHandler.SyncRefund)
	}

	callbacks := v1.Group("/callbacks")
	{
		callbacks.POST("/stripe", d.callbackHandler.Stripe)
		callbacks.POST("/alipay", d.callbackHandler.Alipay)
		callbacks.POST("/wechatpay", d.callbackHandler.WeChatPay)
	}
}

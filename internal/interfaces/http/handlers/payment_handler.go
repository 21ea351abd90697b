package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	"github.com/liuyulin-1024/payment-gateway/internal/interfaces/http/middleware"
	"github.com/liuyulin-1024/payment-gateway/internal/interfaces/http/response"
	"github.com/liuyulin-1024/payment-gateway/internal/usecases"
)

// PaymentUsecase is the subset of PaymentService the HTTP layer depends
// on, kept as an interface so handlers can be tested against a fake.
type PaymentUsecase interface {
	CreateOrGet(ctx context.Context, app *entities.App, req usecases.CreatePaymentRequest) (*entities.Payment, bool, error)
	GetByID(ctx context.Context, appID, id uuid.UUID) (*entities.Payment, error)
	GetByMerchantOrderNo(ctx context.Context, appID uuid.UUID, merchantOrderNo string) (*entities.Payment, error)
	Cancel(ctx context.Context, app *entities.App, paymentID uuid.UUID) (*entities.Payment, error)
}

// PaymentHandler terminates the inbound payment endpoints.
type PaymentHandler struct {
	payments PaymentUsecase
}

func NewPaymentHandler(payments PaymentUsecase) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type createPaymentBody struct {
	MerchantOrderNo string            `json:"merchant_order_no" binding:"required"`
	Provider        entities.Provider `json:"provider" binding:"required"`
	UnitAmount      int64             `json:"unit_amount" binding:"required,gt=0"`
	Quantity        int64             `json:"quantity"`
	Currency        entities.Currency `json:"currency" binding:"required"`
	NotifyURL       string            `json:"notify_url"`
	ExpireMinutes   int               `json:"expire_minutes"`
	ProductName     string            `json:"product_name"`
	ProductDesc     string            `json:"product_desc"`
	Metadata        map[string]string `json:"metadata"`
}

// CreatePayment handles POST /v1/payments.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var body createPaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, domainerrors.Validation(err.Error()))
		return
	}
	if body.Quantity <= 0 {
		body.Quantity = 1
	}

	app := middleware.MustGetApp(c)
	payment, isNew, err := h.payments.CreateOrGet(c.Request.Context(), app, usecases.CreatePaymentRequest{
		MerchantOrderNo: body.MerchantOrderNo,
		Provider:        body.Provider,
		UnitAmount:      body.UnitAmount,
		Quantity:        body.Quantity,
		Currency:        body.Currency,
		NotifyURL:       body.NotifyURL,
		ExpireMinutes:   body.ExpireMinutes,
		ProductName:     body.ProductName,
		ProductDesc:     body.ProductDesc,
		Metadata:        body.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if isNew {
		response.Created(c, gin.H{"payment": payment, "is_new": isNew})
		return
	}
	response.Success(c, gin.H{"payment": payment, "is_new": isNew})
}

// GetPayment handles GET /v1/payments/:id.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest(4000, "invalid payment id"))
		return
	}

	app := middleware.MustGetApp(c)
	payment, err := h.payments.GetByID(c.Request.Context(), app.ID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"payment": payment})
}

// GetByMerchantOrderNo handles GET /v1/payments/by-merchant-order/:no.
func (h *PaymentHandler) GetByMerchantOrderNo(c *gin.Context) {
	app := middleware.MustGetApp(c)
	payment, err := h.payments.GetByMerchantOrderNo(c.Request.Context(), app.ID, c.Param("no"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"payment": payment})
}

type cancelPaymentBody struct {
	PaymentID uuid.UUID `json:"payment_id" binding:"required"`
}

// CancelPayment handles POST /v1/payments/cancel.
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	var body cancelPaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, domainerrors.Validation(err.Error()))
		return
	}

	app := middleware.MustGetApp(c)
	payment, err := h.payments.Cancel(c.Request.Context(), app, body.PaymentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"payment": payment})
}

package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	"github.com/liuyulin-1024/payment-gateway/internal/interfaces/http/middleware"
	"github.com/liuyulin-1024/payment-gateway/internal/interfaces/http/response"
	"github.com/liuyulin-1024/payment-gateway/internal/usecases"
	"github.com/liuyulin-1024/payment-gateway/pkg/utils"
)

// RefundUsecase is the subset of RefundService the HTTP layer depends on.
type RefundUsecase interface {
	CreateRefund(ctx context.Context, appID uuid.UUID, req usecases.CreateRefundRequest) (*entities.Refund, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Refund, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID, limit, offset int) ([]*entities.Refund, int64, error)
	SyncRefundStatus(ctx context.Context, refundID uuid.UUID) (*entities.Refund, error)
}

// PaymentLookup is the subset of PaymentUsecase needed to app-scope a
// refund by first resolving its parent payment.
type PaymentLookup interface {
	GetByID(ctx context.Context, appID, id uuid.UUID) (*entities.Payment, error)
}

// RefundHandler terminates the refund endpoints.
type RefundHandler struct {
	refunds  RefundUsecase
	payments PaymentLookup
}

func NewRefundHandler(refunds RefundUsecase, payments PaymentLookup) *RefundHandler {
	return &RefundHandler{refunds: refunds, payments: payments}
}

type createRefundBody struct {
	PaymentID uuid.UUID `json:"payment_id" binding:"required"`
	Amount    *int64    `json:"amount"`
	Reason    string    `json:"reason"`
}

// CreateRefund handles POST /v1/refunds. The parent payment is looked up
// app-scoped first so a refund request for another app's payment fails
// NotFound rather than leaking whether the payment id exists.
func (h *RefundHandler) CreateRefund(c *gin.Context) {
	var body createRefundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, domainerrors.Validation(err.Error()))
		return
	}
	if body.Amount != nil && *body.Amount <= 0 {
		response.Error(c, domainerrors.BadRequest(4002, "refund amount must be positive"))
		return
	}

	app := middleware.MustGetApp(c)
	if _, err := h.payments.GetByID(c.Request.Context(), app.ID, body.PaymentID); err != nil {
		response.Error(c, err)
		return
	}

	refund, err := h.refunds.CreateRefund(c.Request.Context(), app.ID, usecases.CreateRefundRequest{
		PaymentID: body.PaymentID,
		Amount:    body.Amount,
		Reason:    body.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"refund": refund})
}

// GetRefund handles GET /v1/refunds/:id.
func (h *RefundHandler) GetRefund(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest(4000, "invalid refund id"))
		return
	}

	refund, err := h.refunds.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	// Scope to the caller's app via the parent payment, same as CreateRefund.
	app := middleware.MustGetApp(c)
	if _, err := h.payments.GetByID(c.Request.Context(), app.ID, refund.PaymentID); err != nil {
		response.Error(c, domainerrors.NotFound("refund not found"))
		return
	}

	response.Success(c, gin.H{"refund": refund})
}

// ListRefunds handles GET /v1/payments/:id/refunds.
func (h *RefundHandler) ListRefunds(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest(4000, "invalid payment id"))
		return
	}

	app := middleware.MustGetApp(c)
	if _, err := h.payments.GetByID(c.Request.Context(), app.ID, paymentID); err != nil {
		response.Error(c, err)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	params := utils.GetPaginationParams(page, limit)

	refunds, total, err := h.refunds.ListByPayment(c.Request.Context(), paymentID, params.Limit, params.CalculateOffset())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{
		"refunds":    refunds,
		"pagination": utils.CalculateMeta(total, params.Page, params.Limit),
	})
}

// SyncRefund handles POST /v1/refunds/:id/sync.
func (h *RefundHandler) SyncRefund(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest(4000, "invalid refund id"))
		return
	}

	refund, err := h.refunds.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	app := middleware.MustGetApp(c)
	if _, err := h.payments.GetByID(c.Request.Context(), app.ID, refund.PaymentID); err != nil {
		response.Error(c, domainerrors.NotFound("refund not found"))
		return
	}

	synced, err := h.refunds.SyncRefundStatus(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"refund": synced})
}

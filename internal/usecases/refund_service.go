package usecases

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	"github.com/liuyulin-1024/payment-gateway/internal/domain/provider"
	domainrepos "github.com/liuyulin-1024/payment-gateway/internal/domain/repositories"
	"github.com/liuyulin-1024/payment-gateway/pkg/utils"
)

// CreateRefundRequest is the app-facing input to RefundService.CreateRefund.
type CreateRefundRequest struct {
	PaymentID uuid.UUID
	// Amount nil means full refund of the payment.
	Amount *int64
	Reason string
}

// RefundService implements idempotent refund creation with the
// cumulative-cap invariant and provider-status sync.
type RefundService struct {
	refunds   domainrepos.RefundRepository
	payments  domainrepos.PaymentRepository
	uow       domainrepos.UnitOfWork
	providers provider.Registry
}

func NewRefundService(refunds domainrepos.RefundRepository, payments domainrepos.PaymentRepository, uow domainrepos.UnitOfWork, providers provider.Registry) *RefundService {
	return &RefundService{refunds: refunds, payments: payments, uow: uow, providers: providers}
}

func (s *RefundService) CreateRefund(ctx context.Context, appID uuid.UUID, req CreateRefundRequest) (*entities.Refund, error) {
	var result *entities.Refund

	err := s.uow.Do(ctx, func(txCtx context.Context) error {
		lockedCtx := s.uow.WithLock(txCtx)
		payment, err := s.payments.GetByID(lockedCtx, appID, req.PaymentID)
		if err != nil {
			return err
		}
		if payment.Status != entities.PaymentStatusSucceeded {
			return domainerrors.BadRequest(4001, "payment must be succeeded to refund")
		}

		refundAmount := payment.Amount
		if req.Amount != nil {
			refundAmount = *req.Amount
		}
		if refundAmount <= 0 || refundAmount > payment.Amount {
			return domainerrors.BadRequest(4002, "refund amount exceeds payment amount")
		}

		activeSum, err := s.refunds.SumActiveByPayment(lockedCtx, payment.ID)
		if err != nil {
			return domainerrors.Internal(5001, "failed to sum existing refunds", err)
		}
		if activeSum+refundAmount > payment.Amount {
			return domainerrors.BadRequest(4003, "cumulative refund amount would exceed payment amount")
		}

		adapter, ok := s.providers.Get(payment.Provider)
		if !ok {
			return domainerrors.BadRequest(4004, "unsupported provider for refund")
		}
		providerResult, err := adapter.CreateRefund(txCtx, provider.CreateRefundRequest{
			ProviderTxnID: payment.ProviderTxnID.String,
			RefundAmount:  req.Amount,
			TotalAmount:   payment.Amount,
			Currency:      payment.Currency,
			Reason:        req.Reason,
		})
		if err != nil {
			return err
		}

		status, ok := mapProviderRefundStatus(providerResult.Status)
		if !ok {
			return domainerrors.BadRequest(4004, "unsupported provider refund status")
		}
		if status == entities.RefundStatusSucceeded && providerResult.ProviderRefundID == "" {
			return domainerrors.Internal(4005, "provider reported success without a refund id", nil)
		}

		refund := &entities.Refund{
			ID:           utils.GenerateUUIDv7(),
			PaymentID:    payment.ID,
			RefundAmount: refundAmount,
			Status:       status,
			Provider:     payment.Provider,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		if req.Reason != "" {
			refund.Reason.SetValid(req.Reason)
		}
		if providerResult.ProviderRefundID != "" {
			refund.ProviderRefundID.SetValid(providerResult.ProviderRefundID)
		}
		if status == entities.RefundStatusSucceeded {
			now := time.Now()
			refund.RefundedAt = &now
		}

		if err := s.refunds.Create(lockedCtx, refund); err != nil {
			return domainerrors.Internal(5001, "failed to persist refund after provider call succeeded", err)
		}
		result = refund
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *RefundService) GetByID(ctx context.Context, id uuid.UUID) (*entities.Refund, error) {
	return s.refunds.GetByID(ctx, id)
}

func (s *RefundService) ListByPayment(ctx context.Context, paymentID uuid.UUID, limit, offset int) ([]*entities.Refund, int64, error) {
	return s.refunds.ListByPayment(ctx, paymentID, limit, offset)
}

// SyncRefundStatus pulls provider state for a non-terminal refund and
// updates the stored row; a no-op if the refund is already terminal.
func (s *RefundService) SyncRefundStatus(ctx context.Context, refundID uuid.UUID) (*entities.Refund, error) {
	var result *entities.Refund
	err := s.uow.Do(ctx, func(txCtx context.Context) error {
		lockedCtx := s.uow.WithLock(txCtx)
		refund, err := s.refunds.GetByID(lockedCtx, refundID)
		if err != nil {
			return err
		}
		if refund.Status.IsTerminal() {
			result = refund
			return nil
		}

		adapter, ok := s.providers.Get(refund.Provider)
		if !ok {
			return domainerrors.BadRequest(4004, "unsupported provider")
		}
		providerResult, err := adapter.GetRefund(txCtx, refund.ProviderRefundID.String)
		if err != nil {
			return domainerrors.Internal(5002, "failed to fetch refund status from provider", err)
		}

		status, ok := mapProviderRefundStatus(providerResult.Status)
		if !ok {
			return domainerrors.BadRequest(4004, "unsupported provider refund status")
		}
		refund.Status = status
		if status == entities.RefundStatusSucceeded && refund.RefundedAt == nil {
			now := time.Now()
			refund.RefundedAt = &now
		}
		refund.UpdatedAt = time.Now()
		if err := s.refunds.Update(lockedCtx, refund); err != nil {
			return err
		}
		result = refund
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func mapProviderRefundStatus(v provider.RefundStatusValue) (entities.RefundStatus, bool) {
	switch v {
	case provider.RefundValueSucceeded:
		return entities.RefundStatusSucceeded, true
	case provider.RefundValuePending:
		return entities.RefundStatusPending, true
	case provider.RefundValueFailed:
		return entities.RefundStatusFailed, true
	default:
		return "", false
	}
}

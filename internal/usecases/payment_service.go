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

// CreatePaymentRequest is the app-facing input to PaymentService.CreateOrGet.
type CreatePaymentRequest struct {
	MerchantOrderNo string
	Provider        entities.Provider
	UnitAmount      int64
	Quantity        int64
	Currency        entities.Currency
	NotifyURL       string
	ExpireMinutes   int
	ProductName     string
	ProductDesc     string
	Metadata        map[string]string
}

// PaymentService implements create-or-get, lookup, state transition, and
// cancellation for Payment entities. expireMinutesDefault fills in
// request.ExpireMinutes when the merchant omits it, before the adapter
// ever sees the request.
type PaymentService struct {
	payments             domainrepos.PaymentRepository
	uow                  domainrepos.UnitOfWork
	providers            provider.Registry
	expireMinutesDefault int
}

func NewPaymentService(payments domainrepos.PaymentRepository, uow domainrepos.UnitOfWork, providers provider.Registry, expireMinutesDefault int) *PaymentService {
	return &PaymentService{payments: payments, uow: uow, providers: providers, expireMinutesDefault: expireMinutesDefault}
}

// CreateOrGet implements the idempotent creation contract: a repeat call
// with the same (app, merchant_order_no) and matching parameters returns
// the existing row; mismatched parameters fail with Conflict; a losing
// concurrent creator re-reads and returns the winner's row.
func (s *PaymentService) CreateOrGet(ctx context.Context, app *entities.App, req CreatePaymentRequest) (payment *entities.Payment, isNew bool, err error) {
	totalAmount := req.UnitAmount * req.Quantity

	existing, lookupErr := s.payments.GetByMerchantOrderNo(ctx, app.ID, req.MerchantOrderNo)
	if lookupErr == nil {
		if existing.Amount != totalAmount || existing.Currency != req.Currency || existing.Provider != req.Provider {
			return nil, false, domainerrors.Conflict(4090, "idempotency key reused with different parameters").WithDetails(map[string]interface{}{
				"stored":    map[string]interface{}{"amount": existing.Amount, "currency": existing.Currency, "provider": existing.Provider},
				"requested": map[string]interface{}{"amount": totalAmount, "currency": req.Currency, "provider": req.Provider},
			})
		}
		return existing, false, nil
	}

	notifyURL := req.NotifyURL
	if notifyURL == "" {
		notifyURL = app.NotifyURL.String
	}

	p := &entities.Payment{
		ID:              utils.GenerateUUIDv7(),
		AppID:           app.ID,
		MerchantOrderNo: req.MerchantOrderNo,
		Provider:        req.Provider,
		Amount:          totalAmount,
		Currency:        req.Currency,
		Status:          entities.PaymentStatusPending,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if notifyURL != "" {
		p.NotifyURL.SetValid(notifyURL)
	}

	adapter, ok := s.providers.Get(req.Provider)
	if !ok {
		return nil, false, domainerrors.BadRequest(4006, "unsupported provider")
	}
	expireMinutes := req.ExpireMinutes
	if expireMinutes <= 0 {
		expireMinutes = s.expireMinutesDefault
	}
	result, createErr := adapter.CreatePayment(ctx, provider.CreatePaymentRequest{
		MerchantOrderNo: req.MerchantOrderNo,
		Currency:        req.Currency,
		UnitAmount:      req.UnitAmount,
		Quantity:        req.Quantity,
		NotifyURL:       notifyURL,
		ExpireMinutes:   expireMinutes,
		ProductName:     req.ProductName,
		ProductDesc:     req.ProductDesc,
		Metadata:        req.Metadata,
	})
	if createErr != nil {
		return nil, false, createErr
	}
	if result.ProviderTxnID != "" {
		p.ProviderTxnID.SetValid(result.ProviderTxnID)
	}

	if createErr := s.payments.Create(ctx, p); createErr != nil {
		// Unique-constraint loser: re-read and return the winner's row.
		if winner, reErr := s.payments.GetByMerchantOrderNo(ctx, app.ID, req.MerchantOrderNo); reErr == nil {
			return winner, false, nil
		}
		return nil, false, domainerrors.Internal(5003, "failed to persist payment", createErr)
	}

	return p, true, nil
}

func (s *PaymentService) GetByID(ctx context.Context, appID, id uuid.UUID) (*entities.Payment, error) {
	return s.payments.GetByID(ctx, appID, id)
}

func (s *PaymentService) GetByMerchantOrderNo(ctx context.Context, appID uuid.UUID, merchantOrderNo string) (*entities.Payment, error) {
	return s.payments.GetByMerchantOrderNo(ctx, appID, merchantOrderNo)
}

// UpdateStatus advances a non-terminal payment to newStatus under a row
// lock; it is a no-op if the current status is already terminal.
func (s *PaymentService) UpdateStatus(ctx context.Context, paymentID uuid.UUID, newStatus entities.PaymentStatus, providerTxnID string) (*entities.Payment, error) {
	var updated *entities.Payment
	err := s.uow.Do(ctx, func(txCtx context.Context) error {
		lockedCtx := s.uow.WithLock(txCtx)
		p, err := s.payments.GetByIDAnyApp(lockedCtx, paymentID)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			updated = p
			return nil
		}
		p.Status = newStatus
		if providerTxnID != "" && !p.ProviderTxnID.Valid {
			p.ProviderTxnID.SetValid(providerTxnID)
		}
		if newStatus == entities.PaymentStatusSucceeded && p.PaidAt == nil {
			now := time.Now()
			p.PaidAt = &now
		}
		p.UpdatedAt = time.Now()
		if err := s.payments.Update(lockedCtx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Cancel cancels a non-terminal payment; already-terminal payments are a
// no-op success, matching the adapter's cancel_payment contract.
func (s *PaymentService) Cancel(ctx context.Context, app *entities.App, paymentID uuid.UUID) (*entities.Payment, error) {
	var result *entities.Payment
	err := s.uow.Do(ctx, func(txCtx context.Context) error {
		lockedCtx := s.uow.WithLock(txCtx)
		p, err := s.payments.GetByID(lockedCtx, app.ID, paymentID)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			result = p
			return nil
		}

		adapter, ok := s.providers.Get(p.Provider)
		if !ok {
			return domainerrors.BadRequest(4006, "unsupported provider")
		}
		if _, err := adapter.CancelPayment(txCtx, p.MerchantOrderNo, p.ProviderTxnID.String); err != nil {
			return err
		}

		p.Status = entities.PaymentStatusCanceled
		p.UpdatedAt = time.Now()
		if err := s.payments.Update(lockedCtx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

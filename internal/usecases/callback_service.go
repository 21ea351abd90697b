package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	"github.com/liuyulin-1024/payment-gateway/internal/domain/provider"
	domainrepos "github.com/liuyulin-1024/payment-gateway/internal/domain/repositories"
	"github.com/liuyulin-1024/payment-gateway/pkg/logger"
	"github.com/liuyulin-1024/payment-gateway/pkg/utils"
	"go.uber.org/zap"
)

// CallbackService ingests inbound provider events, advances Payment/Refund
// state under a row lock, and enqueues outbound deliveries. Entry point
// is Process, which commits step 1 (ingest) on its own and then runs
// steps 2-6 of the contract within a single database transaction.
type CallbackService struct {
	callbacks  domainrepos.CallbackRepository
	payments   domainrepos.PaymentRepository
	refunds    domainrepos.RefundRepository
	deliveries domainrepos.WebhookDeliveryRepository
	apps       domainrepos.AppRepository
	uow        domainrepos.UnitOfWork
}

func NewCallbackService(
	callbacks domainrepos.CallbackRepository,
	payments domainrepos.PaymentRepository,
	refunds domainrepos.RefundRepository,
	deliveries domainrepos.WebhookDeliveryRepository,
	apps domainrepos.AppRepository,
	uow domainrepos.UnitOfWork,
) *CallbackService {
	return &CallbackService{
		callbacks:  callbacks,
		payments:   payments,
		refunds:    refunds,
		deliveries: deliveries,
		apps:       apps,
		uow:        uow,
	}
}

// Process ingests a single verified provider event. Signature
// verification errors must never reach this method — they are handled
// by the HTTP layer before Process is called, per the contract that
// those failures never create an inbox row.
//
// The inbox row is committed before the state-advance transaction so a
// failure in the later steps rolls back the transition but leaves the
// Callback in processing, where a retry or an operator can re-drive it.
func (s *CallbackService) Process(ctx context.Context, event provider.CallbackEvent) error {
	// Step 1: ingest & dedup, committed on its own.
	callback, isReplay, err := s.ingest(ctx, event)
	if err != nil {
		return err
	}
	if isReplay {
		return nil
	}

	return s.uow.Do(ctx, func(txCtx context.Context) error {
		// Step 2: classify.
		if event.Outcome.IsRefund() {
			return s.processRefundCallback(txCtx, callback, event)
		}
		return s.processPaymentCallback(txCtx, callback, event)
	})
}

func (s *CallbackService) ingest(ctx context.Context, event provider.CallbackEvent) (callback *entities.Callback, isReplay bool, err error) {
	existing, lookupErr := s.callbacks.GetByProviderEventID(ctx, event.Provider, event.ProviderEventID)
	if lookupErr == nil {
		if existing.Status == entities.CallbackStatusProcessed {
			return existing, true, nil
		}
		return existing, false, nil
	}

	now := time.Now()
	callback = &entities.Callback{
		ID:              utils.GenerateUUIDv7(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		Payload:         event.RawPayload,
		Status:          entities.CallbackStatusProcessing,
		ReceivedAt:      now,
	}
	if event.ProviderTxnID != "" {
		callback.ProviderTxnID.SetValid(event.ProviderTxnID)
	}

	if createErr := s.callbacks.Create(ctx, callback); createErr != nil {
		// Unique-constraint loser: re-read and resume from the winner's row.
		if winner, reErr := s.callbacks.GetByProviderEventID(ctx, event.Provider, event.ProviderEventID); reErr == nil {
			if winner.Status == entities.CallbackStatusProcessed {
				return winner, true, nil
			}
			return winner, false, nil
		}
		return nil, false, domainerrors.Internal(5004, "failed to persist callback inbox row", createErr)
	}
	return callback, false, nil
}

func (s *CallbackService) processPaymentCallback(ctx context.Context, callback *entities.Callback, event provider.CallbackEvent) error {
	payment, err := s.locatePayment(ctx, event)
	if err != nil {
		callback.Status = entities.CallbackStatusFailed
		_ = s.callbacks.Update(ctx, callback)
		logger.Warn(ctx, "callback: payment not found", zap.String("merchant_order_no", event.MerchantOrderNo), zap.String("provider_txn_id", event.ProviderTxnID))
		return nil
	}

	lockedCtx := s.uow.WithLock(ctx)
	locked, err := s.payments.GetByIDAnyApp(lockedCtx, payment.ID)
	if err != nil {
		return err
	}

	newStatus, ok := event.Outcome.ToPaymentStatus()
	if !ok {
		return fmt.Errorf("%w: payment outcome %q", domainerrors.ErrUnsupported, event.Outcome)
	}

	transitioned := false
	if newStatus.IsTerminal() && locked.Status != newStatus {
		if !locked.Status.IsTerminal() {
			locked.Status = newStatus
			transitioned = true
			if newStatus == entities.PaymentStatusSucceeded && locked.PaidAt == nil {
				now := time.Now()
				locked.PaidAt = &now
			}
		}
	}
	if event.ProviderTxnID != "" && !locked.ProviderTxnID.Valid {
		locked.ProviderTxnID.SetValid(event.ProviderTxnID)
	}
	locked.UpdatedAt = time.Now()
	if err := s.payments.Update(lockedCtx, locked); err != nil {
		return err
	}

	if transitioned && newStatus.IsTerminal() {
		if err := s.enqueuePaymentDelivery(ctx, locked); err != nil {
			return err
		}
	}

	callback.PaymentID.UUID = locked.ID
	callback.PaymentID.Valid = true
	return s.finalize(ctx, callback)
}

func (s *CallbackService) processRefundCallback(ctx context.Context, callback *entities.Callback, event provider.CallbackEvent) error {
	refund, err := s.refunds.GetByProviderRefundID(ctx, event.Provider, event.ProviderRefundID)
	if err != nil {
		callback.Status = entities.CallbackStatusFailed
		_ = s.callbacks.Update(ctx, callback)
		logger.Warn(ctx, "callback: refund not found", zap.String("provider_refund_id", event.ProviderRefundID))
		return nil
	}

	lockedCtx := s.uow.WithLock(ctx)
	locked, err := s.refunds.GetByID(lockedCtx, refund.ID)
	if err != nil {
		return err
	}

	newStatus, ok := event.Outcome.ToRefundStatus()
	if !ok {
		return fmt.Errorf("%w: refund outcome %q", domainerrors.ErrUnsupported, event.Outcome)
	}

	if !locked.Status.IsTerminal() && locked.Status != newStatus {
		locked.Status = newStatus
		if newStatus == entities.RefundStatusSucceeded && locked.RefundedAt == nil {
			now := time.Now()
			locked.RefundedAt = &now
		}
		locked.UpdatedAt = time.Now()
		if err := s.refunds.Update(lockedCtx, locked); err != nil {
			return err
		}
		if err := s.enqueueRefundDelivery(ctx, locked); err != nil {
			return err
		}
	}

	return s.finalize(ctx, callback)
}

// locatePayment finds the target Payment by merchant_order_no first,
// falling back to provider_txn_id, per the contract: a provider may omit
// one or the other depending on event type.
func (s *CallbackService) locatePayment(ctx context.Context, event provider.CallbackEvent) (*entities.Payment, error) {
	if event.MerchantOrderNo != "" {
		if p, err := s.payments.GetByMerchantOrderNoAnyApp(ctx, event.MerchantOrderNo); err == nil {
			return p, nil
		}
	}
	if event.ProviderTxnID != "" {
		if p, err := s.payments.GetByProviderTxnID(ctx, event.Provider, event.ProviderTxnID); err == nil {
			return p, nil
		}
	}
	return nil, domainerrors.NotFound("payment not found for callback")
}

func (s *CallbackService) enqueuePaymentDelivery(ctx context.Context, payment *entities.Payment) error {
	app, err := s.apps.GetByID(ctx, payment.AppID)
	if err != nil {
		return err
	}
	notifyURL := payment.NotifyURL.String
	if notifyURL == "" {
		notifyURL = app.NotifyURL.String
	}
	if notifyURL == "" {
		logger.Warn(ctx, "callback: no notify_url resolved for payment, dropping delivery", zap.String("payment_id", payment.ID.String()))
		return nil
	}

	eventID := fmt.Sprintf("%s_%s", payment.ID.String(), payment.Status)
	body := map[string]interface{}{
		"event_id":          eventID,
		"event_type":        "payment." + string(payment.Status),
		"payment_id":        payment.ID,
		"merchant_order_no": payment.MerchantOrderNo,
		"status":            payment.Status,
		"amount":            payment.Amount,
		"currency":          payment.Currency,
		"provider_txn_id":   payment.ProviderTxnID.String,
		"paid_at":           payment.PaidAt,
	}
	payloadJSON, _ := json.Marshal(body)

	return s.upsertDelivery(ctx, app.ID, payment.ID, eventID, "payment."+string(payment.Status), notifyURL+"/callback/payment", string(payloadJSON))
}

func (s *CallbackService) enqueueRefundDelivery(ctx context.Context, refund *entities.Refund) error {
	payment, err := s.payments.GetByIDAnyApp(ctx, refund.PaymentID)
	if err != nil {
		return err
	}
	app, err := s.apps.GetByID(ctx, payment.AppID)
	if err != nil {
		return err
	}
	notifyURL := payment.NotifyURL.String
	if notifyURL == "" {
		notifyURL = app.NotifyURL.String
	}
	if notifyURL == "" {
		logger.Warn(ctx, "callback: no notify_url resolved for refund, dropping delivery", zap.String("refund_id", refund.ID.String()))
		return nil
	}

	eventID := fmt.Sprintf("%s_%s", refund.ID.String(), refund.Status)
	body := map[string]interface{}{
		"event_id":           eventID,
		"event_type":         "refund." + string(refund.Status),
		"payment_id":         payment.ID,
		"merchant_order_no":  payment.MerchantOrderNo,
		"refund_id":          refund.ID,
		"refund_amount":      refund.RefundAmount,
		"provider_refund_id": refund.ProviderRefundID.String,
		"refunded_at":        refund.RefundedAt,
		"reason":             refund.Reason.String,
	}
	payloadJSON, _ := json.Marshal(body)

	return s.upsertDelivery(ctx, app.ID, payment.ID, eventID, "refund."+string(refund.Status), notifyURL+"/callback/refund", string(payloadJSON))
}

// upsertDelivery implements the re-queue upsert semantics: an existing
// row for (app_id, event_id) is reset to pending rather than inserted
// again, since a second transition into the same terminal is treated as
// a retry request.
func (s *CallbackService) upsertDelivery(ctx context.Context, appID, paymentID uuid.UUID, eventID, eventType, notifyURL, payload string) error {
	now := time.Now()
	existing, err := s.deliveries.GetByAppAndEventID(ctx, appID, eventID)
	if err == nil {
		existing.Status = entities.DeliveryStatusPending
		existing.AttemptCount = 0
		existing.NextAttemptAt = &now
		existing.LastError = null.StringFromPtr(nil)
		existing.LastHTTPStatus = null.IntFromPtr(nil)
		existing.Payload = payload
		existing.UpdatedAt = now
		return s.deliveries.Update(ctx, existing)
	}
	if !errors.Is(err, domainerrors.ErrNotFound) {
		return err
	}

	delivery := &entities.WebhookDelivery{
		ID:            utils.GenerateUUIDv7(),
		AppID:         appID,
		EventID:       eventID,
		EventType:     eventType,
		NotifyURL:     notifyURL,
		Payload:       payload,
		Status:        entities.DeliveryStatusPending,
		AttemptCount:  0,
		NextAttemptAt: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	delivery.PaymentID.UUID = paymentID
	delivery.PaymentID.Valid = true
	return s.deliveries.Create(ctx, delivery)
}

func (s *CallbackService) finalize(ctx context.Context, callback *entities.Callback) error {
	now := time.Now()
	callback.Status = entities.CallbackStatusProcessed
	callback.ProcessedAt = &now
	return s.callbacks.Update(ctx, callback)
}

package usecases_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	"github.com/liuyulin-1024/payment-gateway/internal/domain/provider"
	"github.com/liuyulin-1024/payment-gateway/internal/infrastructure/repositories"
	"github.com/liuyulin-1024/payment-gateway/internal/usecases"
	"github.com/liuyulin-1024/payment-gateway/pkg/utils"
)

func setupCallbackService(t *testing.T) (*usecases.CallbackService, *gorm.DB, *entities.App, *entities.Payment) {
	t.Helper()
	db := newTestDB(t)

	app := &entities.App{ID: utils.GenerateUUIDv7(), Name: "acme", APIKey: "key_acme", IsActive: true}
	app.NotifyURL.SetValid("https://m.example/hook")
	require.NoError(t, db.Create(app).Error)

	payment := &entities.Payment{
		ID:              utils.GenerateUUIDv7(),
		AppID:           app.ID,
		MerchantOrderNo: "ord-cb-1",
		Provider:        entities.ProviderStripe,
		Amount:          1000,
		Currency:        entities.CurrencyUSD,
		Status:          entities.PaymentStatusPending,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	require.NoError(t, db.Create(payment).Error)

	callbackRepo := repositories.NewCallbackRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)
	refundRepo := repositories.NewRefundRepository(db)
	deliveryRepo := repositories.NewWebhookDeliveryRepository(db)
	appRepo := repositories.NewAppRepository(db)
	uow := repositories.NewUnitOfWork(db)

	svc := usecases.NewCallbackService(callbackRepo, paymentRepo, refundRepo, deliveryRepo, appRepo, uow)
	return svc, db, app, payment
}

func baseCallbackEvent(payment *entities.Payment, outcome entities.Outcome) provider.CallbackEvent {
	return provider.CallbackEvent{
		Provider:        entities.ProviderStripe,
		ProviderEventID: "evt_1",
		ProviderTxnID:   "pi_1",
		MerchantOrderNo: payment.MerchantOrderNo,
		Outcome:         outcome,
		RawPayload:      `{"id":"evt_1"}`,
	}
}

// TestCallbackService_DedupReplayIsIdempotent drives the contract that a
// callback replayed K times against the same provider_event_id produces
// exactly one row and at most one status transition.
func TestCallbackService_DedupReplayIsIdempotent(t *testing.T) {
	svc, db, _, payment := setupCallbackService(t)
	ctx := context.Background()

	event := baseCallbackEvent(payment, entities.OutcomeSucceeded)
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Process(ctx, event))
	}

	var count int64
	require.NoError(t, db.Model(&entities.Callback{}).Where("provider_event_id = ?", "evt_1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var updated entities.Payment
	require.NoError(t, db.First(&updated, "id = ?", payment.ID).Error)
	assert.Equal(t, entities.PaymentStatusSucceeded, updated.Status)
	assert.NotNil(t, updated.PaidAt)
}

// TestCallbackService_TerminalStatusIsSticky ensures a terminal payment
// status is never overwritten by a later, conflicting callback.
func TestCallbackService_TerminalStatusIsSticky(t *testing.T) {
	svc, db, _, payment := setupCallbackService(t)
	ctx := context.Background()

	succeed := baseCallbackEvent(payment, entities.OutcomeSucceeded)
	require.NoError(t, svc.Process(ctx, succeed))

	failEvent := succeed
	failEvent.ProviderEventID = "evt_2"
	failEvent.Outcome = entities.OutcomeFailed
	require.NoError(t, svc.Process(ctx, failEvent))

	var updated entities.Payment
	require.NoError(t, db.First(&updated, "id = ?", payment.ID).Error)
	assert.Equal(t, entities.PaymentStatusSucceeded, updated.Status, "a terminal payment status must not flip on a later callback")
}

// TestCallbackService_ExpiredCollapsesToCanceled drives scenario S6: the
// expired outcome maps onto the canceled payment status.
func TestCallbackService_ExpiredCollapsesToCanceled(t *testing.T) {
	svc, db, _, payment := setupCallbackService(t)
	event := baseCallbackEvent(payment, entities.OutcomeExpired)

	require.NoError(t, svc.Process(context.Background(), event))

	var updated entities.Payment
	require.NoError(t, db.First(&updated, "id = ?", payment.ID).Error)
	assert.Equal(t, entities.PaymentStatusCanceled, updated.Status)
}

// TestCallbackService_PaymentTransitionEnqueuesDelivery verifies a
// terminal transition creates exactly one outbound WebhookDelivery row.
func TestCallbackService_PaymentTransitionEnqueuesDelivery(t *testing.T) {
	svc, db, app, payment := setupCallbackService(t)
	event := baseCallbackEvent(payment, entities.OutcomeSucceeded)

	require.NoError(t, svc.Process(context.Background(), event))

	var deliveries []entities.WebhookDelivery
	require.NoError(t, db.Where("app_id = ?", app.ID).Find(&deliveries).Error)
	require.Len(t, deliveries, 1)
	assert.Equal(t, entities.DeliveryStatusPending, deliveries[0].Status)
	assert.Equal(t, payment.ID.String()+"_succeeded", deliveries[0].EventID, "event_id must be stable across retries of the same transition")
	assert.Contains(t, deliveries[0].NotifyURL, app.NotifyURL.String)
	assert.Contains(t, deliveries[0].NotifyURL, "/callback/payment")
}

// TestCallbackService_RefundCallbackRoutesToRefundPath exercises the
// refund_* outcome branch end to end: the refund row transitions and a
// refund delivery is queued, while the owning payment is untouched.
func TestCallbackService_RefundCallbackRoutesToRefundPath(t *testing.T) {
	svc, db, app, payment := setupCallbackService(t)

	payment.Status = entities.PaymentStatusSucceeded
	now := time.Now()
	payment.PaidAt = &now
	require.NoError(t, db.Save(payment).Error)

	refund := &entities.Refund{
		ID:           utils.GenerateUUIDv7(),
		PaymentID:    payment.ID,
		RefundAmount: 500,
		Status:       entities.RefundStatusPending,
		Provider:     entities.ProviderStripe,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	refund.ProviderRefundID.SetValid("re_1")
	require.NoError(t, db.Create(refund).Error)

	event := provider.CallbackEvent{
		Provider:         entities.ProviderStripe,
		ProviderEventID:  "evt_refund_1",
		ProviderRefundID: "re_1",
		Outcome:          entities.OutcomeRefundSucceeded,
		RawPayload:       `{"id":"evt_refund_1"}`,
	}
	require.NoError(t, svc.Process(context.Background(), event))

	var updatedRefund entities.Refund
	require.NoError(t, db.First(&updatedRefund, "id = ?", refund.ID).Error)
	assert.Equal(t, entities.RefundStatusSucceeded, updatedRefund.Status)
	assert.NotNil(t, updatedRefund.RefundedAt)

	var updatedPayment entities.Payment
	require.NoError(t, db.First(&updatedPayment, "id = ?", payment.ID).Error)
	assert.Equal(t, entities.PaymentStatusSucceeded, updatedPayment.Status, "a refund callback must not alter payment status")

	var deliveries []entities.WebhookDelivery
	require.NoError(t, db.Where("app_id = ? AND event_type = ?", app.ID, "refund.succeeded").Find(&deliveries).Error)
	require.Len(t, deliveries, 1)
}

// TestCallbackService_UnknownPaymentMarksCallbackFailedWithoutError
// verifies a callback for an unresolvable merchant order is parked as
// failed in the inbox rather than bubbling an error to the caller,
// since the HTTP layer always acks with 200 after Process returns.
func TestCallbackService_UnknownPaymentMarksCallbackFailedWithoutError(t *testing.T) {
	svc, db, _, payment := setupCallbackService(t)
	event := baseCallbackEvent(payment, entities.OutcomeSucceeded)
	event.MerchantOrderNo = "does-not-exist"
	event.ProviderTxnID = "does-not-exist-either"

	require.NoError(t, svc.Process(context.Background(), event))

	var cb entities.Callback
	require.NoError(t, db.First(&cb, "provider_event_id = ?", "evt_1").Error)
	assert.Equal(t, entities.CallbackStatusFailed, cb.Status)
}

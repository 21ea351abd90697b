package usecases_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	"github.com/liuyulin-1024/payment-gateway/internal/domain/provider"
	"github.com/liuyulin-1024/payment-gateway/internal/infrastructure/repositories"
	"github.com/liuyulin-1024/payment-gateway/internal/usecases"
	"github.com/liuyulin-1024/payment-gateway/pkg/utils"
)

func setupRefundService(t *testing.T) (*usecases.RefundService, *gorm.DB, *entities.Payment) {
	t.Helper()
	db := newTestDB(t)

	payment := &entities.Payment{
		ID:              utils.GenerateUUIDv7(),
		AppID:           utils.GenerateUUIDv7(),
		MerchantOrderNo: "ord-refund-1",
		Provider:        entities.ProviderStripe,
		Amount:          1000,
		Currency:        entities.CurrencyUSD,
		Status:          entities.PaymentStatusSucceeded,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	payment.ProviderTxnID.SetValid("pi_refund_test")
	now := time.Now()
	payment.PaidAt = &now
	require.NoError(t, db.Create(payment).Error)

	refundRepo := repositories.NewRefundRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)
	uow := repositories.NewUnitOfWork(db)
	registry := provider.Registry{entities.ProviderStripe: newFakeProvider(entities.ProviderStripe)}

	return usecases.NewRefundService(refundRepo, paymentRepo, uow, registry), db, payment
}

// TestRefundService_CumulativeCap implements scenario S5: 1000 paid, a
// 600 refund succeeds, a further 500 is rejected (would total 1100), and
// a further 400 succeeds (exactly exhausting the cap).
func TestRefundService_CumulativeCap(t *testing.T) {
	svc, _, payment := setupRefundService(t)
	ctx := context.Background()

	amt1 := int64(600)
	r1, err := svc.CreateRefund(ctx, payment.AppID, usecases.CreateRefundRequest{PaymentID: payment.ID, Amount: &amt1})
	require.NoError(t, err)
	assert.Equal(t, entities.RefundStatusSucceeded, r1.Status)

	amt2 := int64(500)
	_, err = svc.CreateRefund(ctx, payment.AppID, usecases.CreateRefundRequest{PaymentID: payment.ID, Amount: &amt2})
	require.Error(t, err)
	appErr := domainerrors.As(err)
	assert.Equal(t, domainerrors.KindBadRequest, appErr.Kind)

	amt3 := int64(400)
	r3, err := svc.CreateRefund(ctx, payment.AppID, usecases.CreateRefundRequest{PaymentID: payment.ID, Amount: &amt3})
	require.NoError(t, err)
	assert.Equal(t, entities.RefundStatusSucceeded, r3.Status)
}

func TestRefundService_RequiresSucceededPayment(t *testing.T) {
	svc, db, payment := setupRefundService(t)
	payment.Status = entities.PaymentStatusPending
	require.NoError(t, db.Save(payment).Error)

	_, err := svc.CreateRefund(context.Background(), payment.AppID, usecases.CreateRefundRequest{PaymentID: payment.ID})
	require.Error(t, err)
	assert.Equal(t, domainerrors.KindBadRequest, domainerrors.As(err).Kind)
}

func TestRefundService_FullRefundDefaultsToPaymentAmount(t *testing.T) {
	svc, _, payment := setupRefundService(t)

	r, err := svc.CreateRefund(context.Background(), payment.AppID, usecases.CreateRefundRequest{PaymentID: payment.ID})
	require.NoError(t, err)
	assert.Equal(t, payment.Amount, r.RefundAmount)
	assert.NotNil(t, r.RefundedAt)
}

// TestRefundService_ConcurrentRefundsNeverExceedCap drives property 5:
// under concurrent refund attempts the cumulative active sum never
// exceeds the payment amount, regardless of how many requests land.
func TestRefundService_ConcurrentRefundsNeverExceedCap(t *testing.T) {
	svc, _, payment := setupRefundService(t)

	const n = 5
	amount := int64(300) // 5 * 300 = 1500 > payment.Amount (1000)
	var wg sync.WaitGroup
	successes := make([]bool, n)

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			amt := amount
			_, err := svc.CreateRefund(context.Background(), payment.AppID, usecases.CreateRefundRequest{PaymentID: payment.ID, Amount: &amt})
			successes[i] = err == nil
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, ok := range successes {
		if ok {
			succeeded++
		}
	}
	assert.LessOrEqual(t, succeeded*int(amount), int(payment.Amount)+int(amount)-1)
	assert.True(t, succeeded <= 3, "at most 3 of 5 concurrent 300-unit refunds can fit in a 1000-unit cap")
}

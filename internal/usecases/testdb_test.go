package usecases_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	"github.com/liuyulin-1024/payment-gateway/internal/domain/provider"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")
	require.NoError(t, db.AutoMigrate(
		&entities.App{},
		&entities.Payment{},
		&entities.Refund{},
		&entities.Callback{},
		&entities.WebhookDelivery{},
	), "automigrate")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Serialize connections: sqlite handles one writer at a time even
	// in-memory with a shared cache, and the concurrency tests rely on
	// the busy-timeout (not a second connection) to observe the retry.
	sqlDB.SetMaxOpenConns(1)

	return db
}

// fakeProvider is a deterministic, in-memory stand-in for a real provider
// SDK, used so the service-layer tests exercise the contract in
// domain/provider without reaching any network.
type fakeProvider struct {
	mu            sync.Mutex
	name          entities.Provider
	nextTxnID     int
	createErr     error
	refundStatus  provider.RefundStatusValue
	cancelable    bool
	lastCreateReq provider.CreatePaymentRequest
}

func newFakeProvider(name entities.Provider) *fakeProvider {
	return &fakeProvider{name: name, refundStatus: provider.RefundValueSucceeded, cancelable: true}
}

func (p *fakeProvider) Name() entities.Provider { return p.name }

func (p *fakeProvider) CreatePayment(ctx context.Context, req provider.CreatePaymentRequest) (*provider.CreatePaymentResult, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.mu.Lock()
	p.nextTxnID++
	p.lastCreateReq = req
	id := fmt.Sprintf("%s_txn_%d", p.name, p.nextTxnID)
	p.mu.Unlock()
	return &provider.CreatePaymentResult{Type: provider.SceneRedirect, Payload: "https://pay.example/" + id, ProviderTxnID: id}, nil
}

func (p *fakeProvider) CancelPayment(ctx context.Context, merchantOrderNo, providerTxnID string) (*provider.CancelResult, error) {
	if !p.cancelable {
		return &provider.CancelResult{Success: false, Detail: "cannot cancel in current state"}, nil
	}
	return &provider.CancelResult{Success: true}, nil
}

func (p *fakeProvider) CreateRefund(ctx context.Context, req provider.CreateRefundRequest) (*provider.RefundResult, error) {
	amount := req.RefundAmount
	var amt int64
	if amount != nil {
		amt = *amount
	}
	return &provider.RefundResult{
		ProviderRefundID: fmt.Sprintf("%s_refund_%s", p.name, req.ProviderTxnID),
		Status:           p.refundStatus,
		Amount:           amt,
		Currency:         req.Currency,
	}, nil
}

func (p *fakeProvider) GetRefund(ctx context.Context, providerRefundID string) (*provider.RefundResult, error) {
	return &provider.RefundResult{ProviderRefundID: providerRefundID, Status: p.refundStatus}, nil
}

func (p *fakeProvider) ParseAndVerifyCallback(ctx context.Context, headers map[string]string, rawBody []byte) (*provider.CallbackEvent, error) {
	return nil, domainerrors.ErrUnsupported
}

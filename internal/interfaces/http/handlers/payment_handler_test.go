package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	"github.com/liuyulin-1024/payment-gateway/internal/interfaces/http/handlers"
	"github.com/liuyulin-1024/payment-gateway/internal/interfaces/http/middleware"
	"github.com/liuyulin-1024/payment-gateway/internal/usecases"
)

// stubPaymentUsecase satisfies handlers.PaymentUsecase with canned rows,
// so the handler tests never touch a database or provider.
type stubPaymentUsecase struct {
	payments  map[uuid.UUID]*entities.Payment
	byOrder   map[string]*entities.Payment
	createErr error
}

func (s *stubPaymentUsecase) CreateOrGet(ctx context.Context, app *entities.App, req usecases.CreatePaymentRequest) (*entities.Payment, bool, error) {
	if s.createErr != nil {
		return nil, false, s.createErr
	}
	if p, ok := s.byOrder[req.MerchantOrderNo]; ok {
		return p, false, nil
	}
	p := &entities.Payment{
		ID:              uuid.New(),
		AppID:           app.ID,
		MerchantOrderNo: req.MerchantOrderNo,
		Provider:        req.Provider,
		Amount:          req.UnitAmount * req.Quantity,
		Currency:        req.Currency,
		Status:          entities.PaymentStatusPending,
	}
	return p, true, nil
}

func (s *stubPaymentUsecase) GetByID(ctx context.Context, appID, id uuid.UUID) (*entities.Payment, error) {
	p, ok := s.payments[id]
	if !ok || p.AppID != appID {
		return nil, domainerrors.NotFound("payment not found")
	}
	return p, nil
}

func (s *stubPaymentUsecase) GetByMerchantOrderNo(ctx context.Context, appID uuid.UUID, merchantOrderNo string) (*entities.Payment, error) {
	p, ok := s.byOrder[merchantOrderNo]
	if !ok || p.AppID != appID {
		return nil, domainerrors.NotFound("payment not found")
	}
	return p, nil
}

func (s *stubPaymentUsecase) Cancel(ctx context.Context, app *entities.App, paymentID uuid.UUID) (*entities.Payment, error) {
	p, ok := s.payments[paymentID]
	if !ok || p.AppID != app.ID {
		return nil, domainerrors.NotFound("payment not found")
	}
	p.Status = entities.PaymentStatusCanceled
	return p, nil
}

func newPaymentRouter(app *entities.App, stub *stubPaymentUsecase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handlers.NewPaymentHandler(stub)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.AppKey, app)
		c.Next()
	})
	r.POST("/v1/payments", h.CreatePayment)
	r.GET("/v1/payments/:id", h.GetPayment)
	r.POST("/v1/payments/cancel", h.CancelPayment)
	return r
}

func testApp() *entities.App {
	return &entities.App{ID: uuid.New(), Name: "acme", APIKey: "key", IsActive: true}
}

func TestCreatePayment_ReturnsCreatedForNewRow(t *testing.T) {
	app := testApp()
	r := newPaymentRouter(app, &stubPaymentUsecase{byOrder: map[string]*entities.Payment{}})

	body, _ := json.Marshal(gin.H{
		"merchant_order_no": "ord-1",
		"provider":          "stripe",
		"unit_amount":       1000,
		"quantity":          2,
		"currency":          "USD",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/payments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"is_new":true`)
}

func TestCreatePayment_ReturnsOKForExistingRow(t *testing.T) {
	app := testApp()
	existing := &entities.Payment{ID: uuid.New(), AppID: app.ID, MerchantOrderNo: "ord-1", Status: entities.PaymentStatusPending}
	r := newPaymentRouter(app, &stubPaymentUsecase{byOrder: map[string]*entities.Payment{"ord-1": existing}})

	body, _ := json.Marshal(gin.H{
		"merchant_order_no": "ord-1",
		"provider":          "stripe",
		"unit_amount":       1000,
		"currency":          "USD",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/payments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_new":false`)
}

func TestCreatePayment_MissingFieldsIsValidationError(t *testing.T) {
	r := newPaymentRouter(testApp(), &stubPaymentUsecase{byOrder: map[string]*entities.Payment{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/payments", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreatePayment_ConflictPropagates(t *testing.T) {
	stub := &stubPaymentUsecase{createErr: domainerrors.Conflict(4090, "idempotency key reused with different parameters")}
	r := newPaymentRouter(testApp(), stub)

	body, _ := json.Marshal(gin.H{
		"merchant_order_no": "ord-1",
		"provider":          "stripe",
		"unit_amount":       1000,
		"currency":          "USD",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/payments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetPayment_InvalidIDIsBadRequest(t *testing.T) {
	r := newPaymentRouter(testApp(), &stubPaymentUsecase{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/payments/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPayment_OtherAppsRowIsNotFound(t *testing.T) {
	app := testApp()
	foreign := &entities.Payment{ID: uuid.New(), AppID: uuid.New(), MerchantOrderNo: "ord-x"}
	r := newPaymentRouter(app, &stubPaymentUsecase{payments: map[uuid.UUID]*entities.Payment{foreign.ID: foreign}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/payments/"+foreign.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelPayment_HappyPath(t *testing.T) {
	app := testApp()
	p := &entities.Payment{ID: uuid.New(), AppID: app.ID, MerchantOrderNo: "ord-1", Status: entities.PaymentStatusPending}
	r := newPaymentRouter(app, &stubPaymentUsecase{payments: map[uuid.UUID]*entities.Payment{p.ID: p}})

	body, _ := json.Marshal(gin.H{"payment_id": p.ID})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/cancel", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"canceled"`)
}

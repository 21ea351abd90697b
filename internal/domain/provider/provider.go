// Package provider defines the polymorphic boundary the core consumes
// to talk to a third-party payment processor. One concrete adapter
// exists per entities.Provider value; all are built once at startup
// into a Registry keyed by provider tag.
package provider

import (
	"context"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
)

// PaymentSceneType describes the shape of the payload create_payment
// returns, since each provider's checkout flow surfaces a different
// artifact to hand back to the merchant's customer.
type PaymentSceneType string

const (
	SceneRedirect     PaymentSceneType = "redirect"
	SceneForm         PaymentSceneType = "form"
	SceneQR           PaymentSceneType = "qr"
	SceneClientSecret PaymentSceneType = "client_secret"
)

// CreatePaymentRequest is the provider-agnostic input to create_payment.
// ExpireMinutes is always positive by the time an adapter sees it: the
// Payment Service substitutes the configured default when the merchant
// omits it.
type CreatePaymentRequest struct {
	MerchantOrderNo string
	Currency        entities.Currency
	UnitAmount      int64
	Quantity        int64
	NotifyURL       string
	ExpireMinutes   int
	ProductName     string
	ProductDesc     string
	Metadata        map[string]string
}

// CreatePaymentResult is the provider-agnostic output of create_payment.
type CreatePaymentResult struct {
	Type          PaymentSceneType
	Payload       string
	ProviderTxnID string
}

// CancelResult is the outcome of a cancel_payment call. Success is false
// (not an error) when the provider reports the transaction cannot be
// canceled in its current state.
type CancelResult struct {
	Success bool
	Detail  string
}

// RefundStatusValue is the provider-reported state of a refund, prior to
// being mapped onto entities.RefundStatus by the Refund Service.
type RefundStatusValue string

const (
	RefundValueSucceeded RefundStatusValue = "succeeded"
	RefundValuePending   RefundStatusValue = "pending"
	RefundValueFailed    RefundStatusValue = "failed"
)

// CreateRefundRequest is the provider-agnostic input to create_refund.
// RefundAmount nil means full refund of the original transaction.
// TotalAmount is the original transaction amount in minor units; WeChat
// Pay requires it alongside the refund amount, and it doubles as the
// effective amount when RefundAmount is nil.
type CreateRefundRequest struct {
	ProviderTxnID string
	RefundAmount  *int64
	TotalAmount   int64
	Currency      entities.Currency
	Reason        string
}

// RefundResult is the provider-agnostic output of create_refund / get_refund.
type RefundResult struct {
	ProviderRefundID string
	Status           RefundStatusValue
	Amount           int64
	Currency         entities.Currency
	Raw              string
}

// CallbackEvent is the canonical shape parse_and_verify_callback produces
// once a provider-specific inbound notification has been verified and
// classified.
type CallbackEvent struct {
	Provider        entities.Provider
	ProviderEventID string
	ProviderTxnID   string
	MerchantOrderNo string
	// ProviderRefundID is set only for refund_* outcomes.
	ProviderRefundID string
	Outcome          entities.Outcome
	RawPayload       string
}

// Provider is the capability set every adapter variant implements.
type Provider interface {
	Name() entities.Provider
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error)
	CancelPayment(ctx context.Context, merchantOrderNo, providerTxnID string) (*CancelResult, error)
	CreateRefund(ctx context.Context, req CreateRefundRequest) (*RefundResult, error)
	GetRefund(ctx context.Context, providerRefundID string) (*RefundResult, error)
	ParseAndVerifyCallback(ctx context.Context, headers map[string]string, rawBody []byte) (*CallbackEvent, error)
}

// Registry resolves a Provider implementation by its tag, built once at
// startup from configuration. No global mutable singleton is used.
type Registry map[entities.Provider]Provider

func (r Registry) Get(name entities.Provider) (Provider, bool) {
	p, ok := r[name]
	return p, ok
}

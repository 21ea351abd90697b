package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/liuyulin-1024/payment-gateway/internal/config"
	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	"github.com/liuyulin-1024/payment-gateway/internal/domain/provider"
)

// StripeAdapter implements provider.Provider against stripe-go v76.
type StripeAdapter struct {
	secretKey     string
	webhookSecret string
}

func NewStripeAdapter(cfg config.StripeConfig) *StripeAdapter {
	stripe.Key = cfg.SecretKey
	return &StripeAdapter{secretKey: cfg.SecretKey, webhookSecret: cfg.WebhookSecret}
}

func (a *StripeAdapter) Name() entities.Provider { return entities.ProviderStripe }

func (a *StripeAdapter) CreatePayment(ctx context.Context, req provider.CreatePaymentRequest) (*provider.CreatePaymentResult, error) {
	amount := req.UnitAmount * req.Quantity
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(string(req.Currency)),
		Metadata: map[string]string{
			"merchant_order_no": req.MerchantOrderNo,
		},
	}
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, domainerrors.ProviderError(5010, "stripe: failed to create payment intent", err)
	}

	return &provider.CreatePaymentResult{
		Type:          provider.SceneClientSecret,
		Payload:       pi.ClientSecret,
		ProviderTxnID: pi.ID,
	}, nil
}

func (a *StripeAdapter) CancelPayment(ctx context.Context, merchantOrderNo, providerTxnID string) (*provider.CancelResult, error) {
	if providerTxnID == "" {
		return &provider.CancelResult{Success: false, Detail: "no provider transaction id on record"}, nil
	}
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := paymentintent.Cancel(providerTxnID, params)
	if err != nil {
		if stripeErr, ok := err.(*stripe.Error); ok && stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			return &provider.CancelResult{Success: false, Detail: stripeErr.Msg}, nil
		}
		return nil, domainerrors.ProviderError(5011, "stripe: failed to cancel payment intent", err)
	}
	return &provider.CancelResult{Success: true}, nil
}

func (a *StripeAdapter) CreateRefund(ctx context.Context, req provider.CreateRefundRequest) (*provider.RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.ProviderTxnID),
	}
	if req.RefundAmount != nil {
		params.Amount = stripe.Int64(*req.RefundAmount)
	}
	if req.Reason != "" {
		params.Metadata = map[string]string{"reason": req.Reason}
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		return nil, domainerrors.ProviderError(5012, "stripe: failed to create refund", err)
	}

	return &provider.RefundResult{
		ProviderRefundID: r.ID,
		Status:           mapStripeRefundStatus(r.Status),
		Amount:           r.Amount,
		Currency:         entities.Currency(string(r.Currency)),
	}, nil
}

func (a *StripeAdapter) GetRefund(ctx context.Context, providerRefundID string) (*provider.RefundResult, error) {
	params := &stripe.RefundParams{}
	params.Context = ctx
	r, err := refund.Get(providerRefundID, params)
	if err != nil {
		return nil, domainerrors.ProviderError(5002, "stripe: failed to fetch refund", err)
	}
	return &provider.RefundResult{
		ProviderRefundID: r.ID,
		Status:           mapStripeRefundStatus(r.Status),
		Amount:           r.Amount,
		Currency:         entities.Currency(string(r.Currency)),
	}, nil
}

func (a *StripeAdapter) ParseAndVerifyCallback(ctx context.Context, headers map[string]string, rawBody []byte) (*provider.CallbackEvent, error) {
	sig := headers["Stripe-Signature"]
	event, err := webhook.ConstructEvent(rawBody, sig, a.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrSignature, err.Error())
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := unmarshalStripeObject(event.Data.Object, &pi); err != nil {
			return nil, fmt.Errorf("%w: unmarshal payment_intent: %s", domainerrors.ErrUnsupported, err.Error())
		}
		return a.paymentCallbackEvent(event.ID, pi.ID, pi.Metadata["merchant_order_no"], entities.OutcomeSucceeded, rawBody), nil
	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := unmarshalStripeObject(event.Data.Object, &pi); err != nil {
			return nil, fmt.Errorf("%w: unmarshal payment_intent: %s", domainerrors.ErrUnsupported, err.Error())
		}
		return a.paymentCallbackEvent(event.ID, pi.ID, pi.Metadata["merchant_order_no"], entities.OutcomeFailed, rawBody), nil
	case "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := unmarshalStripeObject(event.Data.Object, &pi); err != nil {
			return nil, fmt.Errorf("%w: unmarshal payment_intent: %s", domainerrors.ErrUnsupported, err.Error())
		}
		return a.paymentCallbackEvent(event.ID, pi.ID, pi.Metadata["merchant_order_no"], entities.OutcomeCanceled, rawBody), nil
	case "charge.refunded", "refund.updated":
		var r stripe.Refund
		if err := unmarshalStripeObject(event.Data.Object, &r); err != nil {
			return nil, fmt.Errorf("%w: unmarshal refund: %s", domainerrors.ErrUnsupported, err.Error())
		}
		outcome, ok := mapStripeRefundOutcome(r.Status)
		if !ok {
			return nil, fmt.Errorf("%w: stripe refund status %q", domainerrors.ErrUnsupported, r.Status)
		}
		paymentIntentID := ""
		if r.PaymentIntent != nil {
			paymentIntentID = r.PaymentIntent.ID
		}
		return &provider.CallbackEvent{
			Provider:         entities.ProviderStripe,
			ProviderEventID:  event.ID,
			ProviderTxnID:    paymentIntentID,
			ProviderRefundID: r.ID,
			Outcome:          outcome,
			RawPayload:       string(rawBody),
		}, nil
	default:
		return nil, fmt.Errorf("%w: stripe event type %q", domainerrors.ErrUnsupported, event.Type)
	}
}

func (a *StripeAdapter) paymentCallbackEvent(eventID, providerTxnID, merchantOrderNo string, outcome entities.Outcome, rawBody []byte) *provider.CallbackEvent {
	return &provider.CallbackEvent{
		Provider:        entities.ProviderStripe,
		ProviderEventID: eventID,
		ProviderTxnID:   providerTxnID,
		MerchantOrderNo: merchantOrderNo,
		Outcome:         outcome,
		RawPayload:      string(rawBody),
	}
}

func unmarshalStripeObject(obj map[string]interface{}, v interface{}) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func mapStripeRefundStatus(status stripe.RefundStatus) provider.RefundStatusValue {
	switch status {
	case stripe.RefundStatusSucceeded:
		return provider.RefundValueSucceeded
	case stripe.RefundStatusFailed:
		return provider.RefundValueFailed
	default:
		return provider.RefundValuePending
	}
}

func mapStripeRefundOutcome(status stripe.RefundStatus) (entities.Outcome, bool) {
	switch status {
	case stripe.RefundStatusSucceeded:
		return entities.OutcomeRefundSucceeded, true
	case stripe.RefundStatusFailed:
		return entities.OutcomeRefundFailed, true
	case stripe.RefundStatusPending:
		return entities.OutcomeRefundPending, true
	case stripe.RefundStatusCanceled:
		return entities.OutcomeRefundCanceled, true
	default:
		return "", false
	}
}

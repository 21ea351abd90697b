package providers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/alipay"
	"github.com/google/uuid"

	"github.com/liuyulin-1024/payment-gateway/internal/config"
	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	"github.com/liuyulin-1024/payment-gateway/internal/domain/provider"
)

// AlipayAdapter implements provider.Provider against github.com/go-pay/gopay/alipay.
type AlipayAdapter struct {
	client    *alipay.Client
	publicKey string
}

func NewAlipayAdapter(cfg config.AlipayConfig) (*AlipayAdapter, error) {
	client, err := alipay.NewClient(cfg.AppID, cfg.PrivateKey, !cfg.Sandbox)
	if err != nil {
		return nil, fmt.Errorf("create alipay client: %w", err)
	}
	client.AutoVerifySign([]byte(cfg.PublicKey))
	return &AlipayAdapter{client: client, publicKey: cfg.PublicKey}, nil
}

func (a *AlipayAdapter) Name() entities.Provider { return entities.ProviderAlipay }

// CreatePayment dispatches to the checkout flow requested via
// req.Metadata["scene"] (page|wap|app|qr); page (TradePagePay) is the
// default when no scene is given, and qr uses precreate.
func (a *AlipayAdapter) CreatePayment(ctx context.Context, req provider.CreatePaymentRequest) (*provider.CreatePaymentResult, error) {
	amount := req.UnitAmount * req.Quantity
	amountStr := fmt.Sprintf("%.2f", float64(amount)/100)

	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", req.MerchantOrderNo)
	bm.Set("total_amount", amountStr)
	bm.Set("subject", req.ProductName)
	bm.Set("timeout_express", fmt.Sprintf("%dm", req.ExpireMinutes))
	if req.ProductDesc != "" {
		bm.Set("body", req.ProductDesc)
	}
	if req.NotifyURL != "" {
		bm.Set("notify_url", req.NotifyURL)
	}

	scene := req.Metadata["scene"]
	switch scene {
	case "page", "":
		bm.Set("product_code", "FAST_INSTANT_TRADE_PAY")
		payURL, err := a.client.TradePagePay(ctx, bm)
		if err != nil {
			return nil, domainerrors.ProviderError(5020, "alipay: failed to create page payment", err)
		}
		return &provider.CreatePaymentResult{Type: provider.SceneRedirect, Payload: payURL}, nil
	case "wap":
		bm.Set("product_code", "QUICK_WAP_WAY")
		payURL, err := a.client.TradeWapPay(ctx, bm)
		if err != nil {
			return nil, domainerrors.ProviderError(5020, "alipay: failed to create wap payment", err)
		}
		return &provider.CreatePaymentResult{Type: provider.SceneRedirect, Payload: payURL}, nil
	case "app":
		bm.Set("product_code", "QUICK_MSECURITY_PAY")
		payStr, err := a.client.TradeAppPay(ctx, bm)
		if err != nil {
			return nil, domainerrors.ProviderError(5020, "alipay: failed to create app payment", err)
		}
		return &provider.CreatePaymentResult{Type: provider.SceneForm, Payload: payStr}, nil
	case "qr":
		bm.Set("product_code", "FACE_TO_FACE_PAYMENT")
		resp, err := a.client.TradePrecreate(ctx, bm)
		if err != nil {
			return nil, domainerrors.ProviderError(5020, "alipay: failed to create qr payment", err)
		}
		if resp.Response.Code != "10000" {
			return nil, domainerrors.ProviderError(5020, fmt.Sprintf("alipay error: %s - %s", resp.Response.Code, resp.Response.Msg), nil)
		}
		return &provider.CreatePaymentResult{Type: provider.SceneQR, Payload: resp.Response.QrCode}, nil
	default:
		return nil, domainerrors.BadRequest(4006, fmt.Sprintf("unsupported alipay scene %q", scene))
	}
}

func (a *AlipayAdapter) CancelPayment(ctx context.Context, merchantOrderNo, providerTxnID string) (*provider.CancelResult, error) {
	bm := make(gopay.BodyMap)
	if providerTxnID != "" {
		bm.Set("trade_no", providerTxnID)
	} else {
		bm.Set("out_trade_no", merchantOrderNo)
	}
	resp, err := a.client.TradeClose(ctx, bm)
	if err != nil {
		return nil, domainerrors.ProviderError(5021, "alipay: failed to close trade", err)
	}
	if resp.Response.Code != "10000" {
		return &provider.CancelResult{Success: false, Detail: resp.Response.Msg}, nil
	}
	return &provider.CancelResult{Success: true}, nil
}

// CreateRefund issues a synchronous refund via trade.refund. Alipay has
// no server-side refund id of its own; out_request_no is the refund's
// identity, so the returned ProviderRefundID is "{trade_no}:{out_request_no}"
// — both halves are needed to query the refund later.
func (a *AlipayAdapter) CreateRefund(ctx context.Context, req provider.CreateRefundRequest) (*provider.RefundResult, error) {
	if req.ProviderTxnID == "" {
		return nil, domainerrors.ServiceUnavailable(5031, "alipay refund requires a provider transaction id on record")
	}
	amount := req.TotalAmount
	if req.RefundAmount != nil {
		amount = *req.RefundAmount
	}
	outRequestNo := uuid.NewString()

	bm := make(gopay.BodyMap)
	bm.Set("trade_no", req.ProviderTxnID)
	bm.Set("refund_amount", fmt.Sprintf("%.2f", float64(amount)/100))
	bm.Set("out_request_no", outRequestNo)
	if req.Reason != "" {
		bm.Set("refund_reason", req.Reason)
	}

	resp, err := a.client.TradeRefund(ctx, bm)
	if err != nil {
		return nil, domainerrors.ProviderError(5022, "alipay: failed to create refund", err)
	}
	if resp.Response.Code != "10000" {
		return nil, domainerrors.ProviderError(5022, fmt.Sprintf("alipay refund error: %s - %s", resp.Response.Code, resp.Response.Msg), nil)
	}

	refundFee, _ := strconv.ParseFloat(resp.Response.RefundFee, 64)
	return &provider.RefundResult{
		ProviderRefundID: resp.Response.TradeNo + ":" + outRequestNo,
		Status:           provider.RefundValueSucceeded,
		Amount:           int64(refundFee * 100),
		Currency:         req.Currency,
	}, nil
}

func (a *AlipayAdapter) GetRefund(ctx context.Context, providerRefundID string) (*provider.RefundResult, error) {
	tradeNo, outRequestNo, ok := strings.Cut(providerRefundID, ":")
	if !ok {
		return nil, domainerrors.BadRequest(4000, "malformed alipay refund id")
	}

	bm := make(gopay.BodyMap)
	bm.Set("trade_no", tradeNo)
	bm.Set("out_request_no", outRequestNo)

	resp, err := a.client.TradeFastPayRefundQuery(ctx, bm)
	if err != nil {
		return nil, domainerrors.ProviderError(5023, "alipay: failed to query refund", err)
	}
	if resp.Response.Code != "10000" {
		return nil, domainerrors.ProviderError(5023, fmt.Sprintf("alipay refund query error: %s - %s", resp.Response.Code, resp.Response.Msg), nil)
	}

	status := provider.RefundValuePending
	if resp.Response.RefundStatus == "REFUND_SUCCESS" {
		status = provider.RefundValueSucceeded
	}
	refundAmt, _ := strconv.ParseFloat(resp.Response.RefundAmount, 64)
	return &provider.RefundResult{
		ProviderRefundID: providerRefundID,
		Status:           status,
		Amount:           int64(refundAmt * 100),
	}, nil
}

func (a *AlipayAdapter) ParseAndVerifyCallback(ctx context.Context, headers map[string]string, rawBody []byte) (*provider.CallbackEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(rawBody))
	if err != nil {
		return nil, fmt.Errorf("alipay: build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	notifyReq, err := alipay.ParseNotifyToBodyMap(req)
	if err != nil {
		return nil, fmt.Errorf("%w: alipay parse notify: %s", domainerrors.ErrSignature, err.Error())
	}

	ok, err := alipay.VerifySign(a.publicKey, notifyReq)
	if err != nil {
		return nil, fmt.Errorf("%w: alipay verify sign: %s", domainerrors.ErrSignature, err.Error())
	}
	if !ok {
		return nil, fmt.Errorf("%w: alipay invalid signature", domainerrors.ErrSignature)
	}

	outcome, ok := mapAlipayTradeOutcome(notifyReq.Get("trade_status"))
	if !ok {
		return nil, fmt.Errorf("%w: alipay trade_status %q", domainerrors.ErrUnsupported, notifyReq.Get("trade_status"))
	}

	return &provider.CallbackEvent{
		Provider:        entities.ProviderAlipay,
		ProviderEventID: notifyReq.Get("notify_id"),
		ProviderTxnID:   notifyReq.Get("trade_no"),
		MerchantOrderNo: notifyReq.Get("out_trade_no"),
		Outcome:         outcome,
		RawPayload:      string(rawBody),
	}, nil
}

func mapAlipayTradeOutcome(status string) (entities.Outcome, bool) {
	switch status {
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		return entities.OutcomeSucceeded, true
	case "TRADE_CLOSED":
		return entities.OutcomeCanceled, true
	case "WAIT_BUYER_PAY":
		return entities.OutcomePending, true
	default:
		return "", false
	}
}

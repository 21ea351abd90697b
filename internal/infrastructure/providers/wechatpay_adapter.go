package providers

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"time"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/wechat/v3"
	"github.com/google/uuid"

	"github.com/liuyulin-1024/payment-gateway/internal/config"
	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
	domainerrors "github.com/liuyulin-1024/payment-gateway/internal/domain/errors"
	"github.com/liuyulin-1024/payment-gateway/internal/domain/provider"
)

// WeChatPayAdapter implements provider.Provider against
// github.com/go-pay/gopay/wechat/v3. Signature verification and
// resource decryption of inbound notifications is delegated to the SDK
// (VerifySignByPK / DecryptPayCipherText), which already performs the
// platform-signature check and AES-256-GCM decryption this contract
// requires, rather than hand-rolling crypto/aes + crypto/cipher.
type WeChatPayAdapter struct {
	client       *wechat.ClientV3
	apiV3Key     string
	platformCert string
	serialNo     string
}

func NewWeChatPayAdapter(cfg config.WeChatConfig) (*WeChatPayAdapter, error) {
	client, err := wechat.NewClientV3(cfg.MchID, cfg.SerialNo, cfg.APIV3Key, cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create wechat client: %w", err)
	}
	if cfg.PlatformCert != "" {
		client.SetPlatformCert([]byte(cfg.PlatformCert), cfg.SerialNo)
	}
	return &WeChatPayAdapter{
		client:       client,
		apiV3Key:     cfg.APIV3Key,
		platformCert: cfg.PlatformCert,
		serialNo:     cfg.SerialNo,
	}, nil
}

func (a *WeChatPayAdapter) Name() entities.Provider { return entities.ProviderWeChatPay }

func (a *WeChatPayAdapter) CreatePayment(ctx context.Context, req provider.CreatePaymentRequest) (*provider.CreatePaymentResult, error) {
	amount := req.UnitAmount * req.Quantity
	expireTime := time.Now().Add(time.Duration(req.ExpireMinutes) * time.Minute)

	bm := make(gopay.BodyMap)
	bm.Set("description", req.ProductName)
	bm.Set("out_trade_no", req.MerchantOrderNo)
	bm.Set("time_expire", expireTime.Format(time.RFC3339))
	if req.NotifyURL != "" {
		bm.Set("notify_url", req.NotifyURL)
	}
	bm.SetBodyMap("amount", func(am gopay.BodyMap) {
		am.Set("total", amount)
		am.Set("currency", string(req.Currency))
	})

	resp, err := a.client.V3TransactionNative(ctx, bm)
	if err != nil {
		return nil, domainerrors.ProviderError(5030, "wechatpay: failed to create native transaction", err)
	}
	if resp.Code != wechat.Success {
		return nil, domainerrors.ProviderError(5030, fmt.Sprintf("wechatpay error: %d - %s", resp.Code, resp.Error), nil)
	}

	return &provider.CreatePaymentResult{Type: provider.SceneQR, Payload: resp.Response.CodeUrl}, nil
}

func (a *WeChatPayAdapter) CancelPayment(ctx context.Context, merchantOrderNo, providerTxnID string) (*provider.CancelResult, error) {
	resp, err := a.client.V3TransactionCloseOrder(ctx, merchantOrderNo)
	if err != nil {
		return nil, domainerrors.ProviderError(5021, "wechatpay: failed to close order", err)
	}
	if resp.Code != wechat.Success {
		return &provider.CancelResult{Success: false, Detail: resp.Error}, nil
	}
	return &provider.CancelResult{Success: true}, nil
}

// CreateRefund issues a refund against the V3 refund API. The generated
// out_refund_no is returned as the ProviderRefundID since it is the key
// V3RefundQuery accepts.
func (a *WeChatPayAdapter) CreateRefund(ctx context.Context, req provider.CreateRefundRequest) (*provider.RefundResult, error) {
	if req.ProviderTxnID == "" {
		return nil, domainerrors.ServiceUnavailable(5032, "wechatpay refund requires a provider transaction id on record")
	}
	refundAmount := req.TotalAmount
	if req.RefundAmount != nil {
		refundAmount = *req.RefundAmount
	}
	outRefundNo := uuid.NewString()

	bm := make(gopay.BodyMap)
	bm.Set("transaction_id", req.ProviderTxnID)
	bm.Set("out_refund_no", outRefundNo)
	if req.Reason != "" {
		bm.Set("reason", req.Reason)
	}
	bm.SetBodyMap("amount", func(am gopay.BodyMap) {
		am.Set("refund", refundAmount)
		am.Set("total", req.TotalAmount)
		am.Set("currency", string(req.Currency))
	})

	resp, err := a.client.V3Refund(ctx, bm)
	if err != nil {
		return nil, domainerrors.ProviderError(5032, "wechatpay: failed to create refund", err)
	}
	if resp.Code != wechat.Success {
		return nil, domainerrors.ProviderError(5032, fmt.Sprintf("wechatpay refund error: %d - %s", resp.Code, resp.Error), nil)
	}

	return &provider.RefundResult{
		ProviderRefundID: resp.Response.OutRefundNo,
		Status:           mapWeChatRefundValue(resp.Response.Status),
		Amount:           int64(resp.Response.Amount.Refund),
		Currency:         req.Currency,
	}, nil
}

func (a *WeChatPayAdapter) GetRefund(ctx context.Context, providerRefundID string) (*provider.RefundResult, error) {
	resp, err := a.client.V3RefundQuery(ctx, providerRefundID, nil)
	if err != nil {
		return nil, domainerrors.ProviderError(5033, "wechatpay: failed to query refund", err)
	}
	if resp.Code != wechat.Success {
		return nil, domainerrors.ProviderError(5033, fmt.Sprintf("wechatpay refund query error: %d - %s", resp.Code, resp.Error), nil)
	}
	return &provider.RefundResult{
		ProviderRefundID: resp.Response.OutRefundNo,
		Status:           mapWeChatRefundValue(resp.Response.Status),
		Amount:           int64(resp.Response.Amount.Refund),
	}, nil
}

func mapWeChatRefundValue(status string) provider.RefundStatusValue {
	switch status {
	case "SUCCESS":
		return provider.RefundValueSucceeded
	case "PROCESSING":
		return provider.RefundValuePending
	default:
		return provider.RefundValueFailed
	}
}

func (a *WeChatPayAdapter) ParseAndVerifyCallback(ctx context.Context, headers map[string]string, rawBody []byte) (*provider.CallbackEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(rawBody))
	if err != nil {
		return nil, fmt.Errorf("wechatpay: build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Wechatpay-Timestamp", headers["Wechatpay-Timestamp"])
	req.Header.Set("Wechatpay-Nonce", headers["Wechatpay-Nonce"])
	req.Header.Set("Wechatpay-Signature", headers["Wechatpay-Signature"])
	req.Header.Set("Wechatpay-Serial", headers["Wechatpay-Serial"])

	notifyReq, err := wechat.V3ParseNotify(req)
	if err != nil {
		return nil, fmt.Errorf("%w: wechatpay parse notify: %s", domainerrors.ErrSignature, err.Error())
	}

	platformKey, err := parseRSAPublicKey(a.platformCert)
	if err != nil {
		return nil, fmt.Errorf("%w: wechatpay parse platform cert: %s", domainerrors.ErrSignature, err.Error())
	}
	if err := notifyReq.VerifySignByPK(platformKey); err != nil {
		return nil, fmt.Errorf("%w: wechatpay verify sign: %s", domainerrors.ErrSignature, err.Error())
	}

	resource, err := notifyReq.DecryptPayCipherText(a.apiV3Key)
	if err != nil {
		return nil, fmt.Errorf("%w: wechatpay decrypt resource: %s", domainerrors.ErrSignature, err.Error())
	}

	outcome, ok := mapWeChatTradeOutcome(resource.TradeState)
	if !ok {
		return nil, fmt.Errorf("%w: wechatpay trade_state %q", domainerrors.ErrUnsupported, resource.TradeState)
	}

	return &provider.CallbackEvent{
		Provider:        entities.ProviderWeChatPay,
		ProviderEventID: notifyReq.Id,
		ProviderTxnID:   resource.TransactionId,
		MerchantOrderNo: resource.OutTradeNo,
		Outcome:         outcome,
		RawPayload:      string(rawBody),
	}, nil
}

func mapWeChatTradeOutcome(state string) (entities.Outcome, bool) {
	switch state {
	case "SUCCESS":
		return entities.OutcomeSucceeded, true
	case "CLOSED", "REVOKED":
		return entities.OutcomeCanceled, true
	case "PAYERROR":
		return entities.OutcomeFailed, true
	case "NOTPAY", "USERPAYING":
		return entities.OutcomePending, true
	default:
		return "", false
	}
}

// parseRSAPublicKey parses a PEM-encoded platform certificate or PKIX
// public key, mirroring the handling the WeChat Pay V3 SDK requires for
// VerifySignByPK since the platform cert endpoint returns a certificate,
// not a bare public key.
func parseRSAPublicKey(pemKey string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("decode PEM block")
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		if rsaKey, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("certificate does not contain an RSA public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaKey, nil
}

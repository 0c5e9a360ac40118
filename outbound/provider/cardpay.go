package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"ticket-reservation/common/constant"
	"ticket-reservation/common/errs"
	"time"

	"github.com/spf13/viper"
)

// CardPay is the hosted card checkout gateway. Sessions are created over
// its JSON API and the buyer is redirected to the hosted payment page;
// confirmations arrive as signed webhooks.
type CardPay struct {
	baseUrl string
	apiKey  string
	secret  string

	client *http.Client
}

func NewCardPay(cfg *viper.Viper, client *http.Client) *CardPay {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &CardPay{
		baseUrl: cfg.GetString("provider.cardpay.base_url"),
		apiKey:  cfg.GetString("provider.cardpay.api_key"),
		secret:  cfg.GetString("provider.cardpay.secret"),
		client:  client,
	}
}

func (p *CardPay) Name() string { return "cardpay" }

type cardPaySessionRequest struct {
	Reference   string `json:"reference"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	BuyerName   string `json:"buyer_name"`
	BuyerEmail  string `json:"buyer_email"`
	ExpiresAt   string `json:"expires_at"`
}

type cardPaySessionResponse struct {
	Token       string `json:"token"`
	RedirectUrl string `json:"redirect_url"`
}

func (p *CardPay) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	body, err := json.Marshal(cardPaySessionRequest{
		Reference:   req.PaymentID,
		AmountMinor: req.AmountMinor,
		Currency:    "IDR",
		BuyerName:   req.BuyerName,
		BuyerEmail:  req.BuyerEmail,
		ExpiresAt:   req.ExpiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Session{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseUrl+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return Session{}, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("X-Idempotency-Key", req.IdempotencyKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Session{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Session{}, fmt.Errorf("cardpay create session: unexpected status %d", resp.StatusCode)
	}

	var sessionResp cardPaySessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sessionResp); err != nil {
		return Session{}, err
	}

	return Session{ProviderRef: sessionResp.Token, RedirectUrl: sessionResp.RedirectUrl}, nil
}

type cardPayStatusResponse struct {
	Status string `json:"status"`
}

func (p *CardPay) GetStatus(ctx context.Context, providerRef string) (Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseUrl+"/v1/sessions/"+providerRef, nil)
	if err != nil {
		return Status{}, err
	}

	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Status{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("cardpay get status: unexpected status %d", resp.StatusCode)
	}

	var statusResp cardPayStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		return Status{}, err
	}

	return p.MapStatus(statusResp.Status), nil
}

func (p *CardPay) MapStatus(raw string) Status {
	st := Status{Raw: raw}

	switch raw {
	case "capture", "settlement":
		st.Local = constant.PaymentStatusPaid
	case "deny":
		st.Local = constant.PaymentStatusFailed
	case "cancel", "expire":
		st.Local = constant.PaymentStatusCancelled
	default:
		st.Local = constant.PaymentStatusPending
	}

	return st
}

func (p *CardPay) DecodeCallback(params url.Values) (Callback, error) {
	if !VerifyParams(p.secret, params) {
		return Callback{}, errs.ErrProviderSignature
	}

	ref := params.Get("token")
	if ref == "" {
		return Callback{}, fmt.Errorf("cardpay callback: missing token")
	}

	return Callback{ProviderRef: ref, RawStatus: params.Get("status")}, nil
}

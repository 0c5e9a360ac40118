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

// VaBank is the bank-transfer provider: a virtual account number is
// issued per payment and the buyer is redirected to the bank's payment
// page. Confirmation arrives via webhook and via the signed return
// redirect.
type VaBank struct {
	baseUrl string
	apiKey  string
	secret  string

	client *http.Client
}

func NewVaBank(cfg *viper.Viper, client *http.Client) *VaBank {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &VaBank{
		baseUrl: cfg.GetString("provider.vabank.base_url"),
		apiKey:  cfg.GetString("provider.vabank.api_key"),
		secret:  cfg.GetString("provider.vabank.secret"),
		client:  client,
	}
}

func (p *VaBank) Name() string { return "vabank" }

type vaBankSessionRequest struct {
	OrderRef    string `json:"order_ref"`
	AmountMinor int64  `json:"amount_minor"`
	CustomerKey string `json:"customer_key"`
	ValidUntil  string `json:"valid_until"`
}

type vaBankSessionResponse struct {
	VaNumber    string `json:"va_number"`
	RedirectUrl string `json:"redirect_url"`
}

func (p *VaBank) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	body, err := json.Marshal(vaBankSessionRequest{
		OrderRef:    req.PaymentID,
		AmountMinor: req.AmountMinor,
		CustomerKey: req.IdempotencyKey,
		ValidUntil:  req.ExpiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Session{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseUrl+"/api/v2/virtual-accounts", bytes.NewReader(body))
	if err != nil {
		return Session{}, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Session{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Session{}, fmt.Errorf("vabank create session: unexpected status %d", resp.StatusCode)
	}

	var sessionResp vaBankSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sessionResp); err != nil {
		return Session{}, err
	}

	return Session{ProviderRef: sessionResp.VaNumber, RedirectUrl: sessionResp.RedirectUrl}, nil
}

type vaBankStatusResponse struct {
	PaymentStatus string `json:"payment_status"`
}

func (p *VaBank) GetStatus(ctx context.Context, providerRef string) (Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseUrl+"/api/v2/virtual-accounts/"+providerRef, nil)
	if err != nil {
		return Status{}, err
	}

	httpReq.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Status{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("vabank get status: unexpected status %d", resp.StatusCode)
	}

	var statusResp vaBankStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		return Status{}, err
	}

	return p.MapStatus(statusResp.PaymentStatus), nil
}

func (p *VaBank) MapStatus(raw string) Status {
	st := Status{Raw: raw}

	switch raw {
	case "PAID", "COMPLETED":
		st.Local = constant.PaymentStatusPaid
	case "REJECTED":
		st.Local = constant.PaymentStatusFailed
	case "EXPIRED", "VOID":
		st.Local = constant.PaymentStatusCancelled
	default:
		st.Local = constant.PaymentStatusPending
	}

	return st
}

func (p *VaBank) DecodeCallback(params url.Values) (Callback, error) {
	if !VerifyParams(p.secret, params) {
		return Callback{}, errs.ErrProviderSignature
	}

	ref := params.Get("va_number")
	if ref == "" {
		return Callback{}, fmt.Errorf("vabank callback: missing va_number")
	}

	return Callback{ProviderRef: ref, RawStatus: params.Get("payment_status")}, nil
}

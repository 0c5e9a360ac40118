package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"ticket-reservation/common/constant"
	"ticket-reservation/common/errs"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestVaBankCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/virtual-accounts", r.URL.Path)
		require.Equal(t, "apikey", r.Header.Get("X-Api-Key"))

		var req vaBankSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "PAY1", req.OrderRef)
		require.Equal(t, "HOLD1:PAY1", req.CustomerKey)

		json.NewEncoder(w).Encode(vaBankSessionResponse{
			VaNumber:    "8808123456",
			RedirectUrl: "https://vabank.example/va/8808123456",
		})
	}))
	defer srv.Close()

	cfg := viper.New()
	cfg.Set("provider.vabank.base_url", srv.URL)
	cfg.Set("provider.vabank.api_key", "apikey")
	cfg.Set("provider.vabank.secret", "secret")

	p := NewVaBank(cfg, srv.Client())

	session, err := p.CreateSession(context.Background(), SessionRequest{
		PaymentID:      "PAY1",
		HoldID:         "HOLD1",
		AmountMinor:    350000,
		ExpiresAt:      time.Now().Add(8 * time.Minute),
		IdempotencyKey: IdempotencyKey("HOLD1", "PAY1"),
	})

	require.NoError(t, err)
	require.Equal(t, "8808123456", session.ProviderRef)
}

func TestVaBankMapStatus(t *testing.T) {
	p := &VaBank{}

	tests := []struct {
		raw      string
		expected string
	}{
		{"PAID", constant.PaymentStatusPaid},
		{"COMPLETED", constant.PaymentStatusPaid},
		{"REJECTED", constant.PaymentStatusFailed},
		{"EXPIRED", constant.PaymentStatusCancelled},
		{"VOID", constant.PaymentStatusCancelled},
		{"WAITING", constant.PaymentStatusPending},
		{"", constant.PaymentStatusPending},
	}

	for _, tc := range tests {
		require.Equal(t, tc.expected, p.MapStatus(tc.raw).Local, "raw status %q", tc.raw)
	}
}

func TestVaBankDecodeCallback(t *testing.T) {
	p := &VaBank{secret: "secret"}

	params := url.Values{}
	params.Set("va_number", "8808123456")
	params.Set("payment_status", "PAID")
	params.Set("signature", SignParams("secret", params))

	cb, err := p.DecodeCallback(params)
	require.NoError(t, err)
	require.Equal(t, "8808123456", cb.ProviderRef)
	require.Equal(t, "PAID", cb.RawStatus)

	params.Set("payment_status", "COMPLETED")
	_, err = p.DecodeCallback(params)
	require.ErrorIs(t, err, errs.ErrProviderSignature)
}

package provider

import (
	"context"
	"fmt"
	"net/url"
	"ticket-reservation/common/constant"
	"ticket-reservation/common/errs"

	"github.com/spf13/viper"
)

// Manual covers manual bank transfers: no external gateway is involved.
// The buyer is shown transfer instructions and an operator confirms the
// payment through a shared-secret signed callback.
type Manual struct {
	instructionsUrl string
	secret          string
}

func NewManual(cfg *viper.Viper) *Manual {
	return &Manual{
		instructionsUrl: cfg.GetString("provider.manual.instructions_url"),
		secret:          cfg.GetString("provider.manual.secret"),
	}
}

func (p *Manual) Name() string { return "manual" }

func (p *Manual) CreateSession(_ context.Context, req SessionRequest) (Session, error) {
	return Session{
		ProviderRef: "MAN-" + req.PaymentID,
		RedirectUrl: fmt.Sprintf("%s?payment_id=%s", p.instructionsUrl, req.PaymentID),
	}, nil
}

// GetStatus always reports PENDING; a manual transfer can only be
// confirmed by the operator callback.
func (p *Manual) GetStatus(_ context.Context, providerRef string) (Status, error) {
	return Status{Local: constant.PaymentStatusPending, Raw: "awaiting_confirmation"}, nil
}

func (p *Manual) MapStatus(raw string) Status {
	st := Status{Raw: raw}

	switch raw {
	case "confirmed":
		st.Local = constant.PaymentStatusPaid
	case "rejected":
		st.Local = constant.PaymentStatusFailed
	default:
		st.Local = constant.PaymentStatusPending
	}

	return st
}

func (p *Manual) DecodeCallback(params url.Values) (Callback, error) {
	if !VerifyParams(p.secret, params) {
		return Callback{}, errs.ErrProviderSignature
	}

	ref := params.Get("ref")
	if ref == "" {
		return Callback{}, fmt.Errorf("manual callback: missing ref")
	}

	return Callback{ProviderRef: ref, RawStatus: params.Get("status")}, nil
}

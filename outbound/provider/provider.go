package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Session is a provider-side checkout created for one payment.
type Session struct {
	ProviderRef string
	RedirectUrl string
}

// Status carries the provider's raw status code and its mapping onto the
// payment status enum. Unknown codes always map to PENDING, never PAID.
type Status struct {
	Local string
	Raw   string
}

// Callback is the decoded, authenticity-checked content of a webhook or
// return-redirect from a provider.
type Callback struct {
	ProviderRef string
	RawStatus   string
}

type SessionRequest struct {
	PaymentID      string
	HoldID         string
	BuyerName      string
	BuyerEmail     string
	AmountMinor    int64
	ExpiresAt      time.Time
	IdempotencyKey string
}

// Adapter is the single contract every payment provider implements. The
// payment store and finalizer depend only on this interface.
type Adapter interface {
	Name() string
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	GetStatus(ctx context.Context, providerRef string) (Status, error)
	MapStatus(raw string) Status
	DecodeCallback(params url.Values) (Callback, error)
}

type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown payment provider %q", name)
	}
	return a, nil
}

// IdempotencyKey derives the provider-level idempotency key so adapter
// retries for the same payment can never create two sessions.
func IdempotencyKey(holdID, paymentID string) string {
	return fmt.Sprintf("%s:%s", holdID, paymentID)
}

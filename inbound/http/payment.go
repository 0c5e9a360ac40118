package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"ticket-reservation/common"
	"ticket-reservation/common/constant"
	"ticket-reservation/common/errs"
	"ticket-reservation/common/otel"
	"ticket-reservation/engine"
	"ticket-reservation/model"
	"ticket-reservation/outbound/provider"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
)

type PaymentHttp struct {
	Payments   *engine.PaymentStore
	Finalizer  *engine.Finalizer
	Reconciler *engine.Reconciler
	Providers  *provider.Registry
	Cache      *redis.Client
	Publisher  jetstream.Publisher
	Validate   *validator.Validate
}

func RegisterPaymentHttp(
	mux *http.ServeMux,
	payments *engine.PaymentStore,
	finalizer *engine.Finalizer,
	reconciler *engine.Reconciler,
	providers *provider.Registry,
	cache *redis.Client,
	publisher jetstream.Publisher,
	validate *validator.Validate,
) *PaymentHttp {
	in := &PaymentHttp{
		Payments:   payments,
		Finalizer:  finalizer,
		Reconciler: reconciler,
		Providers:  providers,
		Cache:      cache,
		Publisher:  publisher,
		Validate:   validate,
	}

	mux.HandleFunc("POST /api/payments/{provider}/create", in.create)
	mux.HandleFunc("POST /api/payments/{provider}/webhook", in.webhook)
	mux.HandleFunc("GET /api/payments/{provider}/return", in.returnRedirect)
	mux.HandleFunc("GET /api/payments/status", in.status)

	return in
}

func (in PaymentHttp) create(w http.ResponseWriter, r *http.Request) {
	var req model.CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	if err := in.Validate.Struct(req); err != nil {
		writeErrorResponse(w, err)
		return
	}

	ctx, span := otel.Tracer.Start(r.Context(), "PaymentHttp.create")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	providerName := r.PathValue("provider")

	slog.InfoContext(ctx, "create payment receive request", slog.Any(constant.LogFieldPayload, req), traceIdAttr)

	// Short-lived duplicate-submit damper; correctness comes from the
	// hold_id uniqueness, not from this lock.
	emailLock, err := in.Cache.SetNX(ctx, fmt.Sprintf(constant.PaymentEmailLock, req.BuyerEmail), true, constant.PaymentEmailLockDefaultTTL).Result()
	if err != nil {
		slog.ErrorContext(ctx, "failed to set email lock", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	if !emailLock {
		slog.DebugContext(ctx, "duplicate payment submit", traceIdAttr)
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusConflict, Message: "Payment already in progress"})
		return
	}

	resp, err := in.Payments.Create(ctx, providerName, req)
	if err != nil {
		slog.DebugContext(ctx, "create payment failed", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	slog.InfoContext(ctx, "create payment success", traceIdAttr, slog.Any(constant.LogFieldResponse, resp.PaymentId))

	writeJSONResponse(w, http.StatusOK, resp)
}

// webhook decodes and authenticates the provider notification, then
// hands the confirmation to the finalize queue. Anything unverifiable is
// rejected without touching state.
func (in PaymentHttp) webhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer.Start(r.Context(), "PaymentHttp.webhook")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	providerName := r.PathValue("provider")

	adapter, err := in.Providers.Get(providerName)
	if err != nil {
		writeErrorResponse(w, errs.ErrUnknownProvider)
		return
	}

	if err := r.ParseForm(); err != nil {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Invalid request"})
		return
	}

	cb, err := adapter.DecodeCallback(r.Form)
	if err != nil {
		if errors.Is(err, errs.ErrProviderSignature) {
			slog.WarnContext(ctx, "webhook signature verification failed", traceIdAttr,
				slog.String("provider", providerName), slog.String("remote_addr", r.RemoteAddr))
		}
		writeErrorResponse(w, err)
		return
	}

	err = common.PublishMessage(ctx, in.Publisher, constant.SubjectPaymentConfirmed, model.PaymentConfirmedEventMessage{
		Provider:    providerName,
		ProviderRef: cb.ProviderRef,
		RawStatus:   cb.RawStatus,
	})
	if err != nil {
		slog.ErrorContext(ctx, "error publish message when webhook received", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		writeErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// returnRedirect is the buyer coming back from the provider page. It
// finalizes synchronously so the buyer sees tickets immediately when the
// payment already settled.
func (in PaymentHttp) returnRedirect(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer.Start(r.Context(), "PaymentHttp.returnRedirect")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)
	providerName := r.PathValue("provider")

	adapter, err := in.Providers.Get(providerName)
	if err != nil {
		writeErrorResponse(w, errs.ErrUnknownProvider)
		return
	}

	cb, err := adapter.DecodeCallback(r.URL.Query())
	if err != nil {
		if errors.Is(err, errs.ErrProviderSignature) {
			slog.WarnContext(ctx, "return signature verification failed", traceIdAttr,
				slog.String("provider", providerName), slog.String("remote_addr", r.RemoteAddr))
		}
		writeErrorResponse(w, err)
		return
	}

	payment, st, err := in.Payments.ConfirmCallback(ctx, providerName, cb)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	if st.Local == constant.PaymentStatusPaid {
		if _, err := in.Finalizer.Finalize(ctx, payment.ID); err != nil &&
			!errors.Is(err, errs.ErrPaymentNotPaid) {
			writeErrorResponse(w, err)
			return
		}
	}

	resp, err := in.Reconciler.GetStatus(ctx, payment.ID)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (in PaymentHttp) status(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer.Start(r.Context(), "PaymentHttp.status")
	defer span.End()

	paymentID := r.URL.Query().Get("payment_id")
	if paymentID == "" {
		writeErrorResponse(w, &errs.HttpError{Code: http.StatusBadRequest, Message: "Missing payment_id"})
		return
	}

	resp, err := in.Reconciler.GetStatus(ctx, paymentID)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

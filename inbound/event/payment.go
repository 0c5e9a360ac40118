package event

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"ticket-reservation/common"
	"ticket-reservation/common/constant"
	"ticket-reservation/common/errs"
	"ticket-reservation/common/otel"
	"ticket-reservation/engine"
	"ticket-reservation/model"
	"ticket-reservation/outbound/provider"
	"time"
)

// PaymentEvent consumes provider confirmations published by the webhook
// endpoint. Duplicate deliveries are harmless: the status update is
// forward-only and the finalizer is idempotent.
type PaymentEvent struct {
	Payments  *engine.PaymentStore
	Finalizer *engine.Finalizer

	Timeout time.Duration
}

func (in PaymentEvent) ConfirmedHandler(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, in.Timeout)
	defer cancel()

	var req model.PaymentConfirmedEventMessage
	err := json.Unmarshal(msg, &req)
	if err != nil {
		slog.WarnContext(ctx, "payment confirmed event unmarshal error", slog.Any(constant.LogFieldErr, err))
		return nil
	}

	ctx, span := otel.Tracer.Start(ctx, "PaymentEvent.ConfirmedHandler")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	slog.InfoContext(ctx, "payment confirmed event receive request", slog.Any(constant.LogFieldPayload, req), traceIdAttr)

	payment, st, err := in.Payments.ConfirmCallback(ctx, req.Provider, provider.Callback{
		ProviderRef: req.ProviderRef,
		RawStatus:   req.RawStatus,
	})
	if err != nil {
		if errors.Is(err, errs.ErrPaymentNotFound) || errors.Is(err, errs.ErrUnknownProvider) {
			// Redelivery cannot fix an unresolvable reference.
			slog.WarnContext(ctx, "payment confirmation unresolvable", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			return nil
		}

		slog.ErrorContext(ctx, "failed to apply payment confirmation", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return err
	}

	if st.Local != constant.PaymentStatusPaid {
		slog.DebugContext(ctx, "payment confirmation is not a settlement", traceIdAttr,
			slog.String("raw_status", req.RawStatus))
		return nil
	}

	_, err = in.Finalizer.Finalize(ctx, payment.ID)
	if err != nil {
		if errors.Is(err, errs.ErrPaymentNotPaid) || errors.Is(err, errs.ErrHoldNotFinalizable) {
			// Terminal outcome for this message; the expired-hold case
			// has already been logged as an alarm by the finalizer.
			return nil
		}

		slog.ErrorContext(ctx, "failed to finalize payment", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return err
	}

	slog.InfoContext(ctx, "payment confirmed event success", traceIdAttr, slog.String("payment_id", payment.ID))

	return nil
}

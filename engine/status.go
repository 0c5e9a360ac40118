package engine

import (
	"context"
	"errors"
	"log/slog"
	"ticket-reservation/common"
	"ticket-reservation/common/constant"
	"ticket-reservation/common/errs"
	"ticket-reservation/common/otel"
	"ticket-reservation/model"
	"ticket-reservation/outbound/postgres"
	"ticket-reservation/outbound/provider"
	"time"

	"github.com/jackc/pgx/v5"
)

// Reconciler serves the client polling path. It is read-only by default
// but self-heals against lost webhooks: a PENDING payment is re-checked
// against the provider, and a PAID payment with no tickets triggers the
// finalizer before responding.
type Reconciler struct {
	Querier   *postgres.Queries
	Providers *provider.Registry
	Payments  *PaymentStore
	Finalizer *Finalizer
	TimeNow   func() time.Time
}

func (in *Reconciler) GetStatus(ctx context.Context, paymentID string) (model.PaymentStatusResponse, error) {
	ctx, span := otel.Tracer.Start(ctx, "Reconciler.GetStatus")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	var resp model.PaymentStatusResponse

	payment, err := in.Querier.FindPaymentByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return resp, errs.ErrPaymentNotFound
		}
		common.UtilSpanError(span, err)
		return resp, err
	}

	if payment.Status == constant.PaymentStatusPending && payment.ProviderRef.Valid {
		payment = in.refreshFromProvider(ctx, payment)
	}

	var tickets []postgres.TicketRow

	if payment.Status == constant.PaymentStatusPaid {
		if payment.OrderID.Valid {
			tickets, err = in.Querier.FindTicketsByOrderID(ctx, payment.OrderID.String)
			if err != nil {
				common.UtilSpanError(span, err)
				return resp, err
			}
		}

		// Lost-webhook fallback: PAID with no tickets means the
		// finalizer has not run yet, so run it now.
		if len(tickets) == 0 {
			res, err := in.Finalizer.Finalize(ctx, payment.ID)
			if err != nil {
				if errors.Is(err, errs.ErrPaymentNotPaid) {
					// Another caller rolled us back past the window;
					// report the payment as-is.
					slog.DebugContext(ctx, "lazy finalize found nothing to do", traceIdAttr)
				} else {
					common.UtilSpanError(span, err)
					return resp, err
				}
			} else {
				tickets = res.Tickets
				payment.OrderID.String = res.Order.ID
				payment.OrderID.Valid = true
			}
		}
	}

	resp.Payment = model.PaymentInfo{
		PaymentId:   payment.ID,
		HoldId:      payment.HoldID,
		Provider:    payment.Provider,
		Status:      payment.Status,
		AmountMinor: payment.AmountMinor,
	}
	if payment.OrderID.Valid {
		resp.Payment.OrderId = payment.OrderID.String
	}

	resp.Tickets = make([]model.TicketInfo, 0, len(tickets))
	for _, t := range tickets {
		resp.Tickets = append(resp.Tickets, model.TicketInfo{
			TicketId:       t.ID,
			TicketTypeId:   t.TicketTypeID,
			TicketTypeName: t.TicketTypeName,
			Status:         t.Status,
		})
	}

	return resp, nil
}

// refreshFromProvider polls the provider for a PENDING payment and
// applies the mapped status. Provider trouble degrades to serving the
// stored status; it never fails the poll.
func (in *Reconciler) refreshFromProvider(ctx context.Context, payment postgres.PaymentRow) postgres.PaymentRow {
	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	adapter, err := in.Providers.Get(payment.Provider)
	if err != nil {
		slog.WarnContext(ctx, "payment references unknown provider", traceIdAttr,
			slog.String("provider", payment.Provider))
		return payment
	}

	st, err := adapter.GetStatus(ctx, payment.ProviderRef.String)
	if err != nil {
		slog.WarnContext(ctx, "provider status check failed", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return payment
	}

	changed, err := in.Payments.ApplyProviderStatus(ctx, payment.ID, st)
	if err != nil {
		slog.WarnContext(ctx, "failed to apply provider status", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return payment
	}

	if changed {
		refreshed, err := in.Querier.FindPaymentByID(ctx, payment.ID)
		if err == nil {
			return refreshed
		}
	}

	return payment
}

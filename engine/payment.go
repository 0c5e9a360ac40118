package engine

import (
	"context"
	"errors"
	"log/slog"
	"ticket-reservation/common"
	"ticket-reservation/common/constant"
	"ticket-reservation/common/contract"
	"ticket-reservation/common/errs"
	"ticket-reservation/common/otel"
	"ticket-reservation/model"
	"ticket-reservation/outbound/postgres"
	"ticket-reservation/outbound/provider"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/oklog/ulid/v2"
)

// PaymentStore owns the payments table: exactly one payment per hold,
// with the amount always computed server-side from the hold item
// snapshots. The provider call happens outside any open transaction so
// row locks are never held across network latency.
type PaymentStore struct {
	Db        contract.DbConn
	Querier   *postgres.Queries
	Providers *provider.Registry
	TimeNow   func() time.Time
}

// Create prepares the payment record for a hold (transaction A), then
// creates or refreshes the provider session (transaction B). Retrying is
// safe: the hold_id upsert cannot create a second payment and the
// provider-level idempotency key cannot create a second session.
func (in *PaymentStore) Create(ctx context.Context, providerName string, req model.CreatePaymentRequest) (model.CreatePaymentResponse, error) {
	ctx, span := otel.Tracer.Start(ctx, "PaymentStore.Create")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	var resp model.CreatePaymentResponse

	adapter, err := in.Providers.Get(providerName)
	if err != nil {
		return resp, errs.ErrUnknownProvider
	}

	payment, hold, err := in.preparePayment(ctx, providerName, req)
	if err != nil {
		common.UtilSpanError(span, err)
		return resp, err
	}

	resp.PaymentId = payment.ID
	resp.Status = payment.Status
	resp.AmountMinor = payment.AmountMinor

	if payment.Status == constant.PaymentStatusPaid {
		return resp, nil
	}

	// Session reuse: an unchanged payment with a stored reference still
	// has an open session, so a checkout refresh serves it back without
	// a provider round-trip.
	if payment.ProviderRef.Valid {
		resp.RedirectUrl = payment.RedirectUrl.String

		slog.DebugContext(ctx, "reusing open provider session", traceIdAttr,
			slog.String("payment_id", payment.ID), slog.String("provider", providerName))

		return resp, nil
	}

	session, err := adapter.CreateSession(ctx, provider.SessionRequest{
		PaymentID:      payment.ID,
		HoldID:         payment.HoldID,
		BuyerName:      payment.BuyerName,
		BuyerEmail:     payment.BuyerEmail,
		AmountMinor:    payment.AmountMinor,
		ExpiresAt:      hold.ExpiresAt.Time,
		IdempotencyKey: provider.IdempotencyKey(payment.HoldID, payment.ID),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create provider session", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return resp, err
	}

	tag, err := in.Querier.SetPaymentProviderRef(ctx, postgres.SetPaymentProviderRefParams{
		ID:          payment.ID,
		ProviderRef: pgtype.Text{String: session.ProviderRef, Valid: true},
		RedirectUrl: pgtype.Text{String: session.RedirectUrl, Valid: true},
		UpdatedAt:   pgtype.Timestamp{Time: in.TimeNow(), Valid: true},
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to store provider ref", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return resp, err
	}

	if tag.RowsAffected() > 0 {
		resp.Status = constant.PaymentStatusPending
	}

	resp.RedirectUrl = session.RedirectUrl

	slog.InfoContext(ctx, "payment session ready", traceIdAttr,
		slog.String("payment_id", payment.ID), slog.String("provider", providerName))

	return resp, nil
}

// preparePayment is transaction A: lock the hold, verify it is ACTIVE
// and unexpired, price the hold items, and upsert the payment keyed on
// hold_id.
func (in *PaymentStore) preparePayment(ctx context.Context, providerName string, req model.CreatePaymentRequest) (postgres.PaymentRow, postgres.HoldRow, error) {
	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	var payment postgres.PaymentRow
	var hold postgres.HoldRow

	tx, err := in.Db.Begin(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to begin transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return payment, hold, err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.ErrorContext(ctx, "failed to rollback transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}()

	withTx := in.Querier.WithTx(tx)
	now := in.TimeNow()

	hold, err = withTx.FindHoldForUpdate(ctx, req.HoldId)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payment, hold, errs.ErrHoldNotFound
		}
		return payment, hold, err
	}

	switch hold.Status {
	case constant.HoldStatusActive:
		// proceed
	case constant.HoldStatusConsumed:
		payment, err = withTx.FindPaymentByHoldIDForUpdate(ctx, hold.ID)
		if err != nil {
			return payment, hold, err
		}
		return payment, hold, tx.Commit(ctx)
	default:
		return payment, hold, errs.ErrHoldExpired
	}

	if !hold.ExpiresAt.Time.After(now) {
		if err := releaseHeldStock(ctx, withTx, hold.ID); err != nil {
			return payment, hold, err
		}

		if _, err := withTx.UpdateHoldStatus(ctx, postgres.UpdateHoldStatusParams{
			ID:         hold.ID,
			Status:     constant.HoldStatusExpired,
			FromStatus: constant.HoldStatusActive,
		}); err != nil {
			return payment, hold, err
		}

		if err := tx.Commit(ctx); err != nil {
			return payment, hold, err
		}

		return payment, hold, errs.ErrHoldExpired
	}

	items, err := withTx.FindHoldItems(ctx, hold.ID)
	if err != nil {
		return payment, hold, err
	}

	var amountMinor int64
	for _, item := range items {
		amountMinor += item.UnitPriceMinor * int64(item.Qty)
	}

	payment, err = withTx.FindPaymentByHoldIDForUpdate(ctx, hold.ID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return payment, hold, err
		}

		payment = postgres.PaymentRow{
			ID:          ulid.Make().String(),
			HoldID:      hold.ID,
			Provider:    providerName,
			BuyerName:   req.BuyerName,
			BuyerEmail:  req.BuyerEmail,
			AmountMinor: amountMinor,
			Status:      constant.PaymentStatusCreated,
		}

		if _, err := withTx.InsertPayment(ctx, postgres.InsertPaymentParams{
			ID:          payment.ID,
			HoldID:      payment.HoldID,
			Provider:    payment.Provider,
			BuyerName:   payment.BuyerName,
			BuyerEmail:  payment.BuyerEmail,
			AmountMinor: payment.AmountMinor,
		}); err != nil {
			return payment, hold, err
		}

		return payment, hold, tx.Commit(ctx)
	}

	switch payment.Status {
	case constant.PaymentStatusPaid:
		// A paid hold is never re-priced or re-sessioned.
		return payment, hold, tx.Commit(ctx)
	case constant.PaymentStatusCreated, constant.PaymentStatusPending:
		changed := payment.Provider != providerName ||
			payment.AmountMinor != amountMinor ||
			payment.BuyerName != req.BuyerName ||
			payment.BuyerEmail != req.BuyerEmail

		if changed {
			if _, err := withTx.UpdatePaymentPrepare(ctx, postgres.UpdatePaymentPrepareParams{
				ID:          payment.ID,
				Provider:    providerName,
				BuyerName:   req.BuyerName,
				BuyerEmail:  req.BuyerEmail,
				AmountMinor: amountMinor,
				UpdatedAt:   pgtype.Timestamp{Time: now, Valid: true},
			}); err != nil {
				return payment, hold, err
			}

			payment.Provider = providerName
			payment.BuyerName = req.BuyerName
			payment.BuyerEmail = req.BuyerEmail
			payment.AmountMinor = amountMinor
			payment.ProviderRef = pgtype.Text{}
			payment.RedirectUrl = pgtype.Text{}
		}

		return payment, hold, tx.Commit(ctx)
	default:
		// FAILED/CANCELLED payments are terminal; the checkout restarts
		// with a fresh hold.
		return payment, hold, errs.ErrHoldNotFinalizable
	}
}

// ConfirmCallback resolves a decoded provider callback to the local
// payment and applies the mapped status. Both the webhook consumer and
// the return-redirect handler converge here.
func (in *PaymentStore) ConfirmCallback(ctx context.Context, providerName string, cb provider.Callback) (postgres.PaymentRow, provider.Status, error) {
	ctx, span := otel.Tracer.Start(ctx, "PaymentStore.ConfirmCallback")
	defer span.End()

	var st provider.Status

	adapter, err := in.Providers.Get(providerName)
	if err != nil {
		return postgres.PaymentRow{}, st, errs.ErrUnknownProvider
	}

	st = adapter.MapStatus(cb.RawStatus)

	payment, err := in.Querier.FindPaymentByProviderRef(ctx, providerName, cb.ProviderRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payment, st, errs.ErrPaymentNotFound
		}
		common.UtilSpanError(span, err)
		return payment, st, err
	}

	if _, err := in.ApplyProviderStatus(ctx, payment.ID, st); err != nil {
		common.UtilSpanError(span, err)
		return payment, st, err
	}

	return payment, st, nil
}

// ApplyProviderStatus moves the payment forward to the mapped provider
// status. A PENDING mapping or a duplicate of an already-terminal status
// changes nothing.
func (in *PaymentStore) ApplyProviderStatus(ctx context.Context, paymentID string, st provider.Status) (bool, error) {
	ctx, span := otel.Tracer.Start(ctx, "PaymentStore.ApplyProviderStatus")
	defer span.End()

	if st.Local == constant.PaymentStatusPending || st.Local == constant.PaymentStatusCreated {
		return false, nil
	}

	tag, err := in.Querier.UpdatePaymentStatus(ctx, postgres.UpdatePaymentStatusParams{
		ID:        paymentID,
		Status:    st.Local,
		UpdatedAt: pgtype.Timestamp{Time: in.TimeNow(), Valid: true},
	})
	if err != nil {
		common.UtilSpanError(span, err)
		return false, err
	}

	changed := tag.RowsAffected() > 0
	if !changed {
		slog.DebugContext(ctx, "payment already terminal, provider status ignored",
			slog.String("payment_id", paymentID), slog.String("raw_status", st.Raw))
	}

	return changed, nil
}

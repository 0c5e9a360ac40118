package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"ticket-reservation/common"
	"ticket-reservation/common/constant"
	"ticket-reservation/common/contract"
	"ticket-reservation/common/errs"
	"ticket-reservation/common/otel"
	"ticket-reservation/model"
	"ticket-reservation/outbound/postgres"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/oklog/ulid/v2"
)

// Finalizer is the single authority that turns a PAID hold into an order
// plus tickets. It is invoked from the webhook consumer, the
// return-redirect handler and the status poll, and is safe under
// arbitrary concurrent or duplicate invocation: the hold row lock
// serializes callers, and a caller that lost the race gets the winner's
// result.
type Finalizer struct {
	Db        contract.DbConn
	Querier   *postgres.Queries
	Publisher jetstream.Publisher
	TimeNow   func() time.Time
}

type FinalizeResult struct {
	Order   postgres.OrderRow
	Tickets []postgres.TicketRow
}

func (in *Finalizer) Finalize(ctx context.Context, paymentID string) (FinalizeResult, error) {
	ctx, span := otel.Tracer.Start(ctx, "Finalizer.Finalize")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	var res FinalizeResult

	tx, err := in.Db.Begin(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to begin transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return res, err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.ErrorContext(ctx, "failed to rollback transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}()

	withTx := in.Querier.WithTx(tx)

	// Unlocked read first: it resolves hold_id and serves the idempotent
	// short-circuit without taking any lock. Locks are then acquired in
	// the same order as the payment-prepare path, hold before payment.
	payment, err := withTx.FindPaymentByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return res, errs.ErrPaymentNotFound
		}
		common.UtilSpanError(span, err)
		return res, err
	}

	// Idempotent short-circuit: a finished finalize returns the existing
	// order and tickets unchanged.
	if payment.Status == constant.PaymentStatusPaid && payment.OrderID.Valid {
		res, err = in.loadResult(ctx, withTx, payment.OrderID.String)
		if err != nil {
			common.UtilSpanError(span, err)
			return res, err
		}
		return res, tx.Commit(ctx)
	}

	if payment.Status != constant.PaymentStatusPaid {
		return res, errs.ErrPaymentNotPaid
	}

	hold, err := withTx.FindHoldForUpdate(ctx, payment.HoldID)
	if err != nil {
		common.UtilSpanError(span, err)
		return res, err
	}

	// Re-read under the lock: another finalizer may have finished between
	// the unlocked read and our hold lock.
	payment, err = withTx.FindPaymentByHoldIDForUpdate(ctx, payment.HoldID)
	if err != nil {
		common.UtilSpanError(span, err)
		return res, err
	}

	if payment.Status == constant.PaymentStatusPaid && payment.OrderID.Valid {
		res, err = in.loadResult(ctx, withTx, payment.OrderID.String)
		if err != nil {
			common.UtilSpanError(span, err)
			return res, err
		}
		return res, tx.Commit(ctx)
	}

	if payment.Status != constant.PaymentStatusPaid {
		return res, errs.ErrPaymentNotPaid
	}

	// Covers the race where another caller committed between our payment
	// lock attempt and theirs: the hold is CONSUMED, so return their
	// order instead of erroring.
	if hold.Status == constant.HoldStatusConsumed {
		order, err := withTx.FindOrderByHoldID(ctx, hold.ID)
		if err != nil {
			common.UtilSpanError(span, err)
			return res, err
		}

		if _, err := withTx.AssignPaymentOrder(ctx, postgres.AssignPaymentOrderParams{
			ID:        payment.ID,
			OrderID:   pgtype.Text{String: order.ID, Valid: true},
			UpdatedAt: pgtype.Timestamp{Time: in.TimeNow(), Valid: true},
		}); err != nil {
			common.UtilSpanError(span, err)
			return res, err
		}

		res, err = in.loadResult(ctx, withTx, order.ID)
		if err != nil {
			common.UtilSpanError(span, err)
			return res, err
		}
		return res, tx.Commit(ctx)
	}

	if hold.Status != constant.HoldStatusActive {
		return res, errs.ErrHoldNotFinalizable
	}

	now := in.TimeNow()
	if !hold.ExpiresAt.Time.After(now) {
		// A confirmed payment against an expired hold: release the stock
		// and raise the alarm rather than silently ignoring the money.
		if err := releaseHeldStock(ctx, withTx, hold.ID); err != nil {
			common.UtilSpanError(span, err)
			return res, err
		}

		if _, err := withTx.UpdateHoldStatus(ctx, postgres.UpdateHoldStatusParams{
			ID:         hold.ID,
			Status:     constant.HoldStatusExpired,
			FromStatus: constant.HoldStatusActive,
		}); err != nil {
			common.UtilSpanError(span, err)
			return res, err
		}

		if err := tx.Commit(ctx); err != nil {
			common.UtilSpanError(span, err)
			return res, err
		}

		slog.ErrorContext(ctx, "payment confirmed for expired hold", traceIdAttr,
			slog.String("payment_id", payment.ID), slog.String("hold_id", hold.ID))

		return res, errs.ErrHoldNotFinalizable
	}

	items, err := withTx.FindHoldItems(ctx, hold.ID)
	if err != nil {
		common.UtilSpanError(span, err)
		return res, err
	}

	order, err := withTx.UpsertOrder(ctx, postgres.UpsertOrderParams{
		ID:         ulid.Make().String(),
		HoldID:     hold.ID,
		EventID:    hold.EventID,
		BuyerName:  payment.BuyerName,
		BuyerEmail: payment.BuyerEmail,
	})
	if err != nil {
		common.UtilSpanError(span, err)
		return res, err
	}

	for _, item := range items {
		for n := int32(0); n < item.Qty; n++ {
			err = withTx.InsertTicket(ctx, postgres.InsertTicketParams{
				ID:           ulid.Make().String(),
				OrderID:      order.ID,
				EventID:      hold.EventID,
				TicketTypeID: item.TicketTypeID,
			})
			if err != nil {
				common.UtilSpanError(span, err)
				return res, err
			}
		}

		tag, err := withTx.CommitSale(ctx, item.TicketTypeID, item.Qty)
		if err != nil {
			common.UtilSpanError(span, err)
			return res, err
		}

		if tag.RowsAffected() == 0 {
			err = fmt.Errorf("held counter underflow for ticket type %d", item.TicketTypeID)
			common.UtilSpanError(span, err)
			return res, err
		}
	}

	tag, err := withTx.UpdateHoldStatus(ctx, postgres.UpdateHoldStatusParams{
		ID:         hold.ID,
		Status:     constant.HoldStatusConsumed,
		FromStatus: constant.HoldStatusActive,
	})
	if err != nil {
		common.UtilSpanError(span, err)
		return res, err
	}

	if tag.RowsAffected() == 0 {
		err = fmt.Errorf("hold %s changed state during finalize", hold.ID)
		common.UtilSpanError(span, err)
		return res, err
	}

	if _, err := withTx.AssignPaymentOrder(ctx, postgres.AssignPaymentOrderParams{
		ID:        payment.ID,
		OrderID:   pgtype.Text{String: order.ID, Valid: true},
		UpdatedAt: pgtype.Timestamp{Time: now, Valid: true},
	}); err != nil {
		common.UtilSpanError(span, err)
		return res, err
	}

	res, err = in.loadResult(ctx, withTx, order.ID)
	if err != nil {
		common.UtilSpanError(span, err)
		return res, err
	}

	if err := tx.Commit(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to commit transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return res, err
	}

	slog.InfoContext(ctx, "hold finalized", traceIdAttr,
		slog.String("payment_id", payment.ID),
		slog.String("order_id", order.ID),
		slog.Int("tickets", len(res.Tickets)))

	if in.Publisher != nil {
		err = common.PublishMessage(ctx, in.Publisher, constant.SubjectTicketIssued, model.TicketIssuedEventMessage{
			OrderId: order.ID,
		})
		if err != nil {
			// Delivery self-heals through the status poll; the sale is
			// already committed.
			slog.ErrorContext(ctx, "failed to publish ticket issued message", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}

	return res, nil
}

func (in *Finalizer) loadResult(ctx context.Context, q *postgres.Queries, orderID string) (FinalizeResult, error) {
	var res FinalizeResult

	order, err := q.FindOrderByID(ctx, orderID)
	if err != nil {
		return res, err
	}

	tickets, err := q.FindTicketsByOrderID(ctx, orderID)
	if err != nil {
		return res, err
	}

	res.Order = order
	res.Tickets = tickets

	return res, nil
}

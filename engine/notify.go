package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"ticket-reservation/common"
	"ticket-reservation/common/constant"
	"ticket-reservation/common/contract"
	"ticket-reservation/common/otel"
	"ticket-reservation/outbound/postgres"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/text/message"
)

type EmailSender interface {
	Send(to []string, subject string, body string) error
}

// Notifier delivers tickets after finalize. The emailed_at column acts
// as an exclusive send claim: concurrent triggers for the same order
// each claim a disjoint set of rows, so no ticket is ever sent twice.
type Notifier struct {
	Db                contract.DbConn
	Querier           *postgres.Queries
	Sender            EmailSender
	CurrencyFormatter *message.Printer
	TimeNow           func() time.Time
}

func (in *Notifier) ClaimAndSend(ctx context.Context, orderID string) error {
	ctx, span := otel.Tracer.Start(ctx, "Notifier.ClaimAndSend")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	tx, err := in.Db.Begin(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to begin transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.ErrorContext(ctx, "failed to rollback transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}()

	withTx := in.Querier.WithTx(tx)

	order, err := withTx.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			slog.WarnContext(ctx, "order not found for notification", traceIdAttr, slog.String("order_id", orderID))
			return nil
		}
		common.UtilSpanError(span, err)
		return err
	}

	payment, err := withTx.FindPaymentByHoldID(ctx, order.HoldID)
	if err != nil {
		common.UtilSpanError(span, err)
		return err
	}

	items, err := withTx.FindHoldItems(ctx, order.HoldID)
	if err != nil {
		common.UtilSpanError(span, err)
		return err
	}

	claimed, err := withTx.ClaimUnsentTickets(ctx, postgres.ClaimUnsentTicketsParams{
		OrderID:   order.ID,
		EmailedTo: order.BuyerEmail,
		EmailedAt: pgtype.Timestamp{Time: in.TimeNow(), Valid: true},
	})
	if err != nil {
		common.UtilSpanError(span, err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to commit transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return err
	}

	if len(claimed) == 0 {
		slog.DebugContext(ctx, "no unsent tickets to claim", traceIdAttr, slog.String("order_id", order.ID))
		return nil
	}

	body := in.buildDeliveryEmailBody(order, payment, items, claimed)

	// Sending happens strictly after the claiming transaction commits.
	if err := in.Sender.Send([]string{order.BuyerEmail}, "Your Tickets", body); err != nil {
		slog.ErrorContext(ctx, "failed to send ticket email", traceIdAttr, slog.Any(constant.LogFieldErr, err))

		ids := make([]string, 0, len(claimed))
		for _, t := range claimed {
			ids = append(ids, t.ID)
		}

		// Best-effort revert so a later trigger can retry the delivery.
		if revertErr := in.Querier.RevertTicketClaims(ctx, ids); revertErr != nil {
			slog.ErrorContext(ctx, "failed to revert ticket claims", traceIdAttr, slog.Any(constant.LogFieldErr, revertErr))
		}

		common.UtilSpanError(span, err)
		return err
	}

	slog.InfoContext(ctx, "tickets sent", traceIdAttr,
		slog.String("order_id", order.ID), slog.Int(constant.LogFieldResponse, len(claimed)))

	return nil
}

func (in *Notifier) buildDeliveryEmailBody(order postgres.OrderRow, payment postgres.PaymentRow, items []postgres.HoldItemRow, claimed []postgres.ClaimedTicketRow) string {
	nameByType := make(map[int64]string, len(items))
	for _, item := range items {
		nameByType[item.TicketTypeID] = item.TicketTypeName
	}

	var lines strings.Builder
	for _, t := range claimed {
		lines.WriteString(fmt.Sprintf(constant.EmailTicketLineTemplate, t.ID, nameByType[t.TicketTypeID]))
	}

	amountFormatted := in.CurrencyFormatter.Sprintf("Rp%d", payment.AmountMinor)

	return fmt.Sprintf(constant.EmailTicketDeliveryTemplate,
		order.BuyerName,
		order.ID,
		amountFormatted,
		lines.String(),
	)
}

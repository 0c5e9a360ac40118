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
	"github.com/oklog/ulid/v2"
)

// HoldManager owns the holds/hold_items tables and is the only writer
// that increments the held counter.
type HoldManager struct {
	Db      contract.DbConn
	Querier *postgres.Queries
	TimeNow func() time.Time

	DefaultTTL     time.Duration
	SweepBatchSize int32
}

// CreateOrReuse converts a cart into a time-boxed stock hold. When a
// reusable hold id is supplied its items and expiry are replaced in
// place; the old held quantities are released and the full reserve is
// re-run for the new item set so the ledger can never drift.
func (in *HoldManager) CreateOrReuse(ctx context.Context, req model.CreateHoldRequest) (model.CreateHoldResponse, error) {
	ctx, span := otel.Tracer.Start(ctx, "HoldManager.CreateOrReuse")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	ttl := in.DefaultTTL
	if req.TtlSeconds > 0 {
		ttl = time.Duration(req.TtlSeconds) * time.Second
	}

	var resp model.CreateHoldResponse

	tx, err := in.Db.Begin(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to begin transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return resp, err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.ErrorContext(ctx, "failed to rollback transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}()

	withTx := in.Querier.WithTx(tx)
	now := in.TimeNow()

	if _, err := in.sweepExpiredLocked(ctx, withTx, now); err != nil {
		common.UtilSpanError(span, err)
		return resp, err
	}

	holdID := req.HoldId
	reused := false
	if holdID != "" {
		reused, err = in.reuseHold(ctx, withTx, req, now)
		if err != nil {
			common.UtilSpanError(span, err)
			return resp, err
		}
	}

	expiresAt := now.Add(ttl)
	var reserved []reservedItem

	if reused {
		reserved, err = reserveStock(ctx, withTx, req.EventId, req.Items)
		if err != nil {
			common.UtilSpanError(span, err)
			return resp, err
		}
	} else {
		holdID = ulid.Make().String()

		reserved, err = reserveStock(ctx, withTx, req.EventId, req.Items)
		if err != nil {
			common.UtilSpanError(span, err)
			return resp, err
		}

		err = withTx.InsertHold(ctx, postgres.InsertHoldParams{
			ID:        holdID,
			EventID:   req.EventId,
			ExpiresAt: pgtype.Timestamp{Time: expiresAt, Valid: true},
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to insert hold", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			common.UtilSpanError(span, err)
			return resp, err
		}
	}

	if reused {
		if err := withTx.UpdateHoldExpiresAt(ctx, holdID, pgtype.Timestamp{Time: expiresAt, Valid: true}); err != nil {
			common.UtilSpanError(span, err)
			return resp, err
		}
	}

	for _, item := range reserved {
		err = withTx.InsertHoldItem(ctx, postgres.InsertHoldItemParams{
			HoldID:         holdID,
			TicketTypeID:   item.TicketTypeID,
			TicketTypeName: item.Name,
			UnitPriceMinor: item.UnitPriceMinor,
			Qty:            item.Qty,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to insert hold item", traceIdAttr, slog.Any(constant.LogFieldErr, err))
			common.UtilSpanError(span, err)
			return resp, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to commit transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return resp, err
	}

	resp.HoldId = holdID
	resp.ExpiresAt = expiresAt.Format(time.RFC3339)
	for _, item := range reserved {
		resp.Items = append(resp.Items, model.HoldItemResponse{
			TicketTypeId:   item.TicketTypeID,
			TicketTypeName: item.Name,
			UnitPriceMinor: item.UnitPriceMinor,
			Qty:            item.Qty,
		})
	}

	slog.InfoContext(ctx, "hold created", traceIdAttr, slog.Any(constant.LogFieldResponse, resp.HoldId))

	return resp, nil
}

// reuseHold locks the supplied hold and, when it is still ACTIVE for the
// same event and unexpired, releases its current items so the caller can
// re-reserve the new item set in place. Returns false when the hold is
// not reusable, in which case a fresh hold is created instead.
func (in *HoldManager) reuseHold(ctx context.Context, q *postgres.Queries, req model.CreateHoldRequest, now time.Time) (bool, error) {
	hold, err := q.FindHoldForUpdate(ctx, req.HoldId)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if hold.Status != constant.HoldStatusActive || hold.EventID != req.EventId || !hold.ExpiresAt.Time.After(now) {
		return false, nil
	}

	if err := releaseHeldStock(ctx, q, hold.ID); err != nil {
		return false, err
	}

	if err := q.DeleteHoldItems(ctx, hold.ID); err != nil {
		return false, err
	}

	return true, nil
}

// Release cancels an ACTIVE hold and returns its stock. Terminal holds
// are left untouched, making the call idempotent.
func (in *HoldManager) Release(ctx context.Context, holdID string) error {
	ctx, span := otel.Tracer.Start(ctx, "HoldManager.Release")
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

	hold, err := withTx.FindHoldForUpdate(ctx, holdID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrHoldNotFound
		}
		common.UtilSpanError(span, err)
		return err
	}

	if hold.Status != constant.HoldStatusActive {
		slog.DebugContext(ctx, "hold already terminal", traceIdAttr, slog.String("status", hold.Status))
		return tx.Commit(ctx)
	}

	if err := releaseHeldStock(ctx, withTx, hold.ID); err != nil {
		common.UtilSpanError(span, err)
		return err
	}

	tag, err := withTx.UpdateHoldStatus(ctx, postgres.UpdateHoldStatusParams{
		ID:         hold.ID,
		Status:     constant.HoldStatusCanceled,
		FromStatus: constant.HoldStatusActive,
	})
	if err != nil {
		common.UtilSpanError(span, err)
		return err
	}

	if tag.RowsAffected() == 0 {
		err = fmt.Errorf("hold %s changed state during release", hold.ID)
		common.UtilSpanError(span, err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to commit transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return err
	}

	slog.InfoContext(ctx, "hold released", traceIdAttr, slog.String("hold_id", hold.ID))

	return nil
}

// SweepExpired expires overdue ACTIVE holds and returns their stock in
// one transaction. Invoked by the sweep cron and opportunistically at
// the start of hold-touching transactions.
func (in *HoldManager) SweepExpired(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer.Start(ctx, "HoldManager.SweepExpired")
	defer span.End()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	tx, err := in.Db.Begin(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to begin transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return 0, err
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.ErrorContext(ctx, "failed to rollback transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		}
	}()

	withTx := in.Querier.WithTx(tx)

	swept, err := in.sweepExpiredLocked(ctx, withTx, in.TimeNow())
	if err != nil {
		common.UtilSpanError(span, err)
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to commit transaction", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		common.UtilSpanError(span, err)
		return 0, err
	}

	if swept > 0 {
		slog.InfoContext(ctx, "expired holds swept", traceIdAttr, slog.Int(constant.LogFieldResponse, swept))
	}

	return swept, nil
}

func (in *HoldManager) sweepExpiredLocked(ctx context.Context, q *postgres.Queries, now time.Time) (int, error) {
	limit := in.SweepBatchSize
	if limit <= 0 {
		limit = 50
	}

	expired, err := q.FindExpiredHoldsForUpdate(ctx, postgres.FindExpiredHoldsParams{
		Now:   pgtype.Timestamp{Time: now, Valid: true},
		Limit: limit,
	})
	if err != nil {
		return 0, err
	}

	for _, hold := range expired {
		if err := releaseHeldStock(ctx, q, hold.ID); err != nil {
			return 0, err
		}

		tag, err := q.UpdateHoldStatus(ctx, postgres.UpdateHoldStatusParams{
			ID:         hold.ID,
			Status:     constant.HoldStatusExpired,
			FromStatus: constant.HoldStatusActive,
		})
		if err != nil {
			return 0, err
		}

		if tag.RowsAffected() == 0 {
			return 0, fmt.Errorf("hold %s changed state during sweep", hold.ID)
		}
	}

	return len(expired), nil
}

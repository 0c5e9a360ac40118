package engine

import (
	"context"
	"fmt"
	"sort"
	"ticket-reservation/common/errs"
	"ticket-reservation/model"
	"ticket-reservation/outbound/postgres"
)

type reservedItem struct {
	TicketTypeID   int64
	Name           string
	UnitPriceMinor int64
	Qty            int32
}

// reserveStock locks the requested ticket type rows in stable id order,
// checks remaining capacity for the whole batch and increments held per
// row. It must run inside the caller's transaction so that the hold
// insert and the ledger update commit atomically.
func reserveStock(ctx context.Context, q *postgres.Queries, eventID int64, items []model.HoldItemRequest) ([]reservedItem, error) {
	qtyByType := make(map[int64]int32, len(items))
	for _, item := range items {
		qtyByType[item.TicketTypeId] += item.Qty
	}

	ids := make([]int64, 0, len(qtyByType))
	for id := range qtyByType {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows, err := q.LockTicketTypes(ctx, eventID, ids)
	if err != nil {
		return nil, err
	}

	if len(rows) != len(ids) {
		return nil, errs.ErrTicketTypeNotFound
	}

	reserved := make([]reservedItem, 0, len(rows))
	for _, row := range rows {
		qty := qtyByType[row.ID]
		remaining := row.Capacity - row.Sold - row.Held
		if remaining < qty {
			return nil, errs.ErrInsufficientStock
		}

		tag, err := q.IncrementHeld(ctx, row.ID, qty)
		if err != nil {
			return nil, err
		}

		if tag.RowsAffected() == 0 {
			return nil, errs.ErrInsufficientStock
		}

		reserved = append(reserved, reservedItem{
			TicketTypeID:   row.ID,
			Name:           row.Name,
			UnitPriceMinor: row.UnitPriceMinor,
			Qty:            qty,
		})
	}

	return reserved, nil
}

// releaseHeldStock returns a hold's held quantities to the ledger. The
// caller must hold the lock on the hold row.
func releaseHeldStock(ctx context.Context, q *postgres.Queries, holdID string) error {
	items, err := q.FindHoldItems(ctx, holdID)
	if err != nil {
		return err
	}

	for _, item := range items {
		tag, err := q.ReleaseHeld(ctx, item.TicketTypeID, item.Qty)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return fmt.Errorf("held counter underflow for ticket type %d", item.TicketTypeID)
		}
	}

	return nil
}

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

type HoldRow struct {
	ID        string
	EventID   int64
	Status    string
	CreatedAt pgtype.Timestamp
	ExpiresAt pgtype.Timestamp
}

type HoldItemRow struct {
	HoldID         string
	TicketTypeID   int64
	TicketTypeName string
	UnitPriceMinor int64
	Qty            int32
}

type InsertHoldParams struct {
	ID        string
	EventID   int64
	ExpiresAt pgtype.Timestamp
}

const insertHold = `INSERT INTO holds (id, event_id, status, expires_at)
VALUES ($1, $2, 'ACTIVE', $3)`

func (q *Queries) InsertHold(ctx context.Context, arg InsertHoldParams) error {
	_, err := q.db.Exec(ctx, insertHold, arg.ID, arg.EventID, arg.ExpiresAt)
	return err
}

const findHoldForUpdate = `SELECT id, event_id, status, created_at, expires_at
FROM holds
WHERE id = $1
FOR UPDATE`

func (q *Queries) FindHoldForUpdate(ctx context.Context, id string) (HoldRow, error) {
	var i HoldRow
	err := q.db.QueryRow(ctx, findHoldForUpdate, id).
		Scan(&i.ID, &i.EventID, &i.Status, &i.CreatedAt, &i.ExpiresAt)
	return i, err
}

type UpdateHoldStatusParams struct {
	ID         string
	Status     string
	FromStatus string
}

const updateHoldStatus = `UPDATE holds
SET status = $2
WHERE id = $1 AND status = $3`

func (q *Queries) UpdateHoldStatus(ctx context.Context, arg UpdateHoldStatusParams) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, updateHoldStatus, arg.ID, arg.Status, arg.FromStatus)
}

const updateHoldExpiresAt = `UPDATE holds
SET expires_at = $2
WHERE id = $1`

func (q *Queries) UpdateHoldExpiresAt(ctx context.Context, id string, expiresAt pgtype.Timestamp) error {
	_, err := q.db.Exec(ctx, updateHoldExpiresAt, id, expiresAt)
	return err
}

const deleteHoldItems = `DELETE FROM hold_items WHERE hold_id = $1`

func (q *Queries) DeleteHoldItems(ctx context.Context, holdID string) error {
	_, err := q.db.Exec(ctx, deleteHoldItems, holdID)
	return err
}

type InsertHoldItemParams struct {
	HoldID         string
	TicketTypeID   int64
	TicketTypeName string
	UnitPriceMinor int64
	Qty            int32
}

const insertHoldItem = `INSERT INTO hold_items (hold_id, ticket_type_id, ticket_type_name, unit_price_minor, qty)
VALUES ($1, $2, $3, $4, $5)`

func (q *Queries) InsertHoldItem(ctx context.Context, arg InsertHoldItemParams) error {
	_, err := q.db.Exec(ctx, insertHoldItem,
		arg.HoldID, arg.TicketTypeID, arg.TicketTypeName, arg.UnitPriceMinor, arg.Qty)
	return err
}

const findHoldItems = `SELECT hold_id, ticket_type_id, ticket_type_name, unit_price_minor, qty
FROM hold_items
WHERE hold_id = $1
ORDER BY ticket_type_id`

func (q *Queries) FindHoldItems(ctx context.Context, holdID string) ([]HoldItemRow, error) {
	rows, err := q.db.Query(ctx, findHoldItems, holdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []HoldItemRow
	for rows.Next() {
		var i HoldItemRow
		if err := rows.Scan(&i.HoldID, &i.TicketTypeID, &i.TicketTypeName, &i.UnitPriceMinor, &i.Qty); err != nil {
			return nil, err
		}
		items = append(items, i)
	}

	return items, rows.Err()
}

type FindExpiredHoldsParams struct {
	Now   pgtype.Timestamp
	Limit int32
}

const findExpiredHoldsForUpdate = `SELECT id, event_id, status, created_at, expires_at
FROM holds
WHERE status = 'ACTIVE' AND expires_at <= $1
ORDER BY expires_at
LIMIT $2
FOR UPDATE SKIP LOCKED`

// FindExpiredHoldsForUpdate uses SKIP LOCKED so concurrent sweepers each
// claim a disjoint batch and never double-release held stock.
func (q *Queries) FindExpiredHoldsForUpdate(ctx context.Context, arg FindExpiredHoldsParams) ([]HoldRow, error) {
	rows, err := q.db.Query(ctx, findExpiredHoldsForUpdate, arg.Now, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []HoldRow
	for rows.Next() {
		var i HoldRow
		if err := rows.Scan(&i.ID, &i.EventID, &i.Status, &i.CreatedAt, &i.ExpiresAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}

	return items, rows.Err()
}

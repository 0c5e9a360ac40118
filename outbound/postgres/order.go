package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type OrderRow struct {
	ID         string
	HoldID     string
	EventID    int64
	BuyerName  string
	BuyerEmail string
	CreatedAt  pgtype.Timestamp
}

type UpsertOrderParams struct {
	ID         string
	HoldID     string
	EventID    int64
	BuyerName  string
	BuyerEmail string
}

const upsertOrder = `INSERT INTO orders (id, hold_id, event_id, buyer_name, buyer_email)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (hold_id) DO UPDATE SET hold_id = EXCLUDED.hold_id
RETURNING id, hold_id, event_id, buyer_name, buyer_email, created_at`

// UpsertOrder is keyed on hold_id: a retry that lost the finalize race
// gets the winner's existing row back instead of creating a duplicate.
func (q *Queries) UpsertOrder(ctx context.Context, arg UpsertOrderParams) (OrderRow, error) {
	var i OrderRow
	err := q.db.QueryRow(ctx, upsertOrder,
		arg.ID, arg.HoldID, arg.EventID, arg.BuyerName, arg.BuyerEmail).
		Scan(&i.ID, &i.HoldID, &i.EventID, &i.BuyerName, &i.BuyerEmail, &i.CreatedAt)
	return i, err
}

const findOrderByHoldID = `SELECT id, hold_id, event_id, buyer_name, buyer_email, created_at
FROM orders
WHERE hold_id = $1`

func (q *Queries) FindOrderByHoldID(ctx context.Context, holdID string) (OrderRow, error) {
	var i OrderRow
	err := q.db.QueryRow(ctx, findOrderByHoldID, holdID).
		Scan(&i.ID, &i.HoldID, &i.EventID, &i.BuyerName, &i.BuyerEmail, &i.CreatedAt)
	return i, err
}

const findOrderByID = `SELECT id, hold_id, event_id, buyer_name, buyer_email, created_at
FROM orders
WHERE id = $1`

func (q *Queries) FindOrderByID(ctx context.Context, id string) (OrderRow, error) {
	var i OrderRow
	err := q.db.QueryRow(ctx, findOrderByID, id).
		Scan(&i.ID, &i.HoldID, &i.EventID, &i.BuyerName, &i.BuyerEmail, &i.CreatedAt)
	return i, err
}

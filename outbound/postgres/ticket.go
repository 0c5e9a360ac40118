package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type TicketRow struct {
	ID             string
	OrderID        string
	EventID        int64
	TicketTypeID   int64
	TicketTypeName string
	Status         string
	EmailedAt      pgtype.Timestamp
	EmailedTo      pgtype.Text
}

type InsertTicketParams struct {
	ID           string
	OrderID      string
	EventID      int64
	TicketTypeID int64
}

const insertTicket = `INSERT INTO tickets (id, order_id, event_id, ticket_type_id, status)
VALUES ($1, $2, $3, $4, 'VALID')`

func (q *Queries) InsertTicket(ctx context.Context, arg InsertTicketParams) error {
	_, err := q.db.Exec(ctx, insertTicket, arg.ID, arg.OrderID, arg.EventID, arg.TicketTypeID)
	return err
}

const findTicketsByOrderID = `SELECT t.id, t.order_id, t.event_id, t.ticket_type_id, COALESCE(hi.ticket_type_name, ''), t.status, t.emailed_at, t.emailed_to
FROM tickets t
LEFT JOIN orders o ON o.id = t.order_id
LEFT JOIN hold_items hi ON hi.hold_id = o.hold_id AND hi.ticket_type_id = t.ticket_type_id
WHERE t.order_id = $1
ORDER BY t.id`

func (q *Queries) FindTicketsByOrderID(ctx context.Context, orderID string) ([]TicketRow, error) {
	rows, err := q.db.Query(ctx, findTicketsByOrderID, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TicketRow
	for rows.Next() {
		var i TicketRow
		if err := rows.Scan(&i.ID, &i.OrderID, &i.EventID, &i.TicketTypeID, &i.TicketTypeName,
			&i.Status, &i.EmailedAt, &i.EmailedTo); err != nil {
			return nil, err
		}
		items = append(items, i)
	}

	return items, rows.Err()
}

type ClaimUnsentTicketsParams struct {
	OrderID   string
	EmailedTo string
	EmailedAt pgtype.Timestamp
}

type ClaimedTicketRow struct {
	ID           string
	TicketTypeID int64
}

const claimUnsentTickets = `UPDATE tickets
SET emailed_at = $3, emailed_to = $2
WHERE order_id = $1 AND emailed_at IS NULL
RETURNING id, ticket_type_id`

// ClaimUnsentTickets is the exclusive send claim: only the returned rows
// belong to this invocation, so concurrent triggers for the same order
// each own a disjoint set.
func (q *Queries) ClaimUnsentTickets(ctx context.Context, arg ClaimUnsentTicketsParams) ([]ClaimedTicketRow, error) {
	rows, err := q.db.Query(ctx, claimUnsentTickets, arg.OrderID, arg.EmailedTo, arg.EmailedAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ClaimedTicketRow
	for rows.Next() {
		var i ClaimedTicketRow
		if err := rows.Scan(&i.ID, &i.TicketTypeID); err != nil {
			return nil, err
		}
		items = append(items, i)
	}

	return items, rows.Err()
}

const revertTicketClaims = `UPDATE tickets
SET emailed_at = NULL, emailed_to = NULL
WHERE id = ANY($1)`

func (q *Queries) RevertTicketClaims(ctx context.Context, ids []string) error {
	_, err := q.db.Exec(ctx, revertTicketClaims, ids)
	return err
}

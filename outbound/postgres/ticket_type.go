package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

type TicketTypeRow struct {
	ID             int64
	EventID        int64
	Name           string
	UnitPriceMinor int64
	Capacity       int32
	Sold           int32
	Held           int32
}

const lockTicketTypes = `SELECT id, event_id, name, unit_price_minor, capacity, sold, held
FROM ticket_types
WHERE event_id = $1 AND id = ANY($2)
ORDER BY id
FOR UPDATE`

// LockTicketTypes locks the selected rows in stable id order so that
// concurrently reserving transactions cannot deadlock on each other.
func (q *Queries) LockTicketTypes(ctx context.Context, eventID int64, ids []int64) ([]TicketTypeRow, error) {
	rows, err := q.db.Query(ctx, lockTicketTypes, eventID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TicketTypeRow
	for rows.Next() {
		var i TicketTypeRow
		if err := rows.Scan(&i.ID, &i.EventID, &i.Name, &i.UnitPriceMinor, &i.Capacity, &i.Sold, &i.Held); err != nil {
			return nil, err
		}
		items = append(items, i)
	}

	return items, rows.Err()
}

const incrementHeld = `UPDATE ticket_types
SET held = held + $2
WHERE id = $1 AND sold + held + $2 <= capacity`

func (q *Queries) IncrementHeld(ctx context.Context, id int64, qty int32) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, incrementHeld, id, qty)
}

const releaseHeld = `UPDATE ticket_types
SET held = held - $2
WHERE id = $1 AND held >= $2`

func (q *Queries) ReleaseHeld(ctx context.Context, id int64, qty int32) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, releaseHeld, id, qty)
}

const commitSale = `UPDATE ticket_types
SET held = held - $2, sold = sold + $2
WHERE id = $1 AND held >= $2`

// CommitSale moves qty units from held to sold in one guarded update.
func (q *Queries) CommitSale(ctx context.Context, id int64, qty int32) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, commitSale, id, qty)
}

type AvailabilityRow struct {
	ID             int64
	Name           string
	UnitPriceMinor int64
	Remaining      int32
}

const findEventAvailability = `SELECT id, name, unit_price_minor, capacity - sold - held AS remaining
FROM ticket_types
WHERE event_id = $1
ORDER BY id`

func (q *Queries) FindEventAvailability(ctx context.Context, eventID int64) ([]AvailabilityRow, error) {
	rows, err := q.db.Query(ctx, findEventAvailability, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AvailabilityRow
	for rows.Next() {
		var i AvailabilityRow
		if err := rows.Scan(&i.ID, &i.Name, &i.UnitPriceMinor, &i.Remaining); err != nil {
			return nil, err
		}
		items = append(items, i)
	}

	return items, rows.Err()
}

const listEventIds = `SELECT DISTINCT event_id FROM ticket_types ORDER BY event_id`

func (q *Queries) ListEventIds(ctx context.Context) ([]int64, error) {
	rows, err := q.db.Query(ctx, listEventIds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

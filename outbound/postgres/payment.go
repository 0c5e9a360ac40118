package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

type PaymentRow struct {
	ID          string
	HoldID      string
	Provider    string
	ProviderRef pgtype.Text
	RedirectUrl pgtype.Text
	BuyerName   string
	BuyerEmail  string
	AmountMinor int64
	Status      string
	OrderID     pgtype.Text
	CreatedAt   pgtype.Timestamp
	UpdatedAt   pgtype.Timestamp
}

const paymentColumns = `id, hold_id, provider, provider_ref, redirect_url, buyer_name, buyer_email, amount_minor, status, order_id, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (PaymentRow, error) {
	var i PaymentRow
	err := row.Scan(&i.ID, &i.HoldID, &i.Provider, &i.ProviderRef, &i.RedirectUrl, &i.BuyerName, &i.BuyerEmail,
		&i.AmountMinor, &i.Status, &i.OrderID, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const findPaymentByHoldIDForUpdate = `SELECT ` + paymentColumns + `
FROM payments
WHERE hold_id = $1
FOR UPDATE`

func (q *Queries) FindPaymentByHoldIDForUpdate(ctx context.Context, holdID string) (PaymentRow, error) {
	return scanPayment(q.db.QueryRow(ctx, findPaymentByHoldIDForUpdate, holdID))
}

const findPaymentByID = `SELECT ` + paymentColumns + `
FROM payments
WHERE id = $1`

func (q *Queries) FindPaymentByID(ctx context.Context, id string) (PaymentRow, error) {
	return scanPayment(q.db.QueryRow(ctx, findPaymentByID, id))
}

const findPaymentByHoldID = `SELECT ` + paymentColumns + `
FROM payments
WHERE hold_id = $1`

func (q *Queries) FindPaymentByHoldID(ctx context.Context, holdID string) (PaymentRow, error) {
	return scanPayment(q.db.QueryRow(ctx, findPaymentByHoldID, holdID))
}

const findPaymentByProviderRef = `SELECT ` + paymentColumns + `
FROM payments
WHERE provider = $1 AND provider_ref = $2`

func (q *Queries) FindPaymentByProviderRef(ctx context.Context, provider, providerRef string) (PaymentRow, error) {
	return scanPayment(q.db.QueryRow(ctx, findPaymentByProviderRef, provider, providerRef))
}

type InsertPaymentParams struct {
	ID          string
	HoldID      string
	Provider    string
	BuyerName   string
	BuyerEmail  string
	AmountMinor int64
}

const insertPayment = `INSERT INTO payments (id, hold_id, provider, buyer_name, buyer_email, amount_minor, status)
VALUES ($1, $2, $3, $4, $5, $6, 'CREATED')
ON CONFLICT (hold_id) DO NOTHING`

// InsertPayment relies on the unique hold_id constraint; callers hold the
// hold row lock, so a conflicting insert means a concurrent prepare
// already won and the caller re-reads instead.
func (q *Queries) InsertPayment(ctx context.Context, arg InsertPaymentParams) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, insertPayment,
		arg.ID, arg.HoldID, arg.Provider, arg.BuyerName, arg.BuyerEmail, arg.AmountMinor)
}

type UpdatePaymentPrepareParams struct {
	ID          string
	Provider    string
	BuyerName   string
	BuyerEmail  string
	AmountMinor int64
	UpdatedAt   pgtype.Timestamp
}

const updatePaymentPrepare = `UPDATE payments
SET provider = $2, buyer_name = $3, buyer_email = $4, amount_minor = $5, provider_ref = NULL, redirect_url = NULL, updated_at = $6
WHERE id = $1 AND status IN ('CREATED', 'PENDING')`

func (q *Queries) UpdatePaymentPrepare(ctx context.Context, arg UpdatePaymentPrepareParams) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, updatePaymentPrepare,
		arg.ID, arg.Provider, arg.BuyerName, arg.BuyerEmail, arg.AmountMinor, arg.UpdatedAt)
}

type UpdatePaymentStatusParams struct {
	ID        string
	Status    string
	UpdatedAt pgtype.Timestamp
}

const updatePaymentStatus = `UPDATE payments
SET status = $2, updated_at = $3
WHERE id = $1 AND status IN ('CREATED', 'PENDING')`

// UpdatePaymentStatus only moves payments forward out of a non-terminal
// state; a duplicate confirmation of a PAID payment affects zero rows.
func (q *Queries) UpdatePaymentStatus(ctx context.Context, arg UpdatePaymentStatusParams) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, updatePaymentStatus, arg.ID, arg.Status, arg.UpdatedAt)
}

type SetPaymentProviderRefParams struct {
	ID          string
	ProviderRef pgtype.Text
	RedirectUrl pgtype.Text
	UpdatedAt   pgtype.Timestamp
}

const setPaymentProviderRef = `UPDATE payments
SET provider_ref = $2, redirect_url = $3, status = 'PENDING', updated_at = $4
WHERE id = $1 AND status IN ('CREATED', 'PENDING')`

// SetPaymentProviderRef stores the session reference together with its
// redirect URL so a checkout refresh can serve the open session without
// a provider call.
func (q *Queries) SetPaymentProviderRef(ctx context.Context, arg SetPaymentProviderRefParams) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, setPaymentProviderRef, arg.ID, arg.ProviderRef, arg.RedirectUrl, arg.UpdatedAt)
}

type AssignPaymentOrderParams struct {
	ID        string
	OrderID   pgtype.Text
	UpdatedAt pgtype.Timestamp
}

const assignPaymentOrder = `UPDATE payments
SET order_id = $2, updated_at = $3
WHERE id = $1 AND status = 'PAID' AND order_id IS NULL`

func (q *Queries) AssignPaymentOrder(ctx context.Context, arg AssignPaymentOrderParams) (pgconn.CommandTag, error) {
	return q.db.Exec(ctx, assignPaymentOrder, arg.ID, arg.OrderID, arg.UpdatedAt)
}

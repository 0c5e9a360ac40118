package postgres

import (
	"ticket-reservation/common/contract"

	"github.com/jackc/pgx/v5"
)

// Queries is the hand-written data layer over the reservation tables. All
// methods run against the wrapped connection; use WithTx to bind a set of
// calls to one transaction.
type Queries struct {
	db contract.DbConn
}

func New(db contract.DbConn) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

package constant

// Hold statuses. CONSUMED, EXPIRED and CANCELED are terminal.
const (
	HoldStatusActive   = "ACTIVE"
	HoldStatusConsumed = "CONSUMED"
	HoldStatusExpired  = "EXPIRED"
	HoldStatusCanceled = "CANCELED"
)

// Payment statuses. Transitions only move forward: CREATED -> PENDING ->
// PAID, or to FAILED/CANCELLED from a non-terminal state. PAID is frozen.
const (
	PaymentStatusCreated   = "CREATED"
	PaymentStatusPending   = "PENDING"
	PaymentStatusPaid      = "PAID"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusCancelled = "CANCELLED"
)

const (
	TicketStatusValid = "VALID"
	TicketStatusUsed  = "USED"
)

package constant

const (
	QueueStreamName = "ticket_reservation_queue_stream"
)

const (
	AllWildcard     = "events.>"
	PaymentWildcard = "events.payment.>"
	TicketWildcard  = "events.ticket.>"

	SubjectPaymentConfirmed = "events.payment.confirmed"
	SubjectTicketIssued     = "events.ticket.issued"
)

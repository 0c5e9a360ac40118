package model

type TicketTypeAvailability struct {
	TicketTypeId   int64  `json:"ticket_type_id"`
	Name           string `json:"name"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Remaining      int32  `json:"remaining"`
}

type EventAvailabilityResponse struct {
	EventId     int64                    `json:"event_id"`
	TicketTypes []TicketTypeAvailability `json:"ticket_types"`
}

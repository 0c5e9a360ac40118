package model

type HoldItemRequest struct {
	TicketTypeId int64 `json:"ticket_type_id" validate:"required"`
	Qty          int32 `json:"qty" validate:"required,gt=0,lte=10"`
}

type CreateHoldRequest struct {
	EventId    int64             `json:"event_id" validate:"required"`
	Items      []HoldItemRequest `json:"items" validate:"required,min=1,max=10,dive"`
	HoldId     string            `json:"hold_id,omitempty"`
	TtlSeconds int32             `json:"ttl_seconds,omitempty" validate:"omitempty,gte=60,lte=1800"`
}

type HoldItemResponse struct {
	TicketTypeId   int64  `json:"ticket_type_id"`
	TicketTypeName string `json:"ticket_type_name"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	Qty            int32  `json:"qty"`
}

type CreateHoldResponse struct {
	HoldId    string             `json:"hold_id"`
	ExpiresAt string             `json:"expires_at"`
	Items     []HoldItemResponse `json:"items"`
}

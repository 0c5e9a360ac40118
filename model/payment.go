package model

type CreatePaymentRequest struct {
	HoldId     string `json:"hold_id" validate:"required"`
	BuyerName  string `json:"buyer_name" validate:"required,max=100"`
	BuyerEmail string `json:"buyer_email" validate:"required,email"`
}

type CreatePaymentResponse struct {
	PaymentId   string `json:"payment_id"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount_minor"`
	RedirectUrl string `json:"redirect_url,omitempty"`
}

type PaymentInfo struct {
	PaymentId   string `json:"payment_id"`
	HoldId      string `json:"hold_id"`
	Provider    string `json:"provider"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount_minor"`
	OrderId     string `json:"order_id,omitempty"`
}

type TicketInfo struct {
	TicketId       string `json:"ticket_id"`
	TicketTypeId   int64  `json:"ticket_type_id"`
	TicketTypeName string `json:"ticket_type_name,omitempty"`
	Status         string `json:"status"`
}

type PaymentStatusResponse struct {
	Payment PaymentInfo  `json:"payment"`
	Tickets []TicketInfo `json:"tickets"`
}

type PaymentConfirmedEventMessage struct {
	Provider    string `json:"provider"`
	ProviderRef string `json:"provider_ref"`
	RawStatus   string `json:"raw_status"`
}

type TicketIssuedEventMessage struct {
	OrderId string `json:"order_id"`
}

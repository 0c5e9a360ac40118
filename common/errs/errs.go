package errs

import (
	"errors"
	"fmt"
)

type HttpError struct {
	Code    int
	Message string
	Data    any
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("code %d: %s, data: %v", e.Code, e.Message, e.Data)
}

// Domain errors raised inside the transactional core. Each one causes a
// clean rollback of the enclosing transaction; the http layer maps them
// to user-facing responses.
var (
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	ErrHoldNotFound       = errors.New("hold not found")
	ErrHoldExpired        = errors.New("hold expired")
	ErrHoldNotFinalizable = errors.New("hold not finalizable")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrPaymentNotPaid     = errors.New("payment not paid")
	ErrProviderSignature  = errors.New("provider signature verification failed")
	ErrUnknownProvider    = errors.New("unknown payment provider")
)

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"ticket-reservation/common/errs"
	"ticket-reservation/model"

	"github.com/go-playground/validator/v10"
)

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

var domainErrorMapping = map[error]*errs.HttpError{
	errs.ErrInsufficientStock:  {Code: http.StatusConflict, Message: "Insufficient stock"},
	errs.ErrTicketTypeNotFound: {Code: http.StatusBadRequest, Message: "Ticket type not found"},
	errs.ErrHoldNotFound:       {Code: http.StatusNotFound, Message: "Hold not found"},
	errs.ErrHoldExpired:        {Code: http.StatusConflict, Message: "Hold expired, please restart checkout"},
	errs.ErrHoldNotFinalizable: {Code: http.StatusConflict, Message: "Hold can no longer be finalized, please restart checkout"},
	errs.ErrPaymentNotFound:    {Code: http.StatusNotFound, Message: "Payment not found"},
	errs.ErrUnknownProvider:    {Code: http.StatusBadRequest, Message: "Unknown payment provider"},
	errs.ErrProviderSignature:  {Code: http.StatusUnauthorized, Message: "Invalid signature"},
}

func writeErrorResponse(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	w.Header().Set("Content-Type", "application/json")

	for sentinel, httpErr := range domainErrorMapping {
		if errors.Is(err, sentinel) {
			w.WriteHeader(httpErr.Code)
			_ = json.NewEncoder(w).Encode(model.ErrorResponse{Error: httpErr.Message})
			return
		}
	}

	var message string
	var data any
	if httpErr, ok := err.(*errs.HttpError); ok {
		message = httpErr.Message
		data = httpErr.Data
		w.WriteHeader(httpErr.Code)
	} else if validationErr, ok := err.(validator.ValidationErrors); ok {
		message = "Validation failed"
		w.WriteHeader(http.StatusBadRequest)

		validationErrors := make(map[string]string)
		for _, fieldErr := range validationErr {
			fieldName := fieldErr.Field()
			validationErrors[fieldName] = fieldErr.Tag()
		}

		data = validationErrors
	} else {
		message = "Internal Server Error"
		w.WriteHeader(500)
	}

	errorResponse := model.ErrorResponse{Error: message, Data: data}
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

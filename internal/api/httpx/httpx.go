package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/baharkarakas/qrcharge-backend/internal/api/validate"
	"github.com/baharkarakas/qrcharge-backend/internal/services"
)

type APIError struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details interface{}) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

var errorMap = []struct {
	err    error
	status int
	code   string
}{
	{services.ErrInvalidAmount, http.StatusUnprocessableEntity, "invalid_amount"},
	{services.ErrInsufficientBalance, http.StatusForbidden, "insufficient_balance"},
	{services.ErrConnectorUnavailable, http.StatusConflict, "connector_unavailable"},
	{services.ErrTransactionNotFound, http.StatusNotFound, "transaction_not_found"},
	{services.ErrNotFound, http.StatusNotFound, "not_found"},
	{services.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{services.ErrPayoutInProgress, http.StatusConflict, "payout_in_progress"},
	{services.ErrCurrencyMismatch, http.StatusUnprocessableEntity, "currency_mismatch"},
	{services.ErrForbidden, http.StatusForbidden, "forbidden"},
	{services.ErrGatewayUnavailable, http.StatusServiceUnavailable, "gateway_unavailable"},
}

// StatusFor maps a service error to its HTTP status and error code.
func StatusFor(err error) (int, string) {
	var verrs validate.Errs
	if errors.As(err, &verrs) {
		return http.StatusBadRequest, "validation_failed"
	}
	for _, m := range errorMap {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// WriteErr writes err using StatusFor. Internal errors are not echoed.
func WriteErr(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	var details interface{}
	var verrs validate.Errs
	if errors.As(err, &verrs) {
		msg, details = "validation failed", verrs
	}
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	WriteError(w, status, code, msg, details)
}

// Decode reads a JSON body of at most 1 MiB and rejects unknown fields.
func Decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return validate.Errs{{Field: "body", Msg: fmt.Sprintf("invalid json: %v", err)}}
	}
	return nil
}

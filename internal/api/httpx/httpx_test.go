package httpx

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/baharkarakas/qrcharge-backend/internal/api/validate"
	"github.com/baharkarakas/qrcharge-backend/internal/services"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrapped: %w", services.ErrInsufficientBalance), http.StatusForbidden},
		{services.ErrConnectorUnavailable, http.StatusConflict},
		{services.ErrTransactionNotFound, http.StatusNotFound},
		{fmt.Errorf("session %q: %w", "x", services.ErrNotFound), http.StatusNotFound},
		{services.ErrInvalidState, http.StatusConflict},
		{fmt.Errorf("%w: outage", services.ErrGatewayUnavailable), http.StatusServiceUnavailable},
		{validate.Errs{{Field: "a", Msg: "required"}}, http.StatusBadRequest},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := StatusFor(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}

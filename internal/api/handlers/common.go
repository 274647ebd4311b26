package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/baharkarakas/qrcharge-backend/internal/api/validate"
)

// decodeBytes is lenient about unknown fields: gateways add their own.
func decodeBytes(b []byte, v any) error {
	if err := json.Unmarshal(b, v); err != nil {
		return validate.Errs{{Field: "body", Msg: fmt.Sprintf("invalid json: %v", err)}}
	}
	return nil
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

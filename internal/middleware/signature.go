package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/baharkarakas/qrcharge-backend/internal/api/httpx"
)

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Signature checks X-Signature against the request body. An empty secret
// turns the check off.
func Signature(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "bad_request", "unreadable body", nil)
				return
			}
			got := strings.TrimPrefix(r.Header.Get("X-Signature"), "sha256=")
			want := Sign(secret, body)
			if !hmac.Equal([]byte(got), []byte(want)) {
				httpx.WriteError(w, http.StatusUnauthorized, "bad_signature", "signature mismatch", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

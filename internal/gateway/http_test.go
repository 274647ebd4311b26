package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientInitiatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req PaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Amount.Equal(decimal.RequireFromString("55.00")))
		_ = json.NewEncoder(w).Encode(Checkout{CheckoutURL: "https://pay.example/" + req.Reference})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/v1/", "key", time.Second)
	out, err := c.InitiatePayment(context.Background(), PaymentRequest{
		Amount:    decimal.RequireFromString("55.00"),
		Reference: "QR-abc-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/QR-abc-1", out.CheckoutURL)
}

func TestHTTPClientClassifiesFailures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		unavailable bool
	}{
		{"server error is transient", http.StatusBadGateway, true},
		{"throttling is transient", http.StatusTooManyRequests, true},
		{"bad request is permanent", http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, "", time.Second).PaymentStatus(context.Background(), "ref")
			require.Error(t, err)
			assert.Equal(t, tt.unavailable, errors.Is(err, ErrUnavailable))
		})
	}
}

func TestSandboxSettleAndFailNext(t *testing.T) {
	ctx := context.Background()
	s := NewSandbox("http://sandbox")
	s.FailNext(1)

	_, err := s.InitiatePayment(ctx, PaymentRequest{Reference: "r1"})
	require.ErrorIs(t, err, ErrUnavailable)

	co, err := s.InitiatePayment(ctx, PaymentRequest{Reference: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "http://sandbox/checkout/r1", co.CheckoutURL)

	st, err := s.PaymentStatus(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatePending, st.State)

	s.Settle("r1", true)
	st, err = s.PaymentStatus(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, st.State)
}

func TestHTTPClientSendsPayoutIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payouts", r.URL.Path)
		assert.Equal(t, "WDR-1", r.Header.Get("Idempotency-Key"))
		_ = json.NewEncoder(w).Encode(map[string]string{"external_reference": "po-9"})
	}))
	defer srv.Close()

	ext, err := NewHTTPClient(srv.URL, "", time.Second).SendPayout(context.Background(), PayoutInstruction{
		Reference: "WDR-1",
		Amount:    decimal.RequireFromString("40.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "po-9", ext)
}

func TestSandboxPaysEachReferenceOnce(t *testing.T) {
	ctx := context.Background()
	s := NewSandbox("http://sandbox")

	first, err := s.SendPayout(ctx, PayoutInstruction{Reference: "WDR-1"})
	require.NoError(t, err)
	again, err := s.SendPayout(ctx, PayoutInstruction{Reference: "WDR-1"})
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = s.SendPayout(ctx, PayoutInstruction{Reference: "WDR-2"})
	require.NoError(t, err)
	assert.Len(t, s.Payouts(), 2)
}

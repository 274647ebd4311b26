package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/qrcharge-backend/internal/auth"
	"github.com/baharkarakas/qrcharge-backend/internal/config"
	"github.com/baharkarakas/qrcharge-backend/internal/gateway"
	"github.com/baharkarakas/qrcharge-backend/internal/middleware"
	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/notify"
	"github.com/baharkarakas/qrcharge-backend/internal/repository/memory"
	"github.com/baharkarakas/qrcharge-backend/internal/services"
)

const webhookSecret = "whsec"

type harness struct {
	t   *testing.T
	srv *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	store.AddConnector(models.Connector{
		ID:           "conn-1",
		Token:        "qr-conn-1",
		MerchantID:   "merchant-1",
		PricePerUnit: decimal.RequireFromString("5.50"),
		Capacity:     2,
	})
	svc := services.New(store, gateway.NewSandbox("http://sandbox"), notify.LogNotifier{Log: log},
		services.Inline{}, services.Settings{Currency: "USD"}, log)
	cfg := config.Config{DevTokens: true, Currency: "USD", WebhookSecret: webhookSecret}
	h := NewRouter(RouterDeps{
		Cfg: cfg,
		Svc: svc,
		TM:  auth.NewTokenManager("qrcharge", "a", "r", time.Minute, time.Hour),
		Log: log,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv}
}

func (h *harness) do(method, path, bearer string, body any, out any) int {
	h.t.Helper()
	var rd io.Reader
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(h.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if path == "/api/v1/payments/callback" {
		req.Header.Set("X-Signature", middleware.Sign(webhookSecret, raw))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func balanceOf(h *harness, bearer string) decimal.Decimal {
	var w struct {
		Balance decimal.Decimal `json:"balance"`
	}
	require.Equal(h.t, http.StatusOK, h.do(http.MethodGet, "/api/v1/wallets/me", bearer, nil, &w))
	return w.Balance
}

func TestPaymentToWithdrawalFlow(t *testing.T) {
	h := newHarness(t)

	var init struct {
		SessionToken string          `json:"session_token"`
		Reference    string          `json:"reference"`
		CheckoutURL  string          `json:"checkout_url"`
		Amount       decimal.Decimal `json:"amount"`
	}
	status := h.do(http.MethodPost, "/api/v1/payments/initiate", "dev-driver-1", map[string]any{
		"connector_token":    "qr-conn-1",
		"mode":               "energy_quantity",
		"quantity_or_amount": "10",
		"contact":            "+233200000000",
	}, &init)
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, init.Amount.Equal(decimal.RequireFromString("55.00")))
	assert.NotEmpty(t, init.CheckoutURL)

	var ack map[string]any
	cb := map[string]any{"reference": init.Reference, "success": true}
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/v1/payments/callback", "", cb, &ack))
	assert.Equal(t, "completed", ack["outcome"])
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/v1/payments/callback", "", cb, &ack))
	assert.Equal(t, "duplicate", ack["outcome"])

	var sess map[string]any
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/payments/sessions/"+init.SessionToken, "", nil, &sess))
	assert.Equal(t, "charging_started", sess["status"])

	merchant := "dev-merchant:merchant-1"
	assert.True(t, balanceOf(h, merchant).Equal(decimal.RequireFromString("55")))

	var pm struct {
		ID string `json:"id"`
	}
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/v1/payout-methods", merchant, map[string]any{
		"kind": "mobile_money", "label": "MoMo", "details": map[string]string{"msisdn": "+233200000001"},
	}, &pm))

	var apiErr map[string]any
	status = h.do(http.MethodPost, "/api/v1/withdrawals", merchant, map[string]any{"amount": "150.00", "payout_method_id": pm.ID}, &apiErr)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "insufficient_balance", apiErr["code"])

	var wr struct {
		RequestID string `json:"request_id"`
		Status    string `json:"status"`
	}
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/v1/withdrawals", merchant, map[string]any{"amount": "40.00", "payout_method_id": pm.ID}, &wr))
	assert.Equal(t, "pending", wr.Status)
	assert.True(t, balanceOf(h, merchant).Equal(decimal.RequireFromString("15")))

	resolve := "/api/v1/withdrawals/" + wr.RequestID + "/resolve"
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, resolve, merchant, map[string]any{"outcome": "rejected"}, nil))
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, resolve, "dev-admin:ops", map[string]any{"outcome": "rejected", "note": "docs"}, nil))
	assert.True(t, balanceOf(h, merchant).Equal(decimal.RequireFromString("55")))

	var entries []map[string]any
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/wallets/me/entries", merchant, nil, &entries))
	assert.Len(t, entries, 3)
}

func TestCallbackEdgeCases(t *testing.T) {
	h := newHarness(t)

	var ack map[string]any
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/v1/payments/callback", "",
		map[string]any{"reference": "QR-unknown-00000000", "status": "success"}, &ack))
	assert.Equal(t, "not_found", ack["outcome"])

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/api/v1/payments/callback", bytes.NewBufferString(`{"reference":"x"}`))
	require.NoError(t, err)
	req.Header.Set("X-Signature", "forged")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/payments/callback", "", map[string]any{"success": true}, nil))
}

func TestInterimCallbackDoesNotFailPayment(t *testing.T) {
	h := newHarness(t)

	var init struct {
		SessionToken string `json:"session_token"`
		Reference    string `json:"reference"`
	}
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/v1/payments/initiate", "dev-driver-1", map[string]any{
		"connector_token":    "qr-conn-1",
		"mode":               "fixed_amount",
		"quantity_or_amount": "20",
		"contact":            "+233200000000",
	}, &init))

	var ack map[string]any
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/v1/payments/callback", "",
		map[string]any{"reference": init.Reference, "status": "pending"}, &ack))
	assert.Equal(t, "pending", ack["outcome"])
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/payments/callback", "",
		map[string]any{"reference": init.Reference, "status": "weird"}, nil))
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/payments/callback", "",
		map[string]any{"reference": init.Reference}, nil))

	var sess struct {
		Status string `json:"status"`
	}
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/payments/sessions/"+init.SessionToken, "", nil, &sess))
	assert.Equal(t, "payment_initiated", sess.Status)

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/v1/payments/callback", "",
		map[string]any{"reference": init.Reference, "status": "success"}, &ack))
	assert.Equal(t, "completed", ack["outcome"])
	assert.True(t, balanceOf(h, "dev-merchant:merchant-1").Equal(decimal.RequireFromString("20")))
}

func TestDeclinedCallbackFailsPayment(t *testing.T) {
	h := newHarness(t)

	var init struct {
		Reference string `json:"reference"`
	}
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/v1/payments/initiate", "dev-driver-1", map[string]any{
		"connector_token":    "qr-conn-1",
		"mode":               "fixed_amount",
		"quantity_or_amount": "20",
		"contact":            "+233200000000",
	}, &init))

	var ack map[string]any
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/v1/payments/callback", "",
		map[string]any{"reference": init.Reference, "status": "declined", "reason": "card declined"}, &ack))
	assert.Equal(t, "failed", ack["outcome"])
}

func TestInitiateErrors(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name   string
		bearer string
		body   map[string]any
		status int
	}{
		{"no token", "", map[string]any{}, http.StatusUnauthorized},
		{"bad mode", "dev-u1", map[string]any{"connector_token": "qr-conn-1", "mode": "x", "quantity_or_amount": "1", "contact": "c"}, http.StatusBadRequest},
		{"zero amount", "dev-u1", map[string]any{"connector_token": "qr-conn-1", "mode": "fixed_amount", "quantity_or_amount": "0", "contact": "c"}, http.StatusUnprocessableEntity},
		{"unknown connector", "dev-u1", map[string]any{"connector_token": "nope", "mode": "fixed_amount", "quantity_or_amount": "5", "contact": "c"}, http.StatusNotFound},
		{"unknown field", "dev-u1", map[string]any{"connector": "qr-conn-1"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, h.do(http.MethodPost, "/api/v1/payments/initiate", tt.bearer, tt.body, nil))
		})
	}
}

func TestDevTokenIssuance(t *testing.T) {
	h := newHarness(t)
	var pair auth.Pair
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/v1/auth/token", "", map[string]any{"user_id": "merchant-1", "role": "merchant"}, &pair))
	assert.True(t, balanceOf(h, pair.AccessToken).IsZero())

	var refreshed auth.Pair
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]any{"refresh_token": pair.RefreshToken}, &refreshed))
	assert.NotEmpty(t, refreshed.AccessToken)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/v1/auth/token", "", map[string]any{"client_id": "ghost", "client_secret": "x"}, nil))
}

package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/qrcharge-backend/internal/api/httpx"
	"github.com/baharkarakas/qrcharge-backend/internal/api/validate"
	"github.com/baharkarakas/qrcharge-backend/internal/middleware"
	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/services"
)

type PaymentHandler struct {
	Svc *services.Services
	Log *slog.Logger
}

type initiateReq struct {
	ConnectorToken   string          `json:"connector_token"`
	Mode             string          `json:"mode"`
	QuantityOrAmount decimal.Decimal `json:"quantity_or_amount"`
	Contact          string          `json:"contact"`
}

type initiateResp struct {
	SessionToken string          `json:"session_token"`
	CheckoutURL  string          `json:"checkout_url"`
	Reference    string          `json:"reference"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	var req initiateReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if err := validate.Collect(
		validate.Required("connector_token", req.ConnectorToken),
		validate.Required("contact", req.Contact),
		validate.OneOf("mode", req.Mode, string(models.ModeFixedAmount), string(models.ModeEnergyQuantity)),
	); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	charge, ok := models.NewCharge(models.PaymentMode(req.Mode), req.QuantityOrAmount)
	if !ok {
		httpx.WriteErr(w, validate.Errs{{Field: "mode", Msg: "unsupported payment mode"}})
		return
	}

	in, err := h.Svc.Payments.Initiate(r.Context(), services.NewSession{
		UserID:         p.UserID,
		ConnectorToken: req.ConnectorToken,
		Charge:         charge,
		Contact:        req.Contact,
	})
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, initiateResp{
		SessionToken: in.Session.Token,
		CheckoutURL:  in.CheckoutURL,
		Reference:    in.Transaction.Reference,
		Amount:       in.Session.CalculatedAmount,
		Currency:     in.Session.Currency,
		ExpiresAt:    in.Session.ExpiresAt,
	})
}

type callbackReq struct {
	Reference         string `json:"reference"`
	ExternalReference string `json:"external_reference"`
	Success           *bool  `json:"success"`
	Status            string `json:"status"`
	Reason            string `json:"reason"`
}

type paymentOutcome int

const (
	outcomeUnknown paymentOutcome = iota
	outcomeInterim
	outcomeSucceeded
	outcomeFailed
)

// outcome reads the final result the gateway reports. Interim notices and
// payloads without a recognised indicator are never treated as failures.
func (c callbackReq) outcome() paymentOutcome {
	if c.Success != nil {
		if *c.Success {
			return outcomeSucceeded
		}
		return outcomeFailed
	}
	switch strings.ToLower(strings.TrimSpace(c.Status)) {
	case "success", "successful", "succeeded", "completed", "paid":
		return outcomeSucceeded
	case "failed", "failure", "declined", "cancelled", "canceled", "rejected", "expired", "error":
		return outcomeFailed
	case "pending", "processing", "initiated", "created", "in_progress":
		return outcomeInterim
	}
	return outcomeUnknown
}

// Callback is the gateway webhook. Every payload that parses is
// acknowledged with 200, known or not; only internal failures that a
// redelivery may fix get a 5xx.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "unreadable body", nil)
		return
	}
	var req callbackReq
	if err := decodeBytes(raw, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if req.Reference == "" && req.ExternalReference == "" {
		httpx.WriteErr(w, validate.Errs{{Field: "reference", Msg: "required"}})
		return
	}

	var success bool
	switch req.outcome() {
	case outcomeSucceeded:
		success = true
	case outcomeFailed:
	case outcomeInterim:
		h.Log.Info("interim callback acknowledged", "ref", req.Reference, "status", req.Status)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"received": true, "outcome": "pending"})
		return
	default:
		httpx.WriteErr(w, validate.Errs{{Field: "status", Msg: "missing or unrecognised payment status"}})
		return
	}

	res, err := h.Svc.Reconciliation.HandleCallback(r.Context(), services.Callback{
		Reference:         req.Reference,
		ExternalReference: req.ExternalReference,
		Success:           success,
		Reason:            req.Reason,
		Raw:               raw,
	})
	if err != nil {
		h.Log.Error("callback processing failed", "ref", req.Reference, "err", err,
			"request_id", middleware.RequestIDFrom(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, "retry", "callback not processed", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"received": true, "outcome": res.Outcome})
}

type sessionView struct {
	Token         string               `json:"token"`
	Status        models.SessionStatus `json:"status"`
	Mode          models.PaymentMode   `json:"mode"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      string               `json:"currency"`
	FailureReason string               `json:"failure_reason,omitempty"`
	LatePayment   bool                 `json:"late_payment"`
	ExpiresAt     time.Time            `json:"expires_at"`
}

func viewSession(s models.QRPaymentSession) sessionView {
	return sessionView{
		Token:         s.Token,
		Status:        s.Status,
		Mode:          s.Mode,
		Amount:        s.CalculatedAmount,
		Currency:      s.Currency,
		FailureReason: s.FailureReason,
		LatePayment:   s.LatePayment,
		ExpiresAt:     s.ExpiresAt,
	}
}

func (h *PaymentHandler) Session(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") == "true"
	sess, err := h.Svc.Reconciliation.Poll(r.Context(), chi.URLParam(r, "token"), refresh)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewSession(sess))
}

func (h *PaymentHandler) Activate(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Svc.Charging.Activate(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}

type completeReq struct {
	EnergyDelivered decimal.Decimal `json:"energy_delivered"`
}

func (h *PaymentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	rec, err := h.Svc.Charging.Complete(r.Context(), chi.URLParam(r, "token"), req.EnergyDelivered)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}

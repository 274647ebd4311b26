package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baharkarakas/qrcharge-backend/internal/api/httpx"
	"github.com/baharkarakas/qrcharge-backend/internal/api/validate"
	"github.com/baharkarakas/qrcharge-backend/internal/middleware"
	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/services"
)

type WalletHandler struct {
	Svc      *services.Services
	Currency string
}

type walletView struct {
	OwnerID   string          `json:"owner_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

func (h *WalletHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	wal, err := h.Svc.Ledger.Wallet(r.Context(), p.UserID)
	switch {
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteJSON(w, http.StatusOK, walletView{OwnerID: p.UserID, Balance: decimal.Zero, Currency: h.Currency})
		return
	case err != nil:
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, walletView{
		OwnerID:   wal.OwnerID,
		Balance:   wal.Balance,
		Currency:  wal.Currency,
		UpdatedAt: &wal.UpdatedAt,
	})
}

func (h *WalletHandler) Entries(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	entries, err := h.Svc.Ledger.Entries(r.Context(), p.UserID)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

type topUpReq struct {
	Amount  decimal.Decimal `json:"amount"`
	Contact string          `json:"contact"`
}

func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	var req topUpReq
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if err := validate.Collect(validate.Required("contact", req.Contact)); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	txn, url, err := h.Svc.Payments.TopUp(r.Context(), p.UserID, req.Amount, req.Contact)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"reference":    txn.Reference,
		"amount":       txn.Amount,
		"checkout_url": url,
	})
}
